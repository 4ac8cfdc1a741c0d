package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
)

// ============================================================
// Health Check Handlers
// ============================================================

// LivenessProbe проверяет, что приложение работает
func LivenessProbe(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "alive",
	})
}

// StartupProbe проверяет, что приложение успешно запустилось
func StartupProbe(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "started",
	})
}

// Readiness опрашивает /health/live каждого upstream-сервиса.
type Readiness struct {
	upstreams map[string]string
	client    *http.Client
}

func NewReadiness(upstreams map[string]string, timeout time.Duration) *Readiness {
	return &Readiness{upstreams: upstreams, client: &http.Client{Timeout: timeout}}
}

// ReadinessProbe отвечает 503, если хотя бы один сервис недоступен.
func (r *Readiness) ReadinessProbe(c fiber.Ctx) error {
	services := r.check(c.Context())

	status, code := "ready", fiber.StatusOK
	for _, s := range services {
		if s != "up" {
			status, code = "degraded", fiber.StatusServiceUnavailable
			break
		}
	}
	return c.Status(code).JSON(fiber.Map{
		"status":   status,
		"services": services,
	})
}

func (r *Readiness) check(ctx context.Context) map[string]string {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]string, len(r.upstreams))
	)
	for name, base := range r.upstreams {
		wg.Add(1)
		go func(name, base string) {
			defer wg.Done()
			state := r.ping(ctx, strings.TrimRight(base, "/")+"/health/live")
			mu.Lock()
			out[name] = state
			mu.Unlock()
		}(name, base)
	}
	wg.Wait()
	return out
}

func (r *Readiness) ping(ctx context.Context, url string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "down"
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "down"
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "down"
	}
	return "up"
}

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"design-studio/internal/design/models"
	"design-studio/internal/render/export"

	"github.com/bytedance/sonic"
)

// ============================================================
// Renderer Client
// ============================================================

var ErrRendererUnavailable = errors.New("renderer unavailable")

// RendererError - ответ renderer с кодом >= 300.
type RendererError struct {
	Status  int
	Message string
}

func (e *RendererError) Error() string {
	return fmt.Sprintf("renderer status %d: %s", e.Status, e.Message)
}

type Rendered struct {
	Data        []byte
	ContentType string
	Cache       string // HIT / MISS
	Key         string
}

type RendererClient struct {
	baseURL string
	http    *http.Client
}

func NewRendererClient(baseURL string, timeout time.Duration) *RendererClient {
	return &RendererClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type renderPayload struct {
	TemplateID string        `json:"template_id"`
	DesignID   string        `json:"design_id"`
	Canvas     models.Canvas `json:"canvas"`
}

// Render отправляет холст дизайна в renderer /render.
func (c *RendererClient) Render(ctx context.Context, design models.Design, params export.Params) (*Rendered, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: renderer url is empty", ErrRendererUnavailable)
	}

	body, err := sonic.Marshal(renderPayload{
		TemplateID: design.TemplateID,
		DesignID:   design.ID,
		Canvas:     design.Canvas,
	})
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("format", string(params.Format))
	if params.Scale > 0 {
		q.Set("scale", strconv.FormatFloat(params.Scale, 'f', -1, 64))
	}
	if params.Quality > 0 {
		q.Set("quality", strconv.Itoa(params.Quality))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRendererUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrRendererUnavailable, err)
	}

	if resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		if err := sonic.Unmarshal(data, &payload); err != nil || payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		return nil, &RendererError{Status: resp.StatusCode, Message: payload.Error}
	}

	return &Rendered{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		Cache:       resp.Header.Get("X-Cache"),
		Key:         resp.Header.Get("X-Render-Key"),
	}, nil
}

// Ping проверяет /health/live renderer.
func (c *RendererClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health/live", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRendererUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrRendererUnavailable, resp.StatusCode)
	}
	return nil
}

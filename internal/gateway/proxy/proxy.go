package proxy

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

// ============================================================
// Proxy Handler
// ============================================================

// заголовки ответа, которые fiber выставляет сам
var skipResponseHeaders = map[string]bool{
	"Content-Length":    true,
	"Transfer-Encoding": true,
	"Connection":        true,
	"Date":              true,
	"Server":            true,
}

var forwardRequestHeaders = []string{"Authorization", "Accept", "If-None-Match"}

type Proxy struct {
	client *http.Client
	log    zerolog.Logger
}

func New(timeout time.Duration, logger zerolog.Logger) *Proxy {
	return &Proxy{client: &http.Client{Timeout: timeout}, log: logger}
}

// To проксирует запрос в сервис base, отрезая prefix от пути; query сохраняется.
func (p *Proxy) To(base, prefix string) fiber.Handler {
	base = strings.TrimRight(base, "/")
	return func(c fiber.Ctx) error {
		target := base + strings.TrimPrefix(c.Path(), prefix)
		if q := c.Request().URI().QueryString(); len(q) > 0 {
			target += "?" + string(q)
		}
		return p.Forward(c, target)
	}
}

// Forward проксирует запрос по переданному URL (для динамических путей).
func (p *Proxy) Forward(c fiber.Ctx, targetURL string) error {
	contentType := c.Get("Content-Type")
	p.log.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Str("content_type", contentType).
		Str("size", humanize.IBytes(uint64(len(c.Body())))).
		Str("target", targetURL).
		Msg("forward")

	if !strings.HasPrefix(contentType, "multipart/form-data") {
		return p.sendRaw(c, targetURL, contentType)
	}
	return p.sendMultipart(c, targetURL)
}

func (p *Proxy) sendRaw(c fiber.Ctx, targetURL, contentType string) error {
	req, err := http.NewRequestWithContext(c.Context(), c.Method(), targetURL, bytes.NewReader(c.Body()))
	if err != nil {
		p.log.Error().Err(err).Str("target", targetURL).Msg("build request")
		return fiber.NewError(fiber.StatusInternalServerError, "proxy failed")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return p.do(c, req)
}

// sendMultipart пересобирает форму: файлы и поля уходят в upstream новым multipart-телом.
func (p *Proxy) sendMultipart(c fiber.Ctx, targetURL string) error {
	form, err := c.MultipartForm()
	if err != nil {
		p.log.Debug().Err(err).Msg("parse multipart")
		return fiber.NewError(fiber.StatusBadRequest, "invalid multipart data")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for key, files := range form.File {
		for _, fileHeader := range files {
			if err := copyPart(writer, key, fileHeader); err != nil {
				p.log.Warn().Err(err).Str("file", fileHeader.Filename).Msg("skip multipart file")
			}
		}
	}
	for key, values := range form.Value {
		for _, value := range values {
			if err := writer.WriteField(key, value); err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "proxy failed")
			}
		}
	}
	if err := writer.Close(); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "proxy failed")
	}

	req, err := http.NewRequestWithContext(c.Context(), c.Method(), targetURL, body)
	if err != nil {
		p.log.Error().Err(err).Str("target", targetURL).Msg("build multipart request")
		return fiber.NewError(fiber.StatusInternalServerError, "proxy failed")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return p.do(c, req)
}

func copyPart(writer *multipart.Writer, field string, fh *multipart.FileHeader) error {
	file, err := fh.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, fh.Filename))
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		h.Set("Content-Type", ct)
	}

	part, err := writer.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}

func (p *Proxy) do(c fiber.Ctx, req *http.Request) error {
	for _, name := range forwardRequestHeaders {
		if v := c.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Error().Err(err).Str("target", req.URL.String()).Msg("upstream unreachable")
		return fiber.NewError(fiber.StatusBadGateway, "failed to reach upstream service")
	}
	defer resp.Body.Close()

	return p.copyResponse(c, resp)
}

func (p *Proxy) copyResponse(c fiber.Ctx, resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		p.log.Error().Err(err).Msg("read upstream response")
		return fiber.NewError(fiber.StatusBadGateway, "invalid upstream response")
	}

	for key, values := range resp.Header {
		if skipResponseHeaders[key] {
			continue
		}
		// Add, а не Append: Append склеивает значения через запятую и ломает Set-Cookie
		for _, v := range values {
			c.Response().Header.Add(key, v)
		}
	}

	c.Status(resp.StatusCode)
	return c.Send(data)
}

package proxy

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"design-studio/internal/common/middleware"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echo struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Query       string `json:"query"`
	Auth        string `json:"auth"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
	Files       int    `json:"files"`
	Field       string `json:"field"`
}

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := echo{
			Method:      r.Method,
			Path:        r.URL.Path,
			Query:       r.URL.RawQuery,
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
		}
		if r.MultipartForm == nil && r.ParseMultipartForm(1<<20) == nil {
			out.Files = len(r.MultipartForm.File["files"])
			out.Field = r.FormValue("note")
		} else {
			body, _ := io.ReadAll(r.Body)
			out.Body = string(body)
		}
		data, _ := sonic.Marshal(out)

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "HIT")
		w.Header().Add("X-Trace", "a")
		w.Header().Add("X-Trace", "b")
		w.Header().Add("Set-Cookie", "session=abc; Path=/; Expires=Wed, 21 Oct 2026 07:28:00 GMT")
		w.Header().Add("Set-Cookie", "theme=dark; Path=/")
		w.WriteHeader(http.StatusAccepted)
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newApp(target string) *fiber.App {
	p := New(5*time.Second, zerolog.Nop())
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(zerolog.Nop())})
	api := app.Group("/api/v1")
	api.All("/users/*", p.To(target, "/api/v1"))
	return app
}

func readEcho(t *testing.T, resp *http.Response) echo {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out echo
	require.NoError(t, sonic.Unmarshal(data, &out), string(data))
	return out
}

func TestForwardRawRequest(t *testing.T) {
	upstream := newUpstream(t)
	app := newApp(upstream.URL + "/")

	req := httptest.NewRequest(http.MethodPut, "/api/v1/users/u1/designs/d1?format=png&scale=2", bytes.NewBufferString(`{"name":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer t")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	assert.Equal(t, []string{"a", "b"}, resp.Header.Values("X-Trace"))
	cookies := resp.Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "session", cookies[0].Name)
	assert.Equal(t, "abc", cookies[0].Value)
	assert.Equal(t, "theme", cookies[1].Name)
	assert.Equal(t, "dark", cookies[1].Value)

	out := readEcho(t, resp)
	assert.Equal(t, http.MethodPut, out.Method)
	assert.Equal(t, "/users/u1/designs/d1", out.Path)
	assert.Equal(t, "format=png&scale=2", out.Query)
	assert.Equal(t, "Bearer t", out.Auth)
	assert.Equal(t, `{"name":"x"}`, out.Body)
}

func TestForwardMultipart(t *testing.T) {
	upstream := newUpstream(t)
	app := newApp(upstream.URL)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, name := range []string{"a.png", "b.png"} {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		part.Write([]byte("data-" + name))
	}
	require.NoError(t, w.WriteField("note", "hello"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/u1/assets", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)

	out := readEcho(t, resp)
	assert.Equal(t, "/users/u1/assets", out.Path)
	assert.Contains(t, out.ContentType, "multipart/form-data")
	assert.Equal(t, 2, out.Files)
	assert.Equal(t, "hello", out.Field)
}

func TestForwardUpstreamDown(t *testing.T) {
	upstream := newUpstream(t)
	url := upstream.URL
	upstream.Close()

	app := newApp(url)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/users/u1", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"error":"failed to reach upstream service"}`, string(body))
}

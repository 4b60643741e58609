package handle_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/folderrelay/pkg/api"
	"github.com/yeisme/folderrelay/pkg/configs"
	"github.com/yeisme/folderrelay/pkg/forwarder"
	"github.com/yeisme/folderrelay/pkg/internal/handle"
	"github.com/yeisme/folderrelay/pkg/internal/service"
	"github.com/yeisme/folderrelay/pkg/internal/types"
	"github.com/yeisme/folderrelay/pkg/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// webhook 记录下游收到的原始 filename 与 meta.
type webhook struct {
	mu        sync.Mutex
	calls     int
	filenames []string
	meta      string
	status    int
	body      string
}

func (w *webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.calls++
	w.filenames = nil

	_, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	mr := multipart.NewReader(r.Body, params["boundary"])

	for {
		p, err := mr.NextPart()
		if err != nil {
			break
		}

		_, disp, _ := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
		raw, _ := io.ReadAll(p)

		switch disp["name"] {
		case forwarder.FilesField:
			w.filenames = append(w.filenames, disp["filename"])
		case forwarder.MetaField:
			w.meta = string(raw)
		}
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(w.status)
	_, _ = io.WriteString(rw, w.body)
}

type part struct {
	field    string
	filename string
	ctype    string
	content  string
}

// multipartBody 手工写入 Content-Disposition，保留 filename 中的目录.
func multipartBody(t *testing.T, parts []part, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		h.Set("Content-Type", p.ctype)

		w, err := mw.CreatePart(h)
		require.NoError(t, err)

		_, err = io.WriteString(w, p.content)
		require.NoError(t, err)
	}

	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}

	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func weddingParts() []part {
	return []part{
		{field: "files[]", filename: "wedding/RAW/IMG_0001.CR2", ctype: "image/x-canon-cr2", content: "raw sensor data"},
		{field: "files[]", filename: "wedding/JPEG/IMG_0001.jpg", ctype: "image/jpeg", content: "jpeg data"},
	}
}

func newEngine(t *testing.T, hook *webhook, mutate func(*configs.AppConfig)) *gin.Engine {
	t.Helper()

	srv := httptest.NewServer(hook)
	t.Cleanup(srv.Close)

	cfg := configs.Default()
	cfg.Webhook.URL = srv.URL
	cfg.Webhook.Secret = "s3cret"
	cfg.Metrics.Enabled = false

	if mutate != nil {
		mutate(cfg)
	}

	fwd := forwarder.New(forwarder.ConfigFrom(cfg.Webhook),
		forwarder.WithSleeper(func(context.Context, time.Duration) error { return nil }))

	return api.NewEngine(api.Deps{
		Config:  cfg,
		Relay:   service.NewRelayService(cfg, fwd, nil),
		Limiter: ratelimit.New(ratelimit.NewMemoryStore(), cfg.RateLimit.MaxRequests, cfg.RateLimit.Window),
	})
}

func post(engine *gin.Engine, path string, body io.Reader, ctype string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ctype)
	req.RemoteAddr = "203.0.113.7:50000"

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	return w
}

func TestUploadForwardsFolderTree(t *testing.T) {
	hook := &webhook{status: http.StatusOK, body: `{"jobId":"job-42","executionId":"9"}`}
	engine := newEngine(t, hook, nil)

	body, ctype := multipartBody(t, weddingParts(), map[string]string{"meta": `{"shootName":"Test"}`})
	w := post(engine, "/api/v1/upload", body, ctype)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp types.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.True(t, resp.OK)
	assert.Equal(t, 2, resp.FilesProcessed)
	assert.Equal(t, int64(len("raw sensor data")+len("jpeg data")), resp.TotalBytes)
	assert.NotEmpty(t, resp.BatchID)
	assert.Equal(t, "job-42", resp.JobID)
	require.NotNil(t, resp.N8nResponse)
	assert.Equal(t, http.StatusOK, resp.N8nResponse.Status)

	assert.Equal(t, 1, hook.calls)
	assert.Equal(t, []string{"wedding/RAW/IMG_0001.CR2", "wedding/JPEG/IMG_0001.jpg"}, hook.filenames)
	assert.Contains(t, hook.meta, `"shootName":"Test"`)
}

func TestUploadLegacyPath(t *testing.T) {
	hook := &webhook{status: http.StatusOK, body: `{}`}
	engine := newEngine(t, hook, nil)

	body, ctype := multipartBody(t, weddingParts(), nil)
	w := post(engine, "/api/upload", body, ctype)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, hook.calls)
}

func TestUploadMetaAsFile(t *testing.T) {
	hook := &webhook{status: http.StatusOK, body: `{}`}
	engine := newEngine(t, hook, nil)

	parts := append(weddingParts(), part{field: "meta", filename: "meta.json", ctype: "application/json", content: `{"client":"Ada"}`})
	body, ctype := multipartBody(t, parts, nil)
	w := post(engine, "/api/v1/upload", body, ctype)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, hook.meta, `"client":"Ada"`)
	assert.Len(t, hook.filenames, 2)
}

func TestUploadRejectsTraversal(t *testing.T) {
	hook := &webhook{status: http.StatusOK}
	engine := newEngine(t, hook, nil)

	body, ctype := multipartBody(t, []part{
		{field: "files[]", filename: "../../etc/passwd", ctype: "text/plain", content: "root:x:0:0"},
	}, nil)
	w := post(engine, "/api/v1/upload", body, ctype)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, hook.calls)

	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.OK)
	assert.Equal(t, service.CodeValidationFailed, resp.Error)
}

func TestUploadRejectsEmptyBatch(t *testing.T) {
	hook := &webhook{status: http.StatusOK}
	engine := newEngine(t, hook, nil)

	body, ctype := multipartBody(t, nil, map[string]string{"meta": `{}`})
	w := post(engine, "/api/v1/upload", body, ctype)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, hook.calls)
}

func TestUploadRejectsInvalidMeta(t *testing.T) {
	hook := &webhook{status: http.StatusOK}
	engine := newEngine(t, hook, nil)

	body, ctype := multipartBody(t, weddingParts(), map[string]string{"meta": `{not json`})
	w := post(engine, "/api/v1/upload", body, ctype)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, hook.calls)
}

func TestUploadNotMultipart(t *testing.T) {
	engine := newEngine(t, &webhook{status: http.StatusOK}, nil)

	w := post(engine, "/api/v1/upload", strings.NewReader(`{"files":[]}`), "application/json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadTooLarge(t *testing.T) {
	hook := &webhook{status: http.StatusOK}
	engine := newEngine(t, hook, func(cfg *configs.AppConfig) {
		cfg.Upload.MaxFileBytes = 1
		cfg.Upload.MaxTotalBytes = 1
		cfg.Upload.MemoryBytes = 1 << 10
	})

	big := strings.Repeat("x", 2<<20)
	body, ctype := multipartBody(t, []part{
		{field: "files[]", filename: "big/scan.tif", ctype: "image/tiff", content: big},
	}, nil)
	w := post(engine, "/api/v1/upload", body, ctype)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Zero(t, hook.calls)
}

func TestUploadRateLimited(t *testing.T) {
	hook := &webhook{status: http.StatusOK, body: `{}`}
	engine := newEngine(t, hook, func(cfg *configs.AppConfig) {
		cfg.RateLimit.MaxRequests = 1
		cfg.RateLimit.Window = time.Hour
	})

	body, ctype := multipartBody(t, weddingParts(), nil)
	require.Equal(t, http.StatusOK, post(engine, "/api/v1/upload", body, ctype).Code)

	body, ctype = multipartBody(t, weddingParts(), nil)
	w := post(engine, "/api/v1/upload", body, ctype)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, 1, hook.calls)

	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, service.CodeRateLimited, resp.Error)
}

func TestUploadRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	hook := &webhook{status: http.StatusOK, body: `{}`}
	engine := newEngine(t, hook, func(cfg *configs.AppConfig) {
		cfg.RateLimit.MaxRequests = 1
		cfg.RateLimit.Window = time.Hour
	})

	codes := make([]int, 0, 4)

	for i := range 4 {
		body, ctype := multipartBody(t, weddingParts(), nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
		req.Header.Set("Content-Type", ctype)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i+1))
		req.RemoteAddr = "203.0.113.7:50000"

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 1, hook.calls)
}

// trackingReader 记录请求体是否被读取.
type trackingReader struct {
	r    io.Reader
	read bool
}

func (t *trackingReader) Read(p []byte) (int, error) {
	t.read = true
	return t.r.Read(p)
}

func TestUploadMisconfigured(t *testing.T) {
	hook := &webhook{status: http.StatusOK}
	engine := newEngine(t, hook, func(cfg *configs.AppConfig) {
		cfg.Webhook.Secret = ""
	})

	body, ctype := multipartBody(t, weddingParts(), nil)
	tr := &trackingReader{r: body}
	w := post(engine, "/api/v1/upload", tr, ctype)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, tr.read)
	assert.Zero(t, hook.calls)

	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, service.CodeServerMisconfigured, resp.Error)
	assert.Equal(t, []any{"webhook.secret"}, resp.Details["missing"])
	assert.NotContains(t, w.Body.String(), "s3cret")
}

func TestUploadDownstreamFailure(t *testing.T) {
	hook := &webhook{status: http.StatusServiceUnavailable, body: `{"message":"busy"}`}
	engine := newEngine(t, hook, func(cfg *configs.AppConfig) {
		cfg.Webhook.MaxRetries = 1
	})

	body, ctype := multipartBody(t, weddingParts(), nil)
	w := post(engine, "/api/v1/upload", body, ctype)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, 2, hook.calls)

	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, service.CodeWebhookFailed, resp.Error)
	assert.EqualValues(t, http.StatusServiceUnavailable, resp.Details["downstreamStatus"])
	assert.EqualValues(t, 2, resp.Details["attempts"])
}

func TestUploadDownstreamRejects(t *testing.T) {
	hook := &webhook{status: http.StatusUnprocessableEntity, body: `{}`}
	engine := newEngine(t, hook, nil)

	body, ctype := multipartBody(t, weddingParts(), nil)
	w := post(engine, "/api/v1/upload", body, ctype)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, 1, hook.calls)
}

func TestHealth(t *testing.T) {
	engine := newEngine(t, &webhook{status: http.StatusOK}, nil)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp types.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Ready)
	assert.Equal(t, configs.AppVersion, resp.Version)
}

func TestHealthMisconfigured(t *testing.T) {
	engine := newEngine(t, &webhook{status: http.StatusOK}, func(cfg *configs.AppConfig) {
		cfg.Webhook.URL = ""
		cfg.Webhook.Secret = ""
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp types.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.False(t, resp.Ready)
	assert.Equal(t, []string{"webhook.url", "webhook.secret"}, resp.Missing)
}

func TestDefaultHandlers(t *testing.T) {
	engine := gin.New()
	engine.GET("/x", handle.DefaultHandlers{}.Upload())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

package forwarder_test

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yeisme/folderrelay/pkg/configs"
	"github.com/yeisme/folderrelay/pkg/forwarder"
	"github.com/yeisme/folderrelay/pkg/upload"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// received 假 webhook 收到的一次请求.
type received struct {
	header http.Header
	files  map[string]string // 原始 filename -> 内容
	types  map[string]string // 原始 filename -> 分段 Content-Type
	meta   []byte
}

// fakeWebhook 依次返回 statuses 中的状态码，超出后重复最后一个.
type fakeWebhook struct {
	mu       sync.Mutex
	calls    atomic.Int32
	statuses []int
	body     string
	requests []received
}

func (w *fakeWebhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	n := int(w.calls.Add(1)) - 1

	rec := received{header: r.Header.Clone(), files: map[string]string{}, types: map[string]string{}}

	mr, err := r.MultipartReader()
	if err == nil {
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}

			data, _ := io.ReadAll(part)

			// Part.FileName 会去掉目录，这里直接解析原始头
			_, params, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
			switch params["name"] {
			case forwarder.FilesField:
				rec.files[params["filename"]] = string(data)
				rec.types[params["filename"]] = part.Header.Get("Content-Type")
			case forwarder.MetaField:
				rec.meta = data
			}
		}
	}

	w.mu.Lock()
	w.requests = append(w.requests, rec)
	w.mu.Unlock()

	status := w.statuses[min(n, len(w.statuses)-1)]
	rw.WriteHeader(status)
	_, _ = io.WriteString(rw, w.body)
}

func (w *fakeWebhook) last() received {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.requests[len(w.requests)-1]
}

func newServer(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return srv
}

// recordSleeper 记录退避时长而不真正等待.
type recordSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()

	return ctx.Err()
}

func testConfig(url string) forwarder.Config {
	return forwarder.Config{
		Endpoint:     url,
		Secret:       "s3cret",
		SecretHeader: "X-Webhook-Secret",
		ClientID:     "folderrelay-test",
		Timeout:      2 * time.Second,
		MaxRetries:   2,
		Backoff:      []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond},
		MaxBodyBytes: 1024,
	}
}

func weddingBatch() *upload.Batch {
	return upload.NewBatch([]upload.Item{
		upload.BytesItem("Wedding/IMG_001.jpg", "image/jpeg", []byte("jpeg-bytes")),
		upload.BytesItem("Wedding/RAW/IMG_001.CR3", "", []byte("raw-bytes")),
	}, map[string]string{"eventId": "E1"})
}

func TestForwardRetriesThenSucceeds(t *testing.T) {
	hook := &fakeWebhook{statuses: []int{http.StatusInternalServerError, http.StatusOK}, body: `{"jobId":"J1"}`}
	srv := newServer(t, hook)
	sleeper := &recordSleeper{}

	f := forwarder.New(testConfig(srv.URL), forwarder.WithSleeper(sleeper.sleep))
	res := f.Forward(context.Background(), weddingBatch())

	assert.True(t, res.Succeeded)
	assert.Equal(t, forwarder.Success, res.State)
	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	assert.Equal(t, 1, res.AttemptsUsed)
	assert.Equal(t, 2, res.Attempts())
	assert.JSONEq(t, `{"jobId":"J1"}`, res.Body)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, sleeper.delays)
	assert.Equal(t, int32(2), hook.calls.Load())

	// 第二次尝试重新打开了文件内容
	assert.Equal(t, "raw-bytes", hook.last().files["Wedding/RAW/IMG_001.CR3"])
	assert.Equal(t, "1", hook.last().header.Get(forwarder.HeaderAttempt))
}

func TestForwardPermanentFailureIsNotRetried(t *testing.T) {
	hook := &fakeWebhook{statuses: []int{http.StatusBadRequest}, body: "bad"}
	srv := newServer(t, hook)
	sleeper := &recordSleeper{}

	res := forwarder.New(testConfig(srv.URL), forwarder.WithSleeper(sleeper.sleep)).
		Forward(context.Background(), weddingBatch())

	assert.False(t, res.Succeeded)
	assert.Equal(t, forwarder.PermanentFailure, res.State)
	assert.Equal(t, http.StatusBadRequest, res.HTTPStatus)
	assert.Equal(t, 0, res.AttemptsUsed)
	assert.Equal(t, "bad", res.Body)
	assert.Empty(t, sleeper.delays)
	assert.Equal(t, int32(1), hook.calls.Load())
}

func TestForwardExhausted(t *testing.T) {
	hook := &fakeWebhook{statuses: []int{http.StatusServiceUnavailable}}
	srv := newServer(t, hook)
	sleeper := &recordSleeper{}

	res := forwarder.New(testConfig(srv.URL), forwarder.WithSleeper(sleeper.sleep)).
		Forward(context.Background(), weddingBatch())

	assert.Equal(t, forwarder.Exhausted, res.State)
	assert.Equal(t, http.StatusServiceUnavailable, res.HTTPStatus)
	assert.Equal(t, 2, res.AttemptsUsed)
	assert.Equal(t, int32(3), hook.calls.Load())
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond}, sleeper.delays)
	assert.Error(t, res.Err)
}

func TestForwardTimeoutIsRetryable(t *testing.T) {
	release := make(chan struct{})
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	cfg.MaxRetries = 1

	res := forwarder.New(cfg, forwarder.WithSleeper((&recordSleeper{}).sleep)).
		Forward(context.Background(), weddingBatch())

	assert.Equal(t, forwarder.Exhausted, res.State)
	assert.Equal(t, 0, res.HTTPStatus)
	assert.Equal(t, 1, res.AttemptsUsed)
	assert.Error(t, res.Err)
}

func TestForwardKeepsLastObservedStatus(t *testing.T) {
	var calls atomic.Int32

	release := make(chan struct{})
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)

		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, "busy")

			return
		}

		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.Timeout = 200 * time.Millisecond
	cfg.MaxRetries = 1

	res := forwarder.New(cfg, forwarder.WithSleeper((&recordSleeper{}).sleep)).
		Forward(context.Background(), weddingBatch())

	assert.Equal(t, forwarder.Exhausted, res.State)
	assert.Equal(t, http.StatusServiceUnavailable, res.HTTPStatus)
	assert.Equal(t, "busy", res.Body)
	assert.Equal(t, 1, res.AttemptsUsed)
	assert.Equal(t, int32(2), calls.Load())
	require.Error(t, res.Err)
}

func TestForwardCanceledDuringBackoff(t *testing.T) {
	hook := &fakeWebhook{statuses: []int{http.StatusBadGateway}}
	srv := newServer(t, hook)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleeper := func(ctx context.Context, _ time.Duration) error {
		cancel()
		<-ctx.Done()

		return ctx.Err()
	}

	res := forwarder.New(testConfig(srv.URL), forwarder.WithSleeper(sleeper)).Forward(ctx, weddingBatch())

	assert.Equal(t, forwarder.Canceled, res.State)
	assert.Equal(t, 0, res.AttemptsUsed)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, int32(1), hook.calls.Load())
}

func TestForwardRequestShape(t *testing.T) {
	hook := &fakeWebhook{statuses: []int{http.StatusOK}}
	srv := newServer(t, hook)

	batch := weddingBatch()
	res := forwarder.New(testConfig(srv.URL)).Forward(context.Background(), batch)
	require.True(t, res.Succeeded)

	got := hook.last()

	mediaType, params, err := mime.ParseMediaType(got.header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)
	assert.NotEmpty(t, params["boundary"])

	assert.Equal(t, "s3cret", got.header.Get("X-Webhook-Secret"))
	assert.Equal(t, "folderrelay-test", got.header.Get(forwarder.HeaderClientID))
	assert.Equal(t, "2", got.header.Get(forwarder.HeaderFileCount))
	assert.Equal(t, "19", got.header.Get(forwarder.HeaderTotalBytes))
	assert.Equal(t, batch.ID, got.header.Get(forwarder.HeaderBatchID))
	assert.Equal(t, forwarder.MetaDigest(got.meta), got.header.Get(forwarder.HeaderMetaSHA256))

	assert.Equal(t, map[string]string{
		"Wedding/IMG_001.jpg":     "jpeg-bytes",
		"Wedding/RAW/IMG_001.CR3": "raw-bytes",
	}, got.files)
	assert.Equal(t, "image/jpeg", got.types["Wedding/IMG_001.jpg"])
	assert.Equal(t, "application/octet-stream", got.types["Wedding/RAW/IMG_001.CR3"])

	var meta struct {
		BatchID    string            `json:"batchId"`
		FileCount  int               `json:"fileCount"`
		TotalBytes int64             `json:"totalBytes"`
		Paths      []string          `json:"paths"`
		Metadata   map[string]string `json:"metadata"`
	}
	require.NoError(t, sonic.Unmarshal(got.meta, &meta))
	assert.Equal(t, batch.ID, meta.BatchID)
	assert.Equal(t, 2, meta.FileCount)
	assert.Equal(t, int64(19), meta.TotalBytes)
	assert.Equal(t, []string{"Wedding/IMG_001.jpg", "Wedding/RAW/IMG_001.CR3"}, meta.Paths)
	assert.Equal(t, "E1", meta.Metadata["eventId"])
}

func TestForwardRedirectIsPermanent(t *testing.T) {
	target := newServer(t, &fakeWebhook{statuses: []int{http.StatusOK}})
	srv := newServer(t, http.RedirectHandler(target.URL, http.StatusFound))

	res := forwarder.New(testConfig(srv.URL)).Forward(context.Background(), weddingBatch())

	assert.Equal(t, forwarder.PermanentFailure, res.State)
	assert.Equal(t, http.StatusFound, res.HTTPStatus)
}

func TestForwardWithoutEndpoint(t *testing.T) {
	res := forwarder.New(testConfig("")).Forward(context.Background(), weddingBatch())

	assert.Equal(t, forwarder.PermanentFailure, res.State)
	assert.ErrorIs(t, res.Err, forwarder.ErrNotConfigured)
}

func TestBreakerOpensAfterExhaustion(t *testing.T) {
	hook := &fakeWebhook{statuses: []int{http.StatusInternalServerError}}
	srv := newServer(t, hook)

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 0

	f := forwarder.New(cfg, forwarder.WithBreaker(configs.CircuitBreakerConfig{
		Enabled:           true,
		FailureRate:       0.5,
		MinRequests:       1,
		IntervalSeconds:   60,
		TimeoutSeconds:    60,
		MaxRequestsInHalf: 1,
	}))

	first := f.Forward(context.Background(), weddingBatch())
	assert.Equal(t, forwarder.Exhausted, first.State)

	second := f.Forward(context.Background(), weddingBatch())
	assert.Equal(t, forwarder.CircuitOpen, second.State)
	assert.ErrorIs(t, second.Err, forwarder.ErrCircuitOpen)
	assert.Equal(t, 0, second.Attempts())
	assert.Equal(t, int32(1), hook.calls.Load())
}

func TestBreakerIgnoresPermanentFailures(t *testing.T) {
	hook := &fakeWebhook{statuses: []int{http.StatusUnprocessableEntity}}
	srv := newServer(t, hook)

	f := forwarder.New(testConfig(srv.URL), forwarder.WithBreaker(configs.CircuitBreakerConfig{
		Enabled:           true,
		FailureRate:       0.1,
		MinRequests:       1,
		IntervalSeconds:   60,
		TimeoutSeconds:    60,
		MaxRequestsInHalf: 1,
	}))

	for range 3 {
		res := f.Forward(context.Background(), weddingBatch())
		assert.Equal(t, forwarder.PermanentFailure, res.State)
	}

	assert.Equal(t, int32(3), hook.calls.Load())
}

func TestMultipartBoundaryParsable(t *testing.T) {
	var boundary string

	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		boundary = params["boundary"]

		mr := multipart.NewReader(r.Body, boundary)
		form, err := mr.ReadForm(1 << 20)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer form.RemoveAll()

		if len(form.File[forwarder.FilesField]) != 2 || len(form.Value[forwarder.MetaField]) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}))

	res := forwarder.New(testConfig(srv.URL)).Forward(context.Background(), weddingBatch())

	assert.Equal(t, forwarder.Success, res.State)
	assert.Equal(t, http.StatusAccepted, res.HTTPStatus)
	assert.NotEmpty(t, boundary)
}

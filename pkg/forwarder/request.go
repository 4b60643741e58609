package forwarder

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	sha256 "github.com/minio/sha256-simd"

	"github.com/yeisme/folderrelay/pkg/configs"
	"github.com/yeisme/folderrelay/pkg/tracing"
	"github.com/yeisme/folderrelay/pkg/upload"
)

const (
	// FilesField 文件分段的表单字段名.
	FilesField = "files[]"
	// MetaField 元数据分段的表单字段名.
	MetaField = "meta"

	HeaderClientID   = "X-Relay-Client-Id"
	HeaderFileCount  = "X-Relay-File-Count"
	HeaderTotalBytes = "X-Relay-Total-Bytes"
	HeaderBatchID    = "X-Relay-Batch-Id"
	HeaderMetaSHA256 = "X-Relay-Meta-Sha256"
	HeaderAttempt    = "X-Relay-Attempt"

	defaultPartType = "application/octet-stream"
)

// envelope meta 分段的 JSON 结构.
type envelope struct {
	BatchID    string            `json:"batchId"`
	FileCount  int               `json:"fileCount"`
	TotalBytes int64             `json:"totalBytes"`
	Paths      []string          `json:"paths"`
	Metadata   map[string]string `json:"metadata"`
}

// encodeMeta 序列化 meta 分段；键按字典序输出，保证摘要稳定.
func encodeMeta(b *upload.Batch) ([]byte, error) {
	meta := b.Metadata
	if meta == nil {
		meta = map[string]string{}
	}

	data, err := sonic.ConfigStd.Marshal(envelope{
		BatchID:    b.ID,
		FileCount:  b.FileCount(),
		TotalBytes: b.TotalBytes(),
		Paths:      b.Paths(),
		Metadata:   meta,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode meta: %w", err)
	}

	return data, nil
}

// MetaDigest 返回 meta 字节的 sha256 十六进制摘要.
func MetaDigest(meta []byte) string {
	sum := sha256.Sum256(meta)
	return hex.EncodeToString(sum[:])
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// writeBody 把批次写成 multipart 正文；任何错误都会通过 CloseWithError 传递给读取端.
func writeBody(pw *io.PipeWriter, mw *multipart.Writer, b *upload.Batch, meta []byte) {
	err := func() error {
		for i, item := range b.Items {
			if err := writeFilePart(mw, item); err != nil {
				return fmt.Errorf("file %d: %w", i, err)
			}
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, MetaField))
		h.Set("Content-Type", "application/json")

		part, err := mw.CreatePart(h)
		if err != nil {
			return err
		}

		if _, err := part.Write(meta); err != nil {
			return err
		}

		return mw.Close()
	}()

	pw.CloseWithError(err)
}

func writeFilePart(mw *multipart.Writer, item upload.Item) error {
	ct := item.ContentType
	if ct == "" {
		ct = defaultPartType
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(FilesField), quoteEscaper.Replace(item.RelativePath)))
	h.Set("Content-Type", ct)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}

	if item.Open == nil {
		return nil
	}

	rc, err := item.Open()
	if err != nil {
		return fmt.Errorf("open %q: %w", item.RelativePath, err)
	}
	defer rc.Close()

	if _, err := io.Copy(part, rc); err != nil {
		return fmt.Errorf("copy %q: %w", item.RelativePath, err)
	}

	return nil
}

// buildRequest 构建一次尝试的出站请求.
// 返回的 wait 在请求结束后调用，关闭管道并等待写入协程退出.
func (f *Forwarder) buildRequest(ctx context.Context, b *upload.Batch, meta []byte, digest string, attempt int) (*http.Request, func(), error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.Endpoint, pr)
	if err != nil {
		_ = pr.Close()
		_ = pw.Close()

		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", configs.AppName+"/"+configs.AppVersion)
	req.Header.Set(f.cfg.SecretHeader, f.cfg.Secret)
	req.Header.Set(HeaderClientID, f.cfg.ClientID)
	req.Header.Set(HeaderFileCount, strconv.Itoa(b.FileCount()))
	req.Header.Set(HeaderTotalBytes, strconv.FormatInt(b.TotalBytes(), 10))
	req.Header.Set(HeaderBatchID, b.ID)
	req.Header.Set(HeaderMetaSHA256, digest)
	req.Header.Set(HeaderAttempt, strconv.Itoa(attempt))
	tracing.Inject(ctx, req.Header)

	done := make(chan struct{})

	go func() {
		defer close(done)
		writeBody(pw, mw, b, meta)
	}()

	wait := func() {
		_ = pr.Close()
		<-done
	}

	return req, wait, nil
}

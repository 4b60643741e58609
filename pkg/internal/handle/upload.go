package handle

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/folderrelay/pkg/configs"
	"github.com/yeisme/folderrelay/pkg/internal/service"
	"github.com/yeisme/folderrelay/pkg/middleware"
	"github.com/yeisme/folderrelay/pkg/upload"
)

const (
	// FilesField 文件字段；兼容不带方括号的 files.
	FilesField      = "files[]"
	filesFieldPlain = "files"
	// MetaField 元数据字段，可以是普通表单值或 JSON 文件.
	MetaField = "meta"
)

// RelayHandlers 上传与健康检查处理器.
type RelayHandlers struct {
	svc    *service.RelayService
	upload configs.UploadConfig
}

// NewRelayHandlers 创建处理器.
func NewRelayHandlers(svc *service.RelayService, uploadCfg configs.UploadConfig) *RelayHandlers {
	return &RelayHandlers{svc: svc, upload: uploadCfg}
}

// Upload 接收 multipart 上传，校验后转发到下游 webhook.
//
//	POST /api/v1/upload
//	files[]: 每个文件一个分段，filename 为目录树中的相对路径
//	meta:    可选 JSON 对象
func (h *RelayHandlers) Upload() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 先检查配置，未配置时不读取请求体
		if err := h.svc.Ready(); err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		limit := h.upload.MaxRequestBytes()
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

		if err := c.Request.ParseMultipartForm(h.upload.MemoryBytes); err != nil {
			middleware.AbortWithError(c, parseError(err, limit))
			return
		}

		form := c.Request.MultipartForm
		defer func() { _ = form.RemoveAll() }()

		meta, err := readMeta(form)
		if err != nil {
			middleware.AbortWithError(c, service.ValidationError("invalid meta field", []string{err.Error()}, nil))
			return
		}

		batch := upload.NewBatch(itemsFrom(form), meta)

		resp, err := h.svc.Process(c.Request.Context(), batch)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// parseError 把 multipart 解析错误映射为对外错误.
func parseError(err error, limit int64) error {
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &tooLarge):
		return service.TooLargeError(limit)
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
		return service.ValidationError("request must be multipart/form-data", []string{err.Error()}, nil)
	case errors.Is(err, multipart.ErrMessageTooLarge):
		return service.ValidationError("multipart body has too many parts or headers", []string{err.Error()}, nil)
	default:
		return service.ValidationError("malformed multipart body", []string{err.Error()}, nil)
	}
}

// itemsFrom 按分段顺序把文件转换为上传项.
func itemsFrom(form *multipart.Form) []upload.Item {
	headers := slices.Concat(form.File[FilesField], form.File[filesFieldPlain])
	items := make([]upload.Item, 0, len(headers))

	for _, fh := range headers {
		items = append(items, upload.Item{
			RelativePath: RawFilename(fh),
			Size:         fh.Size,
			ContentType:  fh.Header.Get("Content-Type"),
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}

	return items
}

// RawFilename 返回分段头中的原始 filename.
// multipart.FileHeader.Filename 只保留最后一段，会丢失目录结构.
func RawFilename(fh *multipart.FileHeader) string {
	if _, params, err := mime.ParseMediaType(fh.Header.Get("Content-Disposition")); err == nil {
		if name, ok := params["filename"]; ok && name != "" {
			return name
		}
	}

	return fh.Filename
}

// readMeta 读取 meta 字段：优先表单值，其次文件分段.
func readMeta(form *multipart.Form) (map[string]string, error) {
	if vals := form.Value[MetaField]; len(vals) > 0 {
		return upload.ParseMetadata([]byte(vals[0]))
	}

	files := form.File[MetaField]
	if len(files) == 0 {
		return map[string]string{}, nil
	}

	f, err := files[0].Open()
	if err != nil {
		return nil, fmt.Errorf("open meta: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, upload.MaxMetaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}

	return upload.ParseMetadata(raw)
}

package upload

import (
	"strings"
)

// Limits 批次校验限制.
type Limits struct {
	MaxFileBytes  int64
	MaxTotalBytes int64
	MaxFileCount  int
	// AllowedExtensions 小写且不含点；包含 "" 时允许无扩展名的文件
	AllowedExtensions map[string]struct{}
	// AllowedMimeTypes 为空时不检查声明类型；支持 image/* 形式的通配
	AllowedMimeTypes map[string]struct{}
	RequireMimeMatch bool
}

// NewLimits 构造 Limits，扩展名与 MIME 类型统一转为小写，扩展名去掉前导点.
func NewLimits(maxFileBytes, maxTotalBytes int64, maxFileCount int, extensions, mimeTypes []string, requireMimeMatch bool) Limits {
	l := Limits{
		MaxFileBytes:      maxFileBytes,
		MaxTotalBytes:     maxTotalBytes,
		MaxFileCount:      maxFileCount,
		AllowedExtensions: make(map[string]struct{}, len(extensions)),
		AllowedMimeTypes:  make(map[string]struct{}, len(mimeTypes)),
		RequireMimeMatch:  requireMimeMatch,
	}

	for _, e := range extensions {
		l.AllowedExtensions[strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")] = struct{}{}
	}

	for _, m := range mimeTypes {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			l.AllowedMimeTypes[m] = struct{}{}
		}
	}

	return l
}

// extensionAllowed 报告扩展名是否在白名单中.
func (l Limits) extensionAllowed(ext string) bool {
	_, ok := l.AllowedExtensions[ext]
	return ok
}

// mimeAllowed 报告媒体类型是否在白名单中，支持 type/* 通配.
func (l Limits) mimeAllowed(mediaType string) bool {
	if _, ok := l.AllowedMimeTypes[mediaType]; ok {
		return true
	}

	if major, _, ok := strings.Cut(mediaType, "/"); ok {
		if _, ok := l.AllowedMimeTypes[major+"/*"]; ok {
			return true
		}
	}

	return false
}

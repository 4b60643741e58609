package configs

import (
	"github.com/spf13/viper"
)

const (
	DefaultUploadMaxFileBytes  = 100 << 20  // 单文件上限 100MB
	DefaultUploadMaxTotalBytes = 1024 << 20 // 批量总上限 1GB
	DefaultUploadMaxFileCount  = 500        // 单批文件数上限
	DefaultUploadMemoryBytes   = 32 << 20   // multipart 解析时保留在内存中的字节数
)

// DefaultAllowedExtensions 默认允许的扩展名（小写，不含点）.
var DefaultAllowedExtensions = []string{
	"jpg", "jpeg", "png", "gif", "webp", "heic", "heif", "tif", "tiff",
	"cr2", "cr3", "nef", "arw", "dng", "raf", "orf", "rw2", "xmp",
	"mp4", "mov", "pdf", "txt", "json", "csv",
}

// UploadConfig 上传校验限制.
type UploadConfig struct {
	MaxFileBytes      int64    `mapstructure:"max_file_bytes"      rule:"min=1"`
	MaxTotalBytes     int64    `mapstructure:"max_total_bytes"     rule:"min=1,gtefield=MaxFileBytes"`
	MaxFileCount      int      `mapstructure:"max_file_count"      rule:"min=1"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"  rule:"min=1,dive,ext"`
	AllowedMimeTypes  []string `mapstructure:"allowed_mime_types"` // 为空时不检查，支持 image/* 通配
	RequireMimeMatch  bool     `mapstructure:"require_mime_match"` // 嗅探内容并与声明类型比对
	MemoryBytes       int64    `mapstructure:"memory_bytes"        rule:"min=0"`
}

// MaxRequestBytes 返回入站请求体上限：总字节上限加上 multipart 编码开销.
func (u *UploadConfig) MaxRequestBytes() int64 {
	const overhead = 1 << 20

	return u.MaxTotalBytes + overhead
}

// setDefaults 设置上传配置的默认值.
func (u *UploadConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("upload.max_file_bytes", DefaultUploadMaxFileBytes)
	v.SetDefault("upload.max_total_bytes", DefaultUploadMaxTotalBytes)
	v.SetDefault("upload.max_file_count", DefaultUploadMaxFileCount)
	v.SetDefault("upload.allowed_extensions", DefaultAllowedExtensions)
	v.SetDefault("upload.allowed_mime_types", []string{})
	v.SetDefault("upload.require_mime_match", false)
	v.SetDefault("upload.memory_bytes", DefaultUploadMemoryBytes)
}

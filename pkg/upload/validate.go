package upload

import (
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/yeisme/folderrelay/pkg/pathnorm"
)

// Result 校验结果；Valid 当且仅当 Errors 为空，Warnings 不影响结果.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validate 对整个批次执行全部规则并收集所有错误与警告，不会在第一个错误处停止.
func Validate(b *Batch, l Limits) Result {
	var r Result

	count := b.FileCount()

	switch {
	case count == 0:
		r.Errors = append(r.Errors, "no files in upload")
	case count > l.MaxFileCount:
		r.Errors = append(r.Errors, fmt.Sprintf("too many files: %d (limit %d)", count, l.MaxFileCount))
	}

	if total := b.TotalBytes(); total > l.MaxTotalBytes {
		r.Errors = append(r.Errors, fmt.Sprintf("total size %d bytes exceeds limit of %d bytes", total, l.MaxTotalBytes))
	}

	seen := make(map[string]int, count)

	for i, it := range b.Items {
		name := it.RelativePath

		// 扩展名与重复检查基于规范化后的路径，规范化失败时退回原始路径
		norm := name
		if p, err := pathnorm.Normalize(name); err == nil {
			norm = p
		}

		if it.Size > l.MaxFileBytes {
			r.Errors = append(r.Errors, fmt.Sprintf("file %q is %d bytes, exceeds per-file limit of %d bytes", name, it.Size, l.MaxFileBytes))
		}

		if ext := Extension(norm); !l.extensionAllowed(ext) {
			if ext == "" {
				r.Errors = append(r.Errors, fmt.Sprintf("file %q has no extension", norm))
			} else {
				r.Errors = append(r.Errors, fmt.Sprintf("file %q has extension %q which is not allowed", norm, ext))
			}
		}

		declared := MediaType(it.ContentType)
		if len(l.AllowedMimeTypes) > 0 && !l.mimeAllowed(declared) {
			r.Errors = append(r.Errors, fmt.Sprintf("file %q has content type %q which is not allowed", name, declared))
		}

		if l.RequireMimeMatch {
			checkContent(&r, it, declared)
		}

		if first, dup := seen[norm]; dup {
			r.Warnings = append(r.Warnings, fmt.Sprintf("duplicate path %q (files %d and %d)", norm, first, i))
		} else {
			seen[norm] = i
		}

		if it.Size == 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("file %q is empty", name))
		}
	}

	r.Valid = len(r.Errors) == 0

	return r
}

// checkContent 嗅探文件内容并与声明类型比对.
func checkContent(r *Result, it Item, declared string) {
	name := it.RelativePath

	if declared == "" || declared == "application/octet-stream" {
		return
	}

	if it.Open == nil {
		r.Errors = append(r.Errors, fmt.Sprintf("file %q content is unavailable for type detection", name))
		return
	}

	rc, err := it.Open()
	if err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("file %q could not be read: %v", name, err))
		return
	}
	defer rc.Close()

	detected, err := mimetype.DetectReader(rc)
	if err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("file %q could not be read: %v", name, err))
		return
	}

	if detected.Is("application/octet-stream") {
		r.Warnings = append(r.Warnings, fmt.Sprintf("file %q content type could not be detected", name))
		return
	}

	for m := detected; m != nil; m = m.Parent() {
		if m.Is(declared) {
			return
		}
	}

	r.Errors = append(r.Errors, fmt.Sprintf("file %q declared as %q but content looks like %q", name, declared, detected.String()))
}

// Extension 返回文件名最后一个点之后的小写后缀；没有点时返回空串.
func Extension(p string) string {
	base := pathnorm.Base(strings.ReplaceAll(p, `\`, "/"))

	i := strings.LastIndexByte(base, '.')
	if i < 0 {
		return ""
	}

	return strings.ToLower(base[i+1:])
}

// MediaType 返回去掉参数并转为小写的媒体类型.
func MediaType(contentType string) string {
	if contentType == "" {
		return ""
	}

	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}

	mt, _, _ := strings.Cut(contentType, ";")

	return strings.ToLower(strings.TrimSpace(mt))
}

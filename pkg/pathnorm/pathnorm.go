// Package pathnorm 规范化客户端提交的相对路径.
//
// 规则按路径段处理：`.` 段被丢弃，`..` 段使整个路径无效（直接失败而不是剥离），
// 因此 a..b.jpg 这类在段内部含有 `..` 的文件名会原样保留.
package pathnorm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath 路径为空、包含穿越段或非法字符.
var ErrInvalidPath = errors.New("invalid path")

// allowed 报告 r 是否属于允许的字符集：字母数字、`-`、`_`、`.`、`/` 和空格.
func allowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.', r == '/', r == ' ':
		return true
	default:
		return false
	}
}

// Normalize 返回规范化后的相对路径，失败时返回包装 ErrInvalidPath 的错误.
//
//	Normalize("a//b///c")          == "a/b/c"
//	Normalize(`wedding\RAW\x.CR2`) == "wedding/RAW/x.CR2"
//	Normalize("../../etc/passwd")  -> ErrInvalidPath
func Normalize(p string) (string, error) {
	if strings.IndexByte(p, 0) >= 0 {
		return "", fmt.Errorf("%w: contains null byte", ErrInvalidPath)
	}

	p = strings.ReplaceAll(p, `\`, "/")

	segments := strings.Split(p, "/")
	kept := segments[:0]

	for _, seg := range segments {
		switch seg {
		case "", ".":
			// 前导斜杠、重复斜杠、尾部斜杠和当前目录段
			continue
		case "..":
			return "", fmt.Errorf("%w: %q contains a parent-directory segment", ErrInvalidPath, p)
		}

		for _, r := range seg {
			if !allowed(r) {
				return "", fmt.Errorf("%w: %q contains disallowed character %q", ErrInvalidPath, p, r)
			}
		}

		kept = append(kept, seg)
	}

	if len(kept) == 0 {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	return strings.Join(kept, "/"), nil
}

// Base 返回规范化路径的最后一段（文件名）.
func Base(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}

	return p
}

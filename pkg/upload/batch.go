// Package upload 定义一次上传请求中的文件集合（Batch）及其校验规则.
package upload

import (
	"bytes"
	crand "crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid"

	"github.com/yeisme/folderrelay/pkg/pathnorm"
)

var (
	// 单调熵源不是并发安全的，由 entropyMu 保护.
	ulidEntropy = ulid.Monotonic(crand.Reader, 0)
	entropyMu   sync.Mutex
)

// Item 批次中的单个文件.
type Item struct {
	RelativePath string // 目录树中的相对路径，转发前必须已规范化
	Size         int64
	ContentType  string
	// Open 返回文件内容，每次转发尝试都会调用一次，因此必须可重复打开.
	Open func() (io.ReadCloser, error)
}

// BytesItem 用内存中的内容构造 Item.
func BytesItem(path, contentType string, data []byte) Item {
	return Item{
		RelativePath: path,
		Size:         int64(len(data)),
		ContentType:  contentType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Batch 一次上传请求提交的全部文件与元数据.
// 总字节数与文件数在 NewBatch 中计算一次，校验与出站请求头复用同一结果.
type Batch struct {
	ID       string
	Items    []Item
	Metadata map[string]string

	totalBytes int64
	fileCount  int
}

// NewBatch 创建批次并生成新的批次 ID.
func NewBatch(items []Item, metadata map[string]string) *Batch {
	return newBatch(NewBatchID(time.Now().UTC()), items, metadata)
}

func newBatch(id string, items []Item, metadata map[string]string) *Batch {
	if metadata == nil {
		metadata = map[string]string{}
	}

	var total int64
	for _, it := range items {
		total += it.Size
	}

	return &Batch{
		ID:         id,
		Items:      items,
		Metadata:   metadata,
		totalBytes: total,
		fileCount:  len(items),
	}
}

// NewBatchID 生成 ULID 形式的批次 ID.
func NewBatchID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), ulidEntropy).String()
}

// TotalBytes 返回批次总字节数.
func (b *Batch) TotalBytes() int64 { return b.totalBytes }

// FileCount 返回批次文件数.
func (b *Batch) FileCount() int { return b.fileCount }

// Paths 按顺序返回所有文件的相对路径.
func (b *Batch) Paths() []string {
	paths := make([]string, len(b.Items))
	for i, it := range b.Items {
		paths[i] = it.RelativePath
	}

	return paths
}

// Normalized 返回所有路径均已规范化的新批次，ID 与统计值保持不变.
// 任一路径无法规范化时返回包装 pathnorm.ErrInvalidPath 的错误.
func (b *Batch) Normalized() (*Batch, error) {
	items := make([]Item, len(b.Items))

	for i, it := range b.Items {
		p, err := pathnorm.Normalize(it.RelativePath)
		if err != nil {
			return nil, fmt.Errorf("file %d: %w", i, err)
		}

		it.RelativePath = p
		items[i] = it
	}

	nb := *b
	nb.Items = items

	return &nb, nil
}

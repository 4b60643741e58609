package upload_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/folderrelay/pkg/pathnorm"
	"github.com/yeisme/folderrelay/pkg/upload"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func limits() upload.Limits {
	return upload.NewLimits(100, 250, 3, []string{"jpg", ".CR2", "png", "txt"}, nil, false)
}

func sized(path string, n int) upload.Item {
	return upload.BytesItem(path, "application/octet-stream", make([]byte, n))
}

func TestValidateTotalBoundary(t *testing.T) {
	l := limits()

	atLimit := upload.NewBatch([]upload.Item{sized("a.jpg", 100), sized("b.jpg", 100), sized("c.jpg", 50)}, nil)
	res := upload.Validate(atLimit, l)
	assert.True(t, res.Valid, res.Errors)

	over := upload.NewBatch([]upload.Item{sized("a.jpg", 100), sized("b.jpg", 100), sized("c.jpg", 51)}, nil)
	res = upload.Validate(over, l)
	require.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "total size 251")
}

func TestValidateOversizedFileNamedAlone(t *testing.T) {
	b := upload.NewBatch([]upload.Item{
		sized("ok/one.jpg", 10),
		sized("big/huge.CR2", 101),
		sized("ok/script.exe", 5),
	}, nil)

	res := upload.Validate(b, upload.NewLimits(100, 1000, 10, []string{"jpg", "cr2"}, nil, false))
	require.False(t, res.Valid)
	require.Len(t, res.Errors, 2)

	var sizeErrs []string

	for _, e := range res.Errors {
		if strings.Contains(e, "per-file limit") {
			sizeErrs = append(sizeErrs, e)
		}
	}

	require.Len(t, sizeErrs, 1)
	assert.Contains(t, sizeErrs[0], "big/huge.CR2")
	assert.NotContains(t, sizeErrs[0], "ok/one.jpg")
	assert.Contains(t, strings.Join(res.Errors, "\n"), `"exe"`)
}

func TestValidateCount(t *testing.T) {
	l := limits()

	res := upload.Validate(upload.NewBatch(nil, nil), l)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"no files in upload"}, res.Errors)

	many := upload.NewBatch([]upload.Item{sized("1.jpg", 1), sized("2.jpg", 1), sized("3.jpg", 1), sized("4.jpg", 1)}, nil)
	res = upload.Validate(many, l)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "too many files: 4")
}

func TestValidateExtensions(t *testing.T) {
	l := limits()

	res := upload.Validate(upload.NewBatch([]upload.Item{sized("wedding/RAW/IMG_0001.CR2", 1)}, nil), l)
	assert.True(t, res.Valid, res.Errors)

	res = upload.Validate(upload.NewBatch([]upload.Item{sized("Makefile", 1)}, nil), l)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "no extension")

	// 目录名中的点不算扩展名
	res = upload.Validate(upload.NewBatch([]upload.Item{sized("v1.2/README", 1)}, nil), l)
	assert.False(t, res.Valid)

	withEmpty := upload.NewLimits(100, 1000, 10, []string{"jpg", ""}, nil, false)
	res = upload.Validate(upload.NewBatch([]upload.Item{sized("Makefile", 1)}, nil), withEmpty)
	assert.True(t, res.Valid, res.Errors)
}

func TestValidateExtensionUsesNormalizedPath(t *testing.T) {
	l := limits()

	for _, raw := range []string{"shoot/IMG.jpg/", "shoot/IMG.jpg/.", `shoot\IMG.jpg`} {
		res := upload.Validate(upload.NewBatch([]upload.Item{sized(raw, 1)}, nil), l)
		assert.True(t, res.Valid, "%s: %v", raw, res.Errors)
	}

	res := upload.Validate(upload.NewBatch([]upload.Item{sized("shoot/notes.exe/", 1)}, nil), l)
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], `"shoot/notes.exe"`)
}

func TestValidateMimeTypes(t *testing.T) {
	l := upload.NewLimits(100, 1000, 10, []string{"jpg", "txt"}, []string{"image/*", "text/plain"}, false)

	items := []upload.Item{
		upload.BytesItem("a.jpg", "image/jpeg", []byte("x")),
		upload.BytesItem("b.txt", "Text/Plain; charset=utf-8", []byte("x")),
	}
	res := upload.Validate(upload.NewBatch(items, nil), l)
	assert.True(t, res.Valid, res.Errors)

	bad := []upload.Item{upload.BytesItem("c.txt", "application/pdf", []byte("x"))}
	res = upload.Validate(upload.NewBatch(bad, nil), l)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], `"application/pdf"`)
}

func TestValidateWarnings(t *testing.T) {
	b := upload.NewBatch([]upload.Item{
		sized("a/b.jpg", 3),
		sized("a//b.jpg", 3),
		sized("empty.txt", 0),
	}, nil)

	res := upload.Validate(b, limits())
	assert.True(t, res.Valid, res.Errors)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], `duplicate path "a/b.jpg"`)
	assert.Contains(t, res.Warnings[1], "empty.txt")
}

func TestValidateRequireMimeMatch(t *testing.T) {
	l := upload.NewLimits(1000, 10000, 10, []string{"png", "jpg", "bin"}, nil, true)

	ok := upload.NewBatch([]upload.Item{upload.BytesItem("a.png", "image/png", pngHeader)}, nil)
	res := upload.Validate(ok, l)
	assert.True(t, res.Valid, res.Errors)

	lying := upload.NewBatch([]upload.Item{upload.BytesItem("a.jpg", "image/jpeg", pngHeader)}, nil)
	res = upload.Validate(lying, l)
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], `content looks like "image/png"`)

	unknown := upload.NewBatch([]upload.Item{upload.BytesItem("a.bin", "image/png", []byte{0x00, 0x01, 0x02, 0xfe, 0xff})}, nil)
	res = upload.Validate(unknown, l)
	assert.True(t, res.Valid, res.Errors)
	assert.Len(t, res.Warnings, 1)
}

func TestBatchTotalsAndNormalize(t *testing.T) {
	b := upload.NewBatch([]upload.Item{sized(`wedding\RAW\IMG_0001.CR2`, 7), sized("//wedding/JPEG/IMG_0001.jpg", 5)}, map[string]string{"shootName": "Test"})
	assert.Equal(t, int64(12), b.TotalBytes())
	assert.Equal(t, 2, b.FileCount())
	assert.Len(t, b.ID, 26)

	n, err := b.Normalized()
	require.NoError(t, err)
	assert.Equal(t, []string{"wedding/RAW/IMG_0001.CR2", "wedding/JPEG/IMG_0001.jpg"}, n.Paths())
	assert.Equal(t, b.ID, n.ID)
	assert.Equal(t, b.TotalBytes(), n.TotalBytes())
	assert.Equal(t, "Test", n.Metadata["shootName"])

	// 原批次不被修改
	assert.Equal(t, `wedding\RAW\IMG_0001.CR2`, b.Items[0].RelativePath)

	bad := upload.NewBatch([]upload.Item{sized("ok.jpg", 1), sized("../../etc/passwd", 1)}, nil)
	_, err = bad.Normalized()
	assert.True(t, errors.Is(err, pathnorm.ErrInvalidPath))
}

func TestBatchIDsUnique(t *testing.T) {
	seen := map[string]bool{}

	for range 100 {
		id := upload.NewBatch(nil, nil).ID
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "cr2", upload.Extension("wedding/RAW/IMG_0001.CR2"))
	assert.Equal(t, "gz", upload.Extension("a/b.tar.gz"))
	assert.Equal(t, "", upload.Extension("dir.d/file"))
	assert.Equal(t, "", upload.Extension("trailing."))
}

package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func zipOf(t *testing.T, files ...File) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.Name)
		require.NoError(t, err)
		_, err = w.Write(f.Data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func names(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}

func TestExtractPlainDocument(t *testing.T) {
	x := New(8, 0, discardLogger())
	got, err := x.Extract(context.Background(), File{Name: "doc.XML", Data: []byte("<a/>")})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc.XML"}, names(got))
}

func TestExtractNestedArchives(t *testing.T) {
	inner := zipOf(t,
		File{Name: "one.xml", Data: []byte("<one/>")},
		File{Name: "two.xml", Data: []byte("<two/>")},
	)
	outer := zipOf(t, File{Name: "inner.zip", Data: inner})

	x := New(8, 0, discardLogger())
	got, err := x.Extract(context.Background(), File{Name: "outer.zip", Data: outer})
	require.NoError(t, err)
	assert.Equal(t, []string{"one.xml", "two.xml"}, names(got))
	assert.Equal(t, []byte("<two/>"), got[1].Data)
}

func TestExtractPreservesOrderAcrossLevels(t *testing.T) {
	inner := zipOf(t, File{Name: "b.xml", Data: []byte("b")})
	outer := zipOf(t,
		File{Name: "a.xml", Data: []byte("a")},
		File{Name: "b.zip", Data: inner},
		File{Name: "c.xml", Data: []byte("c")},
	)
	x := New(8, 0, discardLogger())
	got, err := x.Extract(context.Background(), File{Name: "outer.zip", Data: outer})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.xml", "b.xml", "c.xml"}, names(got))
}

func TestExtractSkipsSignaturesAndUnknown(t *testing.T) {
	outer := zipOf(t,
		File{Name: "doc.xml", Data: []byte("<a/>")},
		File{Name: "doc.xml.sig", Data: []byte("sig")},
		File{Name: "readme.txt", Data: []byte("hi")},
	)
	x := New(8, 0, discardLogger())
	got, err := x.Extract(context.Background(), File{Name: "outer.zip", Data: outer})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc.xml"}, names(got))
}

func TestExtractDepthLimit(t *testing.T) {
	level3 := zipOf(t, File{Name: "deep.xml", Data: []byte("deep")})
	level2 := zipOf(t, File{Name: "l3.zip", Data: level3}, File{Name: "mid.xml", Data: []byte("mid")})
	level1 := zipOf(t, File{Name: "l2.zip", Data: level2})

	x := New(2, 0, discardLogger())
	got, err := x.Extract(context.Background(), File{Name: "l1.zip", Data: level1})
	require.NoError(t, err)
	assert.Equal(t, []string{"mid.xml"}, names(got))

	x = New(3, 0, discardLogger())
	got, err = x.Extract(context.Background(), File{Name: "l1.zip", Data: level1})
	require.NoError(t, err)
	assert.Equal(t, []string{"deep.xml", "mid.xml"}, names(got))
}

func TestExtractCorruptRoot(t *testing.T) {
	x := New(8, 0, discardLogger())
	_, err := x.Extract(context.Background(), File{Name: "broken.zip", Data: []byte("not a zip")})
	var aerr *ArchiveError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, "broken.zip", aerr.Name)
}

func TestExtractCorruptNestedIsSkipped(t *testing.T) {
	outer := zipOf(t,
		File{Name: "broken.zip", Data: []byte("not a zip")},
		File{Name: "ok.xml", Data: []byte("<ok/>")},
	)
	x := New(8, 0, discardLogger())
	got, err := x.Extract(context.Background(), File{Name: "outer.zip", Data: outer})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.xml"}, names(got))
}

func TestExtractSizeBudget(t *testing.T) {
	outer := zipOf(t, File{Name: "big.xml", Data: bytes.Repeat([]byte("x"), 1024)})
	x := New(8, 100, discardLogger())
	_, err := x.Extract(context.Background(), File{Name: "outer.zip", Data: outer})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooLarge)
}

package filestore

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donhautea/SSS-CMS/core"
	"github.com/donhautea/SSS-CMS/core/memo"
)

func newTestStore(t *testing.T) *store {
	t.Helper()
	conf := &core.Config{WorkDir: t.TempDir()}
	conf.Database.FilesDir = "memo_files"
	s, err := New(conf)
	require.NoError(t, err)
	return s
}

func TestSaveOpenRemove(t *testing.T) {
	s := newTestStore(t)

	path, err := s.Save(1, "report.pdf", strings.NewReader("pdf bytes"))
	require.NoError(t, err)
	assert.Contains(t, path, "memo_1")
	assert.True(t, strings.HasSuffix(path, "_report.pdf"))

	rc, err := s.Open(path)
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "pdf bytes", string(content))

	// same filename does not clobber
	path2, err := s.Save(1, "report.pdf", strings.NewReader("other bytes"))
	require.NoError(t, err)
	assert.NotEqual(t, path, path2)

	require.NoError(t, s.Remove(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// removing again is fine
	assert.NoError(t, s.Remove(path))
}

func TestRemoveAll(t *testing.T) {
	s := newTestStore(t)

	path, err := s.Save(7, "a.txt", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = s.Save(7, "b.txt", strings.NewReader("b"))
	require.NoError(t, err)

	require.NoError(t, s.RemoveAll(7))
	_, err = os.Stat(filepath.Dir(path))
	assert.True(t, os.IsNotExist(err))
}

func TestZip(t *testing.T) {
	s := newTestStore(t)

	p1, err := s.Save(3, "a.txt", strings.NewReader("aaa"))
	require.NoError(t, err)
	p2, err := s.Save(3, "b.txt", strings.NewReader("bbb"))
	require.NoError(t, err)

	atts := []memo.Attachment{
		{MemoID: 3, Filename: "a.txt", Path: p1},
		{MemoID: 3, Filename: "b.txt", Path: p2},
		{MemoID: 3, Filename: "gone.txt", Path: filepath.Join(t.TempDir(), "missing")},
	}

	var buf bytes.Buffer
	require.NoError(t, s.Zip(&buf, atts))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	names := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		names[f.Name] = string(content)
	}
	// missing file skipped, originals kept flat under their upload names
	assert.Equal(t, map[string]string{"a.txt": "aaa", "b.txt": "bbb"}, names)
}

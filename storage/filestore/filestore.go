// Package filestore keeps memo attachments on the local filesystem, one
// directory per memo under the configured files dir.
package filestore

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/donhautea/SSS-CMS/core"
	"github.com/donhautea/SSS-CMS/core/memo"
)

type store struct {
	root string
}

var _ memo.FileStore = (*store)(nil) // interface compliance check

func New(conf *core.Config) (*store, error) {
	root := conf.Database.FilesDir
	if !filepath.IsAbs(root) {
		root = filepath.Join(conf.WorkDir, root)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating files dir")
	}
	return &store{root: root}, nil
}

func (s *store) memoDir(memoID int) string {
	return filepath.Join(s.root, fmt.Sprintf("memo_%d", memoID))
}

// Save writes the upload under the memo's directory. The stored name is
// prefixed with a random id so same-named uploads never clobber each
// other; the original filename lives in the database.
func (s *store) Save(memoID int, filename string, r io.Reader) (string, error) {
	dir := s.memoDir(memoID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating memo dir")
	}

	path := filepath.Join(dir, uuid.New().String()+"_"+filepath.Base(filename))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "creating file")
	}
	defer f.Close()

	if _, err = io.Copy(f, r); err != nil {
		_ = os.Remove(path)
		return "", errors.Wrap(err, "writing file")
	}
	return path, nil
}

func (s *store) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	return f, errors.Wrap(err, "opening file")
}

func (s *store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing file")
	}
	return nil
}

func (s *store) RemoveAll(memoID int) error {
	return errors.Wrap(os.RemoveAll(s.memoDir(memoID)), "removing memo dir")
}

// Zip bundles the attachments flat, under their original filenames.
// Unreadable files are skipped rather than failing the whole archive.
func (s *store) Zip(w io.Writer, atts []memo.Attachment) error {
	zw := zip.NewWriter(w)
	for _, att := range atts {
		f, err := os.Open(att.Path)
		if err != nil {
			continue
		}
		entry, err := zw.Create(att.Filename)
		if err != nil {
			f.Close()
			return errors.Wrap(err, "creating zip entry")
		}
		if _, err = io.Copy(entry, f); err != nil {
			f.Close()
			return errors.Wrap(err, "writing zip entry")
		}
		f.Close()
	}
	return errors.Wrap(zw.Close(), "finalizing zip")
}

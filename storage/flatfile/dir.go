// Package flatfile stores legacy JSON documents as files of one data directory.
package flatfile

import (
	"os"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/trezcool/calisma/core/dualstore"
)

const ext = ".json"

var errInvalidName = errors.New("invalid file name")

// Dir is a flat directory of JSON documents.
type Dir struct {
	fs afero.Fs
}

var _ dualstore.Files = (*Dir)(nil) // interface compliance check

// Open returns the data directory at root, creating it when missing.
func Open(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating data directory")
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), root)), nil
}

// New wraps an existing filesystem, such as afero.NewMemMapFs in tests.
func New(fs afero.Fs) *Dir {
	return &Dir{fs: fs}
}

func checkName(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", errors.Wrapf(errInvalidName, "%q", name)
	}
	return "/" + name, nil
}

func (d *Dir) ReadFile(name string) ([]byte, error) {
	p, err := checkName(name)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(d.fs, p)
}

// WriteFile replaces the file through a temporary file, so readers never see a partial document.
func (d *Dir) WriteFile(name string, data []byte) error {
	p, err := checkName(name)
	if err != nil {
		return err
	}
	tmp, err := afero.TempFile(d.fs, "/", "."+name+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "writing %s", name)
	}
	tmpName := path.Join("/", path.Base(tmp.Name()))
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = d.fs.Remove(tmpName)
		return errors.Wrapf(err, "writing %s", name)
	}
	if err = tmp.Close(); err != nil {
		_ = d.fs.Remove(tmpName)
		return errors.Wrapf(err, "writing %s", name)
	}
	if err = d.fs.Rename(tmpName, p); err != nil {
		_ = d.fs.Remove(tmpName)
		return errors.Wrapf(err, "writing %s", name)
	}
	return nil
}

func (d *Dir) Exists(name string) (bool, error) {
	p, err := checkName(name)
	if err != nil {
		return false, err
	}
	return afero.Exists(d.fs, p)
}

// List returns the names of the JSON documents, sorted.
func (d *Dir) List() ([]string, error) {
	infos, err := afero.ReadDir(d.fs, "/")
	if err != nil {
		return nil, errors.Wrap(err, "listing data directory")
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *Dir) Remove(name string) error {
	p, err := checkName(name)
	if err != nil {
		return err
	}
	return d.fs.Remove(p)
}

package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PersistenceError reports a failed write or rename of a dataset file. The
// previously saved file is left intact.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("dataset: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Load reads a dataset file. A missing file yields an empty dataset.
func Load[R Record](path string) (*Dataset[R], error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Debug("dataset file not found, starting empty", zap.String("path", path))
		return New[R](), nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}

	ds := New[R]()
	if err := json.Unmarshal(data, ds); err != nil {
		return nil, eris.Wrapf(err, "dataset: parse %s", path)
	}
	return ds, nil
}

// Save writes the dataset to path atomically: the document is written and
// synced to a temp file in the same directory, then renamed into place.
func Save[R Record](ds *Dataset[R], path string) error {
	tmp, err := writeTemp(ds, path)
	if err != nil {
		return err
	}
	return commit(tmp, path)
}

func writeTemp[R Record](ds *Dataset[R], path string) (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", &PersistenceError{Path: path, Op: "encode", Err: err}
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", &PersistenceError{Path: path, Op: "create temp", Err: err}
	}
	tmp := f.Name()

	fail := func(op string, err error) (string, error) {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", &PersistenceError{Path: path, Op: op, Err: err}
	}

	if _, err := f.Write(data); err != nil {
		return fail("write temp", err)
	}
	if err := f.Sync(); err != nil {
		return fail("sync temp", err)
	}
	if err := f.Chmod(0o644); err != nil {
		return fail("chmod temp", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", &PersistenceError{Path: path, Op: "close temp", Err: err}
	}
	return tmp, nil
}

func commit(tmp, path string) error {
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &PersistenceError{Path: path, Op: "rename", Err: err}
	}
	return nil
}

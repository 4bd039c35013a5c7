// Package filestore keeps every key as a JSON file in one directory,
// the on-disk equivalent of browser local storage.
package filestore

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-offline/core"
)

var (
	keyRegex = regexp.MustCompile(`^[\w.\-]+$`)

	// errors
	ErrInvalidKey = errors.New("invalid storage key")
)

type Storage struct {
	mu  sync.RWMutex
	dir string
}

var _ core.StorageCloser = (*Storage)(nil)

// Open creates dir if needed.
func Open(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "creating storage dir %s", dir)
	}
	return &Storage{dir: dir}, nil
}

func (s *Storage) path(key string) (string, error) {
	if !keyRegex.MatchString(key) {
		return "", errors.Wrapf(ErrInvalidKey, "%q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

func (s *Storage) GetItem(key string) ([]byte, bool, error) {
	fp, err := s.path(key)
	if err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := ioutil.ReadFile(fp)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "reading %s", fp)
	}
	return data, true, nil
}

// SetItem writes to a temp file then renames it over the old one, so readers never see half a blob.
func (s *Storage) SetItem(key string, value []byte) error {
	fp, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := ioutil.TempFile(s.dir, "."+key+"-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() // no-op after rename

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "writing %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", tmpName)
	}
	if err := os.Rename(tmpName, fp); err != nil {
		return errors.Wrapf(err, "renaming to %s", fp)
	}
	return nil
}

func (s *Storage) RemoveItem(key string) error {
	fp, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(fp); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s", fp)
	}
	return nil
}

func (s *Storage) Dir() string { return s.dir }

func (s *Storage) Close() error { return nil }

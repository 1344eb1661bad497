package store

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Store persists snapshot files as flat JSON, overwritten wholesale on each
// save. Writes go through a temp file and rename so a crash mid-save never
// leaves a truncated snapshot behind.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Load decodes the named snapshot into v. A missing file is not an error;
// the caller keeps its zero-value defaults and ok is false.
func (s *Store) Load(name string, v any) (ok bool, err error) {
	f, err := os.Open(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Save(name string, v any) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}

	path := s.Path(name)
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return err
	}
	f.Sync()
	f.Close()

	return os.Rename(tmpPath, path)
}

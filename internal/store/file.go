package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Store loads and saves the whole record.
type Store interface {
	// Load returns the stored record. If the stored record is missing,
	// unreadable or carries another schema version, Load saves and returns
	// Defaults() together with an error wrapping ErrConfigVersionMismatch.
	// Any other error means no usable record could be produced.
	Load() (Record, error)

	// Save replaces the stored record.
	Save(Record) error
}

// FileStore keeps the record as a YAML file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path. The file is created on first Load.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the record from disk.
func (s *FileStore) Load() (Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return s.reset(fmt.Errorf("%w: no record at %s", ErrConfigVersionMismatch, s.path))
	}
	if err != nil {
		return Record{}, fmt.Errorf("read record: %w", err)
	}

	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return s.reset(fmt.Errorf("%w: unreadable record: %v", ErrConfigVersionMismatch, err))
	}
	if rec.Version != SchemaVersion {
		return s.reset(fmt.Errorf("%w: found %d, want %d", ErrConfigVersionMismatch, rec.Version, SchemaVersion))
	}
	if err := rec.Validate(); err != nil {
		return s.reset(fmt.Errorf("%w: %v", ErrConfigVersionMismatch, err))
	}
	return rec, nil
}

func (s *FileStore) reset(cause error) (Record, error) {
	rec := Defaults()
	if err := s.Save(rec); err != nil {
		return rec, fmt.Errorf("save defaults: %w", err)
	}
	return rec, cause
}

// Save writes the record atomically: a temporary file in the same directory
// is synced and renamed over the old one.
func (s *FileStore) Save(rec Record) error {
	rec.Version = SchemaVersion
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close record: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace record: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	Record Record
	Saves  int

	// SaveError, if set, will be returned by Save.
	SaveError error
	// LoadError, if set, will be returned by Load.
	LoadError error
}

// NewMemStore returns a MemStore holding rec.
func NewMemStore(rec Record) *MemStore {
	rec.Version = SchemaVersion
	return &MemStore{Record: rec.Clone()}
}

// Load returns a copy of the held record.
func (m *MemStore) Load() (Record, error) {
	if m.LoadError != nil {
		return Record{}, m.LoadError
	}
	return m.Record.Clone(), nil
}

// Save replaces the held record.
func (m *MemStore) Save(rec Record) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	rec.Version = SchemaVersion
	m.Record = rec.Clone()
	m.Saves++
	return nil
}

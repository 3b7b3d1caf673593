package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// fileDoc is the on-disk layout of the catalog file.
type fileDoc struct {
	Active          string                        `yaml:"active,omitempty"`
	ActiveUpdatedAt time.Time                     `yaml:"active_updated_at,omitempty"`
	Profiles        map[string]domain.RiskProfile `yaml:"profiles"`
}

// FileStore keeps the profile table and the active selection in one YAML
// file. Writes replace the file atomically.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store backed by path. The file is created on the
// first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) read() (fileDoc, error) {
	var doc fileDoc
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileDoc{Profiles: map[string]domain.RiskProfile{}}, nil
	}
	if err != nil {
		return doc, fmt.Errorf("catalog file: read %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("catalog file: parse %s: %w: %v", s.path, domain.ErrConfig, err)
	}
	if doc.Profiles == nil {
		doc.Profiles = map[string]domain.RiskProfile{}
	}
	return doc, nil
}

func (s *FileStore) write(doc fileDoc) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("catalog file: encode: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("catalog file: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".catalog-*.yaml")
	if err != nil {
		return fmt.Errorf("catalog file: temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("catalog file: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("catalog file: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("catalog file: rename: %w", err)
	}
	return nil
}

func (s *FileStore) update(fn func(*fileDoc)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	fn(&doc)
	return s.write(doc)
}

func (s *FileStore) LoadProfiles(ctx context.Context) (map[string]domain.RiskProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	for id, p := range doc.Profiles {
		p.ID = id
		doc.Profiles[id] = p
	}
	return doc.Profiles, nil
}

func (s *FileStore) SaveProfile(ctx context.Context, p domain.RiskProfile) error {
	return s.update(func(doc *fileDoc) { doc.Profiles[p.ID] = p })
}

func (s *FileStore) DeleteProfile(ctx context.Context, id string) error {
	return s.update(func(doc *fileDoc) { delete(doc.Profiles, id) })
}

func (s *FileStore) LoadActiveProfile(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return "", err
	}
	if doc.Active == "" {
		return "", fmt.Errorf("catalog file: active profile: %w", domain.ErrNotFound)
	}
	return doc.Active, nil
}

func (s *FileStore) SaveActiveProfile(ctx context.Context, id string) error {
	return s.update(func(doc *fileDoc) {
		doc.Active = id
		doc.ActiveUpdatedAt = time.Now().UTC()
	})
}

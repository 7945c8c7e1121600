package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/martinlindhe/eqformat-map/internal/models"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned for unknown file set ids.
var ErrNotFound = errors.New("file set not found")

// metaFile holds the FileSetInfo of a stored set.
const metaFile = "fileset.yaml"

// File is one uploaded file of a set.
type File struct {
	Name   string
	Reader io.Reader
}

// Store defines the interface for map file storage. A set keeps the
// original base names so overlay files stay next to their base file.
type Store interface {
	SaveSet(name string, files []File) (*models.FileSetInfo, error)
	Get(id string) (*models.FileSetInfo, error)
	List(limit int) ([]*models.FileSetInfo, error)
	Delete(id string) error
	BasePath(id string) (string, error)
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	sets      map[string]*models.FileSetInfo
}

// NewLocalStore creates a new LocalStore and picks up sets saved by
// earlier runs.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	s := &LocalStore{
		uploadDir: uploadDir,
		sets:      make(map[string]*models.FileSetInfo),
	}
	if err := s.scan(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LocalStore) scan() error {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		return fmt.Errorf("reading upload directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.uploadDir, e.Name(), metaFile))
		if err != nil {
			continue
		}
		var info models.FileSetInfo
		if err := yaml.Unmarshal(data, &info); err != nil || info.ID != e.Name() {
			continue
		}
		s.sets[info.ID] = &info
	}
	return nil
}

// CleanName validates an uploaded file name and strips any directory part.
func CleanName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == ".." || base == "/" || base == "" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if base == metaFile {
		return "", fmt.Errorf("reserved file name %q", name)
	}
	return base, nil
}

// SaveSet stores files under a new id. name is the base map file and is
// listed first when it is part of files.
func (s *LocalStore) SaveSet(name string, files []File) (*models.FileSetInfo, error) {
	baseName, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files in set %q", baseName)
	}

	names := make([]string, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		n, err := CleanName(f.Name)
		if err != nil {
			return nil, err
		}
		if seen[n] {
			return nil, fmt.Errorf("duplicate file %q", n)
		}
		seen[n] = true
		names = append(names, n)
	}

	id := uuid.New().String()
	dir := filepath.Join(s.uploadDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating set directory: %w", err)
	}

	var size int64
	for i, f := range files {
		n, err := writeFile(filepath.Join(dir, names[i]), f.Reader)
		if err != nil {
			os.RemoveAll(dir)
			return nil, err
		}
		size += n
	}

	sort.SliceStable(names, func(i, j int) bool {
		return names[i] == baseName && names[j] != baseName
	})
	info := &models.FileSetInfo{
		ID:         id,
		Name:       baseName,
		Files:      names,
		Size:       size,
		UploadedAt: time.Now(),
	}

	meta, err := yaml.Marshal(info)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("encoding set metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFile), meta, 0644); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("writing set metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[id] = info

	return info, nil
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		return 0, fmt.Errorf("writing file: %w", err)
	}
	return n, nil
}

// Get retrieves set metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileSetInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.sets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return info, nil
}

// List returns the most recent sets. A limit <= 0 returns all of them.
func (s *LocalStore) List(limit int) ([]*models.FileSetInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileSetInfo, 0, len(s.sets))
	for _, info := range s.sets {
		list = append(list, info)
	}

	// Sort by UploadedAt desc
	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Delete removes a set and its files.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sets[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := os.RemoveAll(filepath.Join(s.uploadDir, id)); err != nil {
		return fmt.Errorf("deleting set: %w", err)
	}
	delete(s.sets, id)
	return nil
}

// BasePath returns the absolute path of the base map file of a set.
func (s *LocalStore) BasePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.sets[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return filepath.Abs(filepath.Join(s.uploadDir, id, info.Name))
}

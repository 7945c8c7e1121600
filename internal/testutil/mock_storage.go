// mock_storage.go - Mock storage implementation for testing
package testutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/martinlindhe/eqformat-map/internal/models"
	"github.com/martinlindhe/eqformat-map/internal/storage"
)

// MockStorage implements storage.Store for testing. Sets are kept in memory
// and mirrored into Dir so the loader can read them back.
type MockStorage struct {
	Dir string
	// SaveErr, when set, is returned by SaveSet.
	SaveErr error

	sets   map[string]*models.FileSetInfo
	nextID int
	mu     sync.RWMutex
}

// NewMockStorage creates a new mock storage writing into dir
func NewMockStorage(dir string) *MockStorage {
	return &MockStorage{
		Dir:  dir,
		sets: make(map[string]*models.FileSetInfo),
	}
}

func (m *MockStorage) SaveSet(name string, files []storage.File) (*models.FileSetInfo, error) {
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	base, err := storage.CleanName(name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := fmt.Sprintf("set-%d", m.nextID)
	dir := filepath.Join(m.Dir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	info := &models.FileSetInfo{ID: id, Name: base, UploadedAt: time.Now()}
	for _, f := range files {
		n, err := storage.CleanName(f.Name)
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f.Reader)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, n), data, 0644); err != nil {
			return nil, err
		}
		info.Files = append(info.Files, n)
		info.Size += int64(len(data))
	}
	m.sets[id] = info
	return info, nil
}

func (m *MockStorage) Get(id string) (*models.FileSetInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.sets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return info, nil
}

func (m *MockStorage) List(limit int) ([]*models.FileSetInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*models.FileSetInfo, 0, len(m.sets))
	for _, info := range m.sets {
		list = append(list, info)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sets[id]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	delete(m.sets, id)
	return os.RemoveAll(filepath.Join(m.Dir, id))
}

func (m *MockStorage) BasePath(id string) (string, error) {
	info, err := m.Get(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.Dir, id, info.Name), nil
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

// ErrMockSave is a ready-made SaveErr.
var ErrMockSave = errors.New("mock save failure")

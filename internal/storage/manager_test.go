// manager_test.go - Tests for storage layer
package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	return store
}

func mapFiles(names ...string) []File {
	files := make([]File, len(names))
	for i, n := range names {
		files[i] = File{Name: n, Reader: strings.NewReader("L 0, 0, 0, 1, 1, 1, 0, 0, 0\n")}
	}
	return files
}

func TestNewLocalStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "uploads")
	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	assert.DirExists(t, dir)

	list, err := store.List(0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLocalStore_SaveSet(t *testing.T) {
	store := createTestStore(t)

	info, err := store.SaveSet("zone.txt", mapFiles("zone_1.txt", "zone.txt", "zone_3.txt"))
	require.NoError(t, err)

	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "zone.txt", info.Name)
	assert.Equal(t, []string{"zone.txt", "zone_1.txt", "zone_3.txt"}, info.Files)
	assert.Equal(t, int64(3*len("L 0, 0, 0, 1, 1, 1, 0, 0, 0\n")), info.Size)
	assert.WithinDuration(t, time.Now(), info.UploadedAt, time.Minute)

	base, err := store.BasePath(info.ID)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(base))
	assert.Equal(t, "zone.txt", filepath.Base(base))
	assert.FileExists(t, base)
	assert.FileExists(t, filepath.Join(filepath.Dir(base), "zone_3.txt"))
}

func TestLocalStore_SaveSet_StripsDirectories(t *testing.T) {
	store := createTestStore(t)

	info, err := store.SaveSet("C:\\maps\\zone.txt", mapFiles("../../zone.txt", "maps/zone_2.txt"))
	require.NoError(t, err)
	assert.Equal(t, "zone.txt", info.Name)
	assert.Equal(t, []string{"zone.txt", "zone_2.txt"}, info.Files)
}

func TestLocalStore_SaveSet_Invalid(t *testing.T) {
	store := createTestStore(t)

	tests := []struct {
		name  string
		base  string
		files []File
	}{
		{"empty base name", "", mapFiles("zone.txt")},
		{"no files", "zone.txt", nil},
		{"duplicate", "zone.txt", mapFiles("zone.txt", "a/zone.txt")},
		{"dot dot", "zone.txt", mapFiles("..")},
		{"reserved", "zone.txt", mapFiles(metaFile)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.SaveSet(tt.base, tt.files)
			assert.Error(t, err)
		})
	}

	list, err := store.List(0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLocalStore_GetAndDelete(t *testing.T) {
	store := createTestStore(t)
	info, err := store.SaveSet("zone.txt", mapFiles("zone.txt"))
	require.NoError(t, err)

	got, err := store.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	base, err := store.BasePath(info.ID)
	require.NoError(t, err)

	require.NoError(t, store.Delete(info.ID))
	_, err = os.Stat(filepath.Dir(base))
	assert.True(t, os.IsNotExist(err))

	_, err = store.Get(info.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(store.Delete(info.ID), ErrNotFound))
	_, err = store.BasePath(info.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStore_List(t *testing.T) {
	store := createTestStore(t)
	var ids []string
	for i := 0; i < 3; i++ {
		info, err := store.SaveSet("zone.txt", mapFiles("zone.txt"))
		require.NoError(t, err)
		ids = append(ids, info.ID)
		time.Sleep(2 * time.Millisecond)
	}

	list, err := store.List(2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[1], list[1].ID)

	all, err := store.List(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLocalStore_Reopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	info, err := store.SaveSet("zone.txt", mapFiles("zone.txt", "zone_1.txt"))
	require.NoError(t, err)
	// stray directories are ignored
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "not-a-set"), 0755))

	reopened, err := NewLocalStore(dir)
	require.NoError(t, err)

	got, err := reopened.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.Name, got.Name)
	assert.Equal(t, info.Files, got.Files)
	assert.Equal(t, info.Size, got.Size)
	assert.True(t, info.UploadedAt.Equal(got.UploadedAt))

	list, err := reopened.List(0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCleanName(t *testing.T) {
	n, err := CleanName("dir/sub/zone_2.txt")
	require.NoError(t, err)
	assert.Equal(t, "zone_2.txt", n)

	_, err = CleanName("/")
	assert.Error(t, err)
}

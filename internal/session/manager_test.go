package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/martinlindhe/eqformat-map/internal/index"
	"github.com/martinlindhe/eqformat-map/internal/logging"
	"github.com/martinlindhe/eqformat-map/internal/models"
	"github.com/martinlindhe/eqformat-map/internal/parser"
	"github.com/martinlindhe/eqformat-map/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(maxSessions int) *Manager {
	loader := parser.NewLoader()
	loader.Log = logging.Discard()
	return NewManager(loader, Options{MaxSessions: maxSessions, Log: logging.Discard()})
}

func writeZone(t *testing.T) string {
	t.Helper()
	return testutil.WriteMapFiles(t, t.TempDir(), "zone.txt", map[int]string{
		0: testutil.SampleBase,
		2: testutil.SampleOverlay,
	})
}

func TestManager_Open(t *testing.T) {
	m := newTestManager(0)
	base := writeZone(t)

	sess, err := m.Open(base)
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "zone.txt", sess.Name)
	assert.Equal(t, base, sess.Base)
	assert.Equal(t, []int{0, 2}, sess.LayerIDs)
	assert.Equal(t, 3, sess.LabelCount)
	assert.Equal(t, 3, sess.LineCount)
	assert.Len(t, sess.Layers, models.MaxLayers)
	assert.Zero(t, sess.IssueCount)

	state, ok := m.Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, []int{0, 2}, state.Map.LayerIDs())
	assert.Len(t, state.Report.Layers, models.MaxLayers)

	got, ok := m.GetSession(sess.ID)
	require.True(t, ok)
	assert.Same(t, sess, got)
}

func TestManager_OpenMissingBase(t *testing.T) {
	m := newTestManager(0)

	sess, err := m.Open(filepath.Join(t.TempDir(), "nothing.txt"))
	require.NoError(t, err)
	assert.Empty(t, sess.LayerIDs)
}

func TestManager_OpenStrict(t *testing.T) {
	loader := parser.NewLoader()
	loader.Log = logging.Discard()
	loader.StrictBaseLayer = true
	m := NewManager(loader, Options{Log: logging.Discard()})

	_, err := m.Open(filepath.Join(t.TempDir(), "nothing.txt"))
	assert.True(t, errors.Is(err, parser.ErrBaseLayerMissing))
	assert.Zero(t, m.Len())
}

func TestManager_OpenFileSet(t *testing.T) {
	m := newTestManager(0)
	base := writeZone(t)

	a, err := m.OpenFileSet("set-1", base)
	require.NoError(t, err)
	assert.Equal(t, "set-1", a.FileSetID)
	_, err = m.OpenFileSet("set-1", base)
	require.NoError(t, err)
	other, err := m.Open(base)
	require.NoError(t, err)

	assert.Equal(t, 2, m.CloseFileSet("set-1"))
	assert.Equal(t, 0, m.CloseFileSet(""))
	assert.Equal(t, 1, m.Len())
	_, ok := m.Get(other.ID)
	assert.True(t, ok)
}

func TestManager_ListAndClose(t *testing.T) {
	m := newTestManager(0)
	base := writeZone(t)

	first, err := m.Open(base)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := m.Open(base)
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	require.NoError(t, m.Close(first.ID))
	assert.True(t, errors.Is(m.Close(first.ID), ErrSessionNotFound))
	assert.Len(t, m.List(), 1)

	m.CloseAll()
	assert.Zero(t, m.Len())
}

func TestManager_EvictsLeastRecentlyUsed(t *testing.T) {
	m := newTestManager(2)
	base := writeZone(t)

	a, err := m.Open(base)
	require.NoError(t, err)
	b, err := m.Open(base)
	require.NoError(t, err)

	// a is used after b, so b is the eviction candidate
	time.Sleep(2 * time.Millisecond)
	require.True(t, m.Touch(a.ID))

	c, err := m.Open(base)
	require.NoError(t, err)

	assert.Equal(t, 2, m.Len())
	_, ok := m.Get(b.ID)
	assert.False(t, ok)
	_, ok = m.Get(a.ID)
	assert.True(t, ok)
	_, ok = m.Get(c.ID)
	assert.True(t, ok)
}

func TestManager_CleanupOldSessions(t *testing.T) {
	m := newTestManager(0)
	base := writeZone(t)

	old, err := m.Open(base)
	require.NoError(t, err)
	fresh, err := m.Open(base)
	require.NoError(t, err)

	state, _ := m.Get(old.ID)
	m.mu.Lock()
	state.LastAccessed = time.Now().Add(-2 * time.Hour)
	m.mu.Unlock()

	assert.Equal(t, 1, m.CleanupOldSessions(time.Hour))
	_, ok := m.Get(old.ID)
	assert.False(t, ok)
	_, ok = m.Get(fresh.ID)
	assert.True(t, ok)

	assert.False(t, m.Touch(old.ID))
}

func TestManager_Index(t *testing.T) {
	m := newTestManager(0)
	sess, err := m.Open(writeZone(t))
	require.NoError(t, err)

	ctx := context.Background()
	idx, err := m.Index(ctx, sess.ID)
	require.NoError(t, err)
	again, err := m.Index(ctx, sess.ID)
	require.NoError(t, err)
	assert.Same(t, idx, again)

	hits, err := idx.SearchLabels(ctx, "center", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 2, hits[0].Layer)

	require.NoError(t, m.Close(sess.ID))
	_, err = idx.SearchLabels(ctx, "center", 5)
	assert.True(t, errors.Is(err, index.ErrClosed))

	_, err = m.Index(ctx, sess.ID)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func backdate(m *Manager, id string, age time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id].LastAccessed = time.Now().Add(-age)
}

func TestManager_PinnedSurvivesCleanup(t *testing.T) {
	m := newTestManager(0)
	base := writeZone(t)

	pinned, err := m.OpenPinned(base)
	require.NoError(t, err)
	assert.True(t, pinned.Pinned)
	idle, err := m.Open(base)
	require.NoError(t, err)

	backdate(m, pinned.ID, 2*time.Hour)
	backdate(m, idle.ID, 2*time.Hour)

	assert.Equal(t, 1, m.CleanupOldSessions(time.Hour))
	_, ok := m.Get(pinned.ID)
	assert.True(t, ok)
	_, ok = m.Get(idle.ID)
	assert.False(t, ok)
}

func TestManager_PinnedSurvivesEviction(t *testing.T) {
	m := newTestManager(2)
	base := writeZone(t)

	pinned, err := m.OpenPinned(base)
	require.NoError(t, err)
	backdate(m, pinned.ID, time.Hour)

	b, err := m.Open(base)
	require.NoError(t, err)
	c, err := m.Open(base)
	require.NoError(t, err)

	assert.Equal(t, 2, m.Len())
	_, ok := m.Get(pinned.ID)
	assert.True(t, ok)
	_, ok = m.Get(b.ID)
	assert.False(t, ok)
	_, ok = m.Get(c.ID)
	assert.True(t, ok)

	// with only pinned sessions left to evict the limit is exceeded instead
	full := newTestManager(1)
	first, err := full.OpenPinned(base)
	require.NoError(t, err)
	_, err = full.Open(base)
	require.NoError(t, err)
	assert.Equal(t, 2, full.Len())
	_, ok = full.Get(first.ID)
	assert.True(t, ok)

	// an explicit close still removes a pinned map
	require.NoError(t, m.Close(pinned.ID))
	_, ok = m.Get(pinned.ID)
	assert.False(t, ok)
}

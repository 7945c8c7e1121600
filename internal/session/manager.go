package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"github.com/martinlindhe/eqformat-map/internal/index"
	"github.com/martinlindhe/eqformat-map/internal/logging"
	"github.com/martinlindhe/eqformat-map/internal/models"
	"github.com/martinlindhe/eqformat-map/internal/parser"
)

// DefaultMaxSessions limits concurrently loaded maps to bound memory use.
const DefaultMaxSessions = 10

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Options configures a Manager.
type Options struct {
	MaxSessions int
	Index       index.Options
	Log         *log.Logger
}

// Manager holds the maps opened by the server.
type Manager struct {
	sessions map[string]*State
	mu       sync.RWMutex
	loader   *parser.Loader
	opts     Options
}

// State holds one loaded map and everything derived from it.
type State struct {
	Session      *models.MapSession
	Map          *models.Map
	Report       *parser.LoadReport
	LastAccessed time.Time

	idxMu  sync.Mutex
	idx    *index.Index
	closed bool
}

// NewManager creates a session manager that loads maps with loader.
func NewManager(loader *parser.Loader, opts Options) *Manager {
	if loader == nil {
		loader = parser.NewLoader()
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.Log == nil {
		opts.Log = logging.Default()
	}
	if opts.Index.Log == nil {
		opts.Index.Log = opts.Log
	}
	return &Manager{
		sessions: make(map[string]*State),
		loader:   loader,
		opts:     opts,
	}
}

// Open loads the map whose base file is path.
func (m *Manager) Open(path string) (*models.MapSession, error) {
	return m.open(path, "", false)
}

// OpenPinned loads a map that stays open for the life of the manager.
// Pinned sessions are never evicted or cleaned up; only Close removes them.
func (m *Manager) OpenPinned(path string) (*models.MapSession, error) {
	return m.open(path, "", true)
}

// OpenFileSet loads the base file of an uploaded file set.
func (m *Manager) OpenFileSet(fileSetID, path string) (*models.MapSession, error) {
	return m.open(path, fileSetID, false)
}

func (m *Manager) open(path, fileSetID string, pinned bool) (*models.MapSession, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	start := time.Now()
	mp, report, err := m.loader.Load(abs)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	labels, lines := mp.Counts()
	sess := &models.MapSession{
		ID:         uuid.New().String(),
		Base:       abs,
		Name:       filepath.Base(abs),
		FileSetID:  fileSetID,
		Pinned:     pinned,
		LoadedAt:   time.Now(),
		LoadTimeMs: elapsed.Milliseconds(),
		LayerIDs:   mp.LayerIDs(),
		LabelCount: labels,
		LineCount:  lines,
		Layers:     report.Layers,
		IssueCount: len(report.Issues),
	}

	m.evictIfNeeded()

	m.mu.Lock()
	m.sessions[sess.ID] = &State{
		Session:      sess,
		Map:          mp,
		Report:       report,
		LastAccessed: time.Now(),
	}
	m.mu.Unlock()

	m.opts.Log.Infof("[Manager] Opened %s as %s: layers %v, %d labels, %d lines, %d skipped rows in %v",
		sess.Name, shortID(sess.ID), sess.LayerIDs, labels, lines, sess.IssueCount, elapsed.Round(time.Microsecond))
	return sess, nil
}

// evictIfNeeded closes the least recently used sessions when at capacity.
func (m *Manager) evictIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < m.opts.MaxSessions {
		return
	}

	states := make([]*State, 0, len(m.sessions))
	for _, s := range m.sessions {
		if !s.Session.Pinned {
			states = append(states, s)
		}
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].LastAccessed.Before(states[j].LastAccessed)
	})

	toFree := min(len(m.sessions)-m.opts.MaxSessions+1, len(states))
	for _, s := range states[:toFree] {
		delete(m.sessions, s.Session.ID)
		s.close()
		m.opts.Log.Infof("[Manager] Evicted session %s (%s) to stay under %d maps",
			shortID(s.Session.ID), s.Session.Name, m.opts.MaxSessions)
	}
}

// CleanupOldSessions closes sessions not accessed within maxAge. Pinned
// sessions and sessions used within SessionKeepAliveWindow are always kept.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	removed := 0
	for id, state := range m.sessions {
		if state.Session.Pinned || state.LastAccessed.After(keepAliveCutoff) || !state.LastAccessed.Before(cutoff) {
			continue
		}
		delete(m.sessions, id)
		state.close()
		removed++
		m.opts.Log.Infof("[Manager] Cleaned up aged session %s (last accessed: %s ago)",
			shortID(id), time.Since(state.LastAccessed).Round(time.Second))
	}
	return removed
}

// Get returns the state of a session.
func (m *Manager) Get(id string) (*State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	return state, ok
}

// GetSession returns the metadata of a session.
func (m *Manager) GetSession(id string) (*models.MapSession, bool) {
	state, ok := m.Get(id)
	if !ok {
		return nil, false
	}
	return state.Session, true
}

// List returns all sessions, most recently loaded first.
func (m *Manager) List() []*models.MapSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*models.MapSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s.Session)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].LoadedAt.After(list[j].LoadedAt)
	})
	return list
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Touch updates the LastAccessed timestamp for a session.
// This should be called whenever a session is actively being used
// to prevent it from being cleaned up.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// Close removes a session and releases its index.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	state, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return state.close()
}

// CloseFileSet closes every session opened from an uploaded file set.
func (m *Manager) CloseFileSet(fileSetID string) int {
	m.mu.Lock()
	var closing []*State
	for id, s := range m.sessions {
		if s.Session.FileSetID != "" && s.Session.FileSetID == fileSetID {
			closing = append(closing, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range closing {
		s.close()
	}
	return len(closing)
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	states := m.sessions
	m.sessions = make(map[string]*State)
	m.mu.Unlock()

	for _, s := range states {
		s.close()
	}
}

// Index returns the SQL index of a session, building it on first use.
func (m *Manager) Index(ctx context.Context, id string) (*index.Index, error) {
	state, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	state.idxMu.Lock()
	defer state.idxMu.Unlock()

	if state.closed {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if state.idx == nil {
		idx, err := index.Build(ctx, state.Map, m.opts.Index)
		if err != nil {
			return nil, fmt.Errorf("building index for %s: %w", state.Session.Name, err)
		}
		state.idx = idx
	}
	return state.idx, nil
}

func (s *State) close() error {
	s.idxMu.Lock()
	defer s.idxMu.Unlock()

	s.closed = true
	if s.idx == nil {
		return nil
	}
	err := s.idx.Close()
	s.idx = nil
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package reply

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GlobalSessionKey is the session key used when the configured scope is
// "global" rather than per-sender.
const GlobalSessionKey = "__global__"

// Store is the durable, single-writer mapping from session key to Session
// record. Persistence is a flat JSON file, atomically replaced on every
// mutating call — there is only ever one writer (the reply engine), so a
// plain mutex is sufficient; it plays the role the teacher's
// config.SaveConfig plays for the static config file, generalized to a
// file that both reads and rewrites itself on the hot path.
type Store struct {
	mu       sync.Mutex
	path     string
	sessions map[string]*Session
	now      func() time.Time
}

// NewStore loads (or initializes) a session store backed by path. An empty
// path keeps everything in memory only.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, sessions: map[string]*Session{}, now: time.Now}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading session store %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.sessions); err != nil {
		return nil, fmt.Errorf("parsing session store %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Get returns the session for key, creating one if none exists, the
// existing one is expired, or a reset was requested. isNew reports whether
// a fresh session was created; isFirstTurn is true exactly when isNew is.
func (s *Store) Get(key string, resetRequested bool, idleMinutes int) (sess Session, isNew bool, isFirstTurn bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing, ok := s.sessions[key]
	if ok && !resetRequested && !existing.Expired(now, idleMinutes) {
		return *existing, false, false, nil
	}

	fresh := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[key] = fresh
	if err := s.persistLocked(); err != nil {
		return *fresh, true, true, &Error{Kind: SessionStoreWriteFailure, Err: err}
	}
	return *fresh, true, true, nil
}

// Touch updates updatedAt to now. Called only on the user-initiated path —
// heartbeat operations must never call this.
func (s *Store) Touch(key string) error {
	return s.ForSession(key, func(sess *Session) {
		sess.UpdatedAt = s.now()
	})
}

// ForSession performs an atomic read-modify-write against the session at
// key, creating one if absent.
func (s *Store) ForSession(key string, updater func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		now := s.now()
		sess = &Session{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
		s.sessions[key] = sess
	}
	updater(sess)
	if err := s.persistLocked(); err != nil {
		return &Error{Kind: SessionStoreWriteFailure, Err: err}
	}
	return nil
}

func (s *Store) SetSystemSent(key string, v bool) error {
	return s.ForSession(key, func(sess *Session) { sess.SystemSent = v })
}

func (s *Store) SetThinkDefault(key string, level ThinkLevel) error {
	return s.ForSession(key, func(sess *Session) { sess.ThinkDefault = level })
}

func (s *Store) SetVerboseDefault(key string, level VerboseLevel) error {
	return s.ForSession(key, func(sess *Session) { sess.VerboseDefault = level })
}

func (s *Store) SetAbortPending(key string, v bool) error {
	return s.ForSession(key, func(sess *Session) { sess.AbortPending = v })
}

// Snapshot returns a copy of the session at key, if any.
func (s *Store) Snapshot(key string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Keys returns a snapshot of all known session keys.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	return keys
}

// SessionKey resolves the store key for a sender under the given scope.
func SessionKey(scope, from string) string {
	if scope == "global" {
		return GlobalSessionKey
	}
	return from
}

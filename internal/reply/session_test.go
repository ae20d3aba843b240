package reply

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStore_GetCreatesOnFirstUse(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	sess, isNew, isFirst, err := s.Get("+1", false, 30)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !isNew || !isFirst {
		t.Error("expected isNew and isFirstTurn true for a brand new key")
	}
	if sess.ID == "" {
		t.Error("expected a generated session id")
	}
}

func TestStore_GetReusesWithinIdleWindow(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	first, _, _, _ := s.Get("+1", false, 30)
	second, isNew, _, _ := s.Get("+1", false, 30)
	if isNew {
		t.Error("expected the same session to be reused within idleMinutes")
	}
	if second.ID != first.ID {
		t.Errorf("session id changed: %s != %s", second.ID, first.ID)
	}
}

func TestStore_GetExpiresAfterIdleWindow(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	base := time.Now()
	s.now = func() time.Time { return base }
	first, _, _, _ := s.Get("+1", false, 30)

	s.now = func() time.Time { return base.Add(31 * time.Minute) }
	second, isNew, _, _ := s.Get("+1", false, 30)
	if !isNew {
		t.Error("expected a new session once idleMinutes has elapsed")
	}
	if second.ID == first.ID {
		t.Error("expected a new session id after expiry")
	}
}

func TestStore_ResetRequestedForcesNewSession(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	first, _, _, _ := s.Get("+1", false, 30)
	second, isNew, _, _ := s.Get("+1", true, 30)
	if !isNew || second.ID == first.ID {
		t.Error("expected reset to create a new session")
	}
}

func TestStore_FieldUpdateWithoutTouchKeepsUpdatedAt(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	sess, _, _, _ := s.Get("+1", false, 30)
	before := sess.UpdatedAt

	// Mutating a field via ForSession without Touch must not move UpdatedAt.
	if err := s.SetThinkDefault("+1", ThinkHigh); err != nil {
		t.Fatalf("SetThinkDefault: %v", err)
	}
	snap, _ := s.Snapshot("+1")
	if !snap.UpdatedAt.Equal(before) {
		t.Error("heartbeat-style update must not mutate UpdatedAt")
	}
}

func TestStore_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	s1, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	sess, _, _, _ := s1.Get("+1", false, 30)

	s2, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore reload: %v", err)
	}
	reloaded, isNew, _, _ := s2.Get("+1", false, 30)
	if isNew {
		t.Error("expected the reloaded store to find the persisted session")
	}
	if reloaded.ID != sess.ID {
		t.Errorf("reloaded id = %s, want %s", reloaded.ID, sess.ID)
	}
}

package syncengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/iliyamo/agency-portal/internal/model"
)

// Session is the persisted credential and identity of the signed-in user.
type Session struct {
	Token        string     `json:"token"`
	RefreshToken string     `json:"refreshToken,omitempty"`
	User         model.User `json:"user"`
}

// SignedIn reports whether s carries a credential.
func (s Session) SignedIn() bool { return s.Token != "" }

// SessionStore persists the session across restarts. Load returns a zero
// Session when nothing has been saved.
type SessionStore interface {
	Load() (Session, error)
	Save(Session) error
	Clear() error
}

// FileSessionStore keeps the session as a JSON file readable only by the
// current user.
type FileSessionStore struct {
	Path string
}

func (s FileSessionStore) Load() (Session, error) {
	var sess Session
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sess, nil
		}
		return sess, err
	}
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("session file %s: %w", s.Path, err)
	}
	return sess, nil
}

func (s FileSessionStore) Save(sess Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.Path, data, 0o600)
}

func (s FileSessionStore) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}

// MemorySessionStore keeps the session in process memory only.
type MemorySessionStore struct {
	mu   sync.Mutex
	sess Session
}

func (s *MemorySessionStore) Load() (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess, nil
}

func (s *MemorySessionStore) Save(sess Session) error {
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Clear() error {
	return s.Save(Session{})
}

// Identity is the only holder of the current session. Everything that needs
// the token or the user reads it from here, and every change is persisted
// before listeners hear about it.
type Identity struct {
	mu        sync.RWMutex
	cur       Session
	store     SessionStore
	listeners []func(Session)
}

// NewIdentity returns an identity backed by store (in-memory when nil).
func NewIdentity(store SessionStore) *Identity {
	if store == nil {
		store = &MemorySessionStore{}
	}
	return &Identity{store: store}
}

// Current returns the session in effect.
func (i *Identity) Current() Session {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cur
}

// OnChange registers fn to run after every Set or Clear.
func (i *Identity) OnChange(fn func(Session)) {
	i.mu.Lock()
	i.listeners = append(i.listeners, fn)
	i.mu.Unlock()
}

// Load reads the persisted session and makes it current.
func (i *Identity) Load() (Session, error) {
	sess, err := i.store.Load()
	if err != nil {
		return Session{}, err
	}
	i.set(sess)
	return sess, nil
}

// Set persists sess and makes it current. The in-memory session is updated
// even when persisting fails so the process keeps a consistent view.
func (i *Identity) Set(sess Session) error {
	err := i.store.Save(sess)
	i.set(sess)
	return err
}

// Clear removes the session from memory and storage.
func (i *Identity) Clear() error {
	err := i.store.Clear()
	i.set(Session{})
	return err
}

func (i *Identity) set(sess Session) {
	i.mu.Lock()
	i.cur = sess
	listeners := append([]func(Session){}, i.listeners...)
	i.mu.Unlock()
	for _, fn := range listeners {
		fn(sess)
	}
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/workboard/workboard/internal/db/models"
	"github.com/workboard/workboard/internal/db/repositories"
	"github.com/workboard/workboard/internal/notify"
)

// ---- in-memory stores -------------------------------------------------------

// memStore implements IdentityStore and SessionStore with the same
// conditional-update semantics as the SQL repositories.
type memStore struct {
	mu         sync.Mutex
	seq        int
	identities map[string]*models.Identity
	sessions   map[string]*models.Session

	failGetByEmail error
}

func newMemStore() *memStore {
	return &memStore{
		identities: map[string]*models.Identity{},
		sessions:   map[string]*models.Session{},
	}
}

func clone(i *models.Identity) *models.Identity {
	c := *i
	return &c
}

func (s *memStore) CreateIdentity(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.identities {
		if existing.Email == identity.Email {
			return repositories.ErrDuplicate
		}
	}
	s.seq++
	identity.ID = fmt.Sprintf("id-%d", s.seq)
	s.identities[identity.ID] = clone(identity)
	return nil
}

func (s *memStore) GetIdentityByID(_ context.Context, id string) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.identities[id]; ok {
		return clone(i), nil
	}
	return nil, nil
}

func (s *memStore) GetIdentityByEmail(_ context.Context, email string) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGetByEmail != nil {
		return nil, s.failGetByEmail
	}
	for _, i := range s.identities {
		if i.Email == email {
			return clone(i), nil
		}
	}
	return nil, nil
}

func (s *memStore) GetIdentityByResetTokenHash(_ context.Context, tokenHash string) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.identities {
		if i.PasswordResetTokenHash != nil && *i.PasswordResetTokenHash == tokenHash {
			return clone(i), nil
		}
	}
	return nil, nil
}

func (s *memStore) SetActivationToken(_ context.Context, identityID, tokenHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.identities[identityID]
	if !ok {
		return errors.New("no such identity")
	}
	h := tokenHash
	i.ActivationTokenHash = &h
	i.Status = models.IdentityInactive
	i.UpdatedAt = now
	return nil
}

func (s *memStore) ConsumeActivationToken(_ context.Context, tokenHash string, now time.Time) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.identities {
		if i.ActivationTokenHash != nil && *i.ActivationTokenHash == tokenHash {
			i.ActivationTokenHash = nil
			i.Status = models.IdentityActive
			i.UpdatedAt = now
			return clone(i), nil
		}
	}
	return nil, nil
}

func (s *memStore) ConsumeInviteToken(_ context.Context, tokenHash, email, passwordHash string, now time.Time) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.identities {
		if i.InviteTokenHash != nil && *i.InviteTokenHash == tokenHash && i.Email == email {
			p := passwordHash
			i.PasswordHash = &p
			i.InviteTokenHash = nil
			i.Status = models.IdentityActive
			i.UpdatedAt = now
			return clone(i), nil
		}
	}
	return nil, nil
}

func (s *memStore) SetPasswordResetToken(_ context.Context, identityID, tokenHash string, expiresAt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.identities[identityID]
	if !ok {
		return errors.New("no such identity")
	}
	h, e := tokenHash, expiresAt
	i.PasswordResetTokenHash = &h
	i.PasswordResetExpiresAt = &e
	i.UpdatedAt = now
	return nil
}

func (s *memStore) ConsumePasswordResetToken(_ context.Context, tokenHash, passwordHash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.identities {
		if i.PasswordResetTokenHash != nil && *i.PasswordResetTokenHash == tokenHash &&
			i.PasswordResetExpiresAt != nil && i.PasswordResetExpiresAt.After(now) {
			p := passwordHash
			i.PasswordHash = &p
			i.PasswordResetTokenHash = nil
			i.PasswordResetExpiresAt = nil
			i.UpdatedAt = now
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ClearPasswordResetToken(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.identities {
		if i.PasswordResetTokenHash != nil && *i.PasswordResetTokenHash == tokenHash {
			i.PasswordResetTokenHash = nil
			i.PasswordResetExpiresAt = nil
		}
	}
	return nil
}

func (s *memStore) UpdatePassword(_ context.Context, identityID, passwordHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.identities[identityID]
	if !ok {
		return errors.New("no such identity")
	}
	p := passwordHash
	i.PasswordHash = &p
	i.PasswordResetTokenHash = nil
	i.PasswordResetExpiresAt = nil
	i.UpdatedAt = now
	return nil
}

func (s *memStore) deleteIdentity(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, id)
}

func (s *memStore) identity(id string) *models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.identities[id])
}

func (s *memStore) CreateSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	session.ID = fmt.Sprintf("sess-%d", s.seq)
	c := *session
	s.sessions[session.ID] = &c
	return nil
}

func (s *memStore) GetSessionByHash(_ context.Context, tokenHash string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.SessionIDHash == tokenHash {
			c := *sess
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) DeleteSessionsByHash(_ context.Context, tokenHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if sess.SessionIDHash == tokenHash {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) DeleteSessionsForIdentity(_ context.Context, identityID, exceptHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if sess.IdentityID == identityID && (exceptHash == "" || sess.SessionIDHash != exceptHash) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ---- fakes ------------------------------------------------------------------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier keeps every message; err, when set, is returned from Send.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
	err      error
}

func (n *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

var tokenParam = regexp.MustCompile(`(?:activationToken|inviteToken|passwordResetToken)=([A-Za-z0-9_-]+)`)

// lastToken returns the raw token carried by the most recent message's link.
func (n *recordingNotifier) lastToken() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		return ""
	}
	m := tokenParam.FindStringSubmatch(n.messages[len(n.messages)-1].Body)
	if m == nil {
		return ""
	}
	return m[1]
}

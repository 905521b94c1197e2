package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/repository"
)

// memoryUsers is an in-memory UserRepository enforcing the same unique
// indexes as the schema. It tracks how many calls are in flight at once.
type memoryUsers struct {
	mu          sync.Mutex
	users       []domain.User
	credentials map[string]domain.Credential

	delay       time.Duration
	createErr   func(u *domain.User) error
	findErr     error
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	creates     atomic.Int64
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{credentials: map[string]domain.Credential{}}
}

func (m *memoryUsers) enter() func() {
	n := m.inFlight.Add(1)
	for {
		peak := m.maxInFlight.Load()
		if n <= peak || m.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return func() { m.inFlight.Add(-1) }
}

func (m *memoryUsers) seed(u domain.User) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = domain.UserRoleMember
	}
	m.users = append(m.users, u)
	return u
}

func (m *memoryUsers) Create(_ context.Context, user *domain.User) error {
	defer m.enter()()
	m.creates.Add(1)
	if m.createErr != nil {
		if err := m.createErr(user); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Username, user.Username) {
			return errors.New(`duplicate key value violates unique constraint "users_username_lower_key"`)
		}
		if user.VerifiedEmail != nil && existing.VerifiedEmail != nil &&
			strings.EqualFold(*existing.VerifiedEmail, *user.VerifiedEmail) {
			return errors.New(`duplicate key value violates unique constraint "users_verified_email_lower_key"`)
		}
	}

	user.ID = uuid.NewString()
	if user.Role == "" {
		user.Role = domain.UserRoleMember
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	if user.Credential != nil {
		user.Credential.UserID = user.ID
		m.credentials[user.ID] = *user.Credential
	}
	stored.Credential = nil
	m.users = append(m.users, stored)
	return nil
}

func (m *memoryUsers) Update(ctx context.Context, id string, changes domain.UserChanges) (int64, error) {
	return m.UpdateWhere(ctx, repository.UserFilter{ID: id}, changes)
}

func (m *memoryUsers) UpdateWhere(_ context.Context, filter repository.UserFilter, changes domain.UserChanges) (int64, error) {
	defer m.enter()()
	if filter.Empty() {
		return 0, repository.ErrUnboundedUpdate
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for i := range m.users {
		if !matches(m.users[i], filter) {
			continue
		}
		apply(&m.users[i], changes)
		n++
	}
	return n, nil
}

func (m *memoryUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return m.FindOne(ctx, repository.UserFilter{ID: id})
}

func (m *memoryUsers) FindOne(_ context.Context, filter repository.UserFilter) (*domain.User, error) {
	defer m.enter()()
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if matches(u, filter) {
			found := u
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memoryUsers) FindAll(_ context.Context, filter repository.UserFilter) ([]domain.User, error) {
	defer m.enter()()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.User
	for _, u := range m.users {
		if matches(u, filter) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memoryUsers) Count(ctx context.Context, filter repository.UserFilter) (int64, error) {
	all, err := m.FindAll(ctx, filter)
	return int64(len(all)), err
}

func (m *memoryUsers) GetCredential(_ context.Context, userID string) (*domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.credentials[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &cred, nil
}

func (m *memoryUsers) byUsername(username string) (domain.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return u, true
		}
	}
	return domain.User{}, false
}

func matches(u domain.User, f repository.UserFilter) bool {
	if f.ID != "" && u.ID != f.ID {
		return false
	}
	if f.Username != "" && !strings.EqualFold(u.Username, f.Username) {
		return false
	}
	if f.Email != "" && !strings.EqualFold(u.Email, f.Email) {
		return false
	}
	if f.EmailLoose != "" && !strings.EqualFold(strings.ReplaceAll(u.Email, ".", ""), strings.ReplaceAll(f.EmailLoose, ".", "")) {
		return false
	}
	if f.FirstnamePrefix != "" && !strings.HasPrefix(strings.ToLower(u.Firstname), strings.ToLower(f.FirstnamePrefix)) {
		return false
	}
	if f.LastnamePrefix != "" && !strings.HasPrefix(strings.ToLower(u.Lastname), strings.ToLower(f.LastnamePrefix)) {
		return false
	}
	if f.ContactPrefix != "" && !strings.HasPrefix(u.MobileNumber, f.ContactPrefix) {
		return false
	}
	if f.VerifiedEmail != "" && (u.VerifiedEmail == nil || !strings.EqualFold(*u.VerifiedEmail, f.VerifiedEmail)) {
		return false
	}
	if f.Verified != nil && *f.Verified != (u.VerifiedEmail != nil) {
		return false
	}
	return true
}

func apply(u *domain.User, c domain.UserChanges) {
	if c.Firstname != nil {
		u.Firstname = *c.Firstname
	}
	if c.Lastname != nil {
		u.Lastname = *c.Lastname
	}
	if c.MobileNumber != nil {
		u.MobileNumber = *c.MobileNumber
	}
	if c.Photo != nil {
		u.Photo = *c.Photo
	}
	if c.GraduationYear != nil {
		u.GraduationYear = c.GraduationYear
	}
	if c.VerifiedEmail != nil {
		v := *c.VerifiedEmail
		u.VerifiedEmail = &v
	}
	u.UpdatedAt = time.Now()
}

// staticWhitelist is an EmailWhitelist over a fixed domain set.
type staticWhitelist struct {
	domains map[string]bool
	err     error
	calls   atomic.Int64
}

func newWhitelist(domains ...string) *staticWhitelist {
	set := make(map[string]bool, len(domains))
	for _, d := range domains {
		set[strings.ToLower(d)] = true
	}
	return &staticWhitelist{domains: set}
}

func (w *staticWhitelist) IsWhitelisted(_ context.Context, email string) (bool, error) {
	w.calls.Add(1)
	if w.err != nil {
		return false, w.err
	}
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false, nil
	}
	return w.domains[strings.ToLower(email[at+1:])], nil
}

// prefixHasher fakes a salted hash cheaply.
type prefixHasher struct {
	counter atomic.Int64
	err     error
}

func (h *prefixHasher) Hash(password string) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	return fmt.Sprintf("hashed$%d$%x", h.counter.Add(1), len(password)), nil
}

func (h *prefixHasher) Compare(hashed, plain string) error {
	parts := strings.Split(hashed, "$")
	if len(parts) != 3 || parts[2] != fmt.Sprintf("%x", len(plain)) {
		return errors.New("mismatch")
	}
	return nil
}

// memorySessions is an in-memory SessionRepository.
type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: map[string]domain.Session{}}
}

func (s *memorySessions) Create(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.CreatedAt = time.Now()
	s.sessions[session.ID] = *session
	return nil
}

func (s *memorySessions) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return ok && sess.ExpiresAt.After(time.Now()), nil
}

func (s *memorySessions) DeleteByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// recordingDispatcher captures published events on a channel.
type recordingDispatcher struct {
	published chan events.Event
	err       error
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{published: make(chan events.Event, 16)}
}

func (d *recordingDispatcher) Publish(_ context.Context, e events.Event) error {
	d.published <- e
	return d.err
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

// recordingReporter captures reported errors on a channel.
type recordingReporter struct {
	captured chan error
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{captured: make(chan error, 16)}
}

func (r *recordingReporter) Capture(err error, _ ...zap.Field) {
	r.captured <- err
}

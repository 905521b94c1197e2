package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/policy"
	"github.com/spec-kit/account-service/internal/repository"
)

type userFixture struct {
	svc        *UserService
	users      *memoryUsers
	sessions   *memorySessions
	dispatcher *recordingDispatcher
	reporter   *recordingReporter
}

func newUserFixture(domains ...string) userFixture {
	f := userFixture{
		users:      newMemoryUsers(),
		sessions:   newMemorySessions(),
		dispatcher: newRecordingDispatcher(),
		reporter:   newRecordingReporter(),
	}
	f.svc = NewUserService(UserDependencies{
		UserRepo:    f.users,
		SessionRepo: f.sessions,
		Whitelist:   newWhitelist(domains...),
		Hasher:      &prefixHasher{},
		Dispatcher:  f.dispatcher,
		Reporter:    f.reporter,
		Logger:      zap.NewNop(),
	})
	return f
}

func waitEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return events.Event{}
	}
}

func waitReport(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(time.Second):
		t.Fatal("nothing reported")
		return nil
	}
}

func newUser(username, email string) *domain.User {
	return &domain.User{Username: username, Email: email, Firstname: "First", Lastname: "Last"}
}

func TestCreateUserLocal(t *testing.T) {
	f := newUserFixture("school.edu")

	user, err := f.svc.CreateUserLocal(context.Background(), newUser("alice", "alice@School.edu"), "secret-pass")
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.Nil(t, user.Credential)

	cred, err := f.users.GetCredential(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotEqual(t, "secret-pass", cred.PasswordHash)

	event := waitEvent(t, f.dispatcher.published)
	require.Equal(t, events.EventUserCreated, event.Type)
	require.Equal(t, user.ID, event.UserID)
}

func TestCreateUserLocal_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		username string
		email    string
		wantErr  string
	}{
		{"domain not whitelisted", "bob", "bob@other.com", "Email domain not whitelisted"},
		{"no domain", "bob", "bob", "Email domain not whitelisted"},
		{"username starts with digit", "9bob", "bob@school.edu", policy.MsgUsernameStart},
		{"reserved username", "admin", "admin@school.edu", policy.MsgUsernameReserved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUserFixture("school.edu")
			_, err := f.svc.CreateUserLocal(context.Background(), newUser(tt.username, tt.email), "secret-pass")
			require.EqualError(t, err, tt.wantErr)
			require.Zero(t, f.users.creates.Load())
		})
	}
}

func TestCreateUserLocal_StorageFailureIsReported(t *testing.T) {
	f := newUserFixture("school.edu")
	f.users.createErr = func(*domain.User) error { return errors.New("connection refused") }

	_, err := f.svc.CreateUserLocal(context.Background(), newUser("alice", "alice@school.edu"), "secret-pass")
	require.ErrorIs(t, err, ErrRegistrationFailed)
	require.EqualError(t, waitReport(t, f.reporter.captured), "connection refused")
	require.Empty(t, f.dispatcher.published)
}

func TestCreateUser_EventFailureOnlyReported(t *testing.T) {
	f := newUserFixture("school.edu")
	f.dispatcher.err = errors.New("broker down")

	user, err := f.svc.CreateUser(context.Background(), newUser("alice", "alice@anywhere.com"))
	require.NoError(t, err)
	require.Nil(t, user.VerifiedEmail)
	require.NotEmpty(t, user.ID)

	waitEvent(t, f.dispatcher.published)
	require.EqualError(t, waitReport(t, f.reporter.captured), "broker down")
}

func TestCreateUserWithoutPassword(t *testing.T) {
	f := newUserFixture("school.edu")

	_, err := f.svc.CreateUserWithoutPassword(context.Background(), newUser("bob", "bob@other.com"))
	require.ErrorIs(t, err, ErrDomainNotWhitelisted)

	user, err := f.svc.CreateUserWithoutPassword(context.Background(), newUser("bob", "bob@school.edu"))
	require.NoError(t, err)
	_, err = f.users.GetCredential(context.Background(), user.ID)
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestCreatePaths_VerifiedEmailMustBeWhitelisted(t *testing.T) {
	type createFunc func(*UserService, context.Context, *domain.User) (*domain.User, error)
	local := func(s *UserService, ctx context.Context, u *domain.User) (*domain.User, error) {
		return s.CreateUserLocal(ctx, u, "secret-pass")
	}

	tests := []struct {
		name   string
		create createFunc
	}{
		{"create user", (*UserService).CreateUser},
		{"create without password", (*UserService).CreateUserWithoutPassword},
		{"create local", local},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUserFixture("school.edu")
			user := newUser("mallory", "mallory@school.edu")
			verified := "mallory@other.com"
			user.VerifiedEmail = &verified

			_, err := tt.create(f.svc, context.Background(), user)
			require.ErrorIs(t, err, ErrDomainNotWhitelisted)
			require.Zero(t, f.users.creates.Load())
			_, err = f.users.FindOne(context.Background(), repository.UserFilter{Username: "mallory"})
			require.ErrorIs(t, err, pgx.ErrNoRows)

			allowed := "mallory@school.edu"
			user = newUser("mallory", "mallory@school.edu")
			user.VerifiedEmail = &allowed
			created, err := tt.create(f.svc, context.Background(), user)
			require.NoError(t, err)
			require.Equal(t, "mallory@school.edu", *created.VerifiedEmail)
		})
	}
}

func TestFindUserByID(t *testing.T) {
	f := newUserFixture()
	stored := f.users.seed(domain.User{Username: "alice", Email: "alice@school.edu"})

	user, err := f.svc.FindUserByID(context.Background(), stored.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)

	_, err = f.svc.FindUserByID(context.Background(), "42")
	require.ErrorIs(t, err, pgx.ErrNoRows)
	_, err = f.svc.FindUserByID(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestFindUserByParams(t *testing.T) {
	f := newUserFixture()
	f.users.seed(domain.User{Username: "alice", Email: "alice@school.edu"})

	user, err := f.svc.FindUserByParams(context.Background(), repository.UserFilter{Email: "ALICE@school.edu"})
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)

	_, err = f.svc.FindUserByParams(context.Background(), repository.UserFilter{})
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestFindUserForClient(t *testing.T) {
	f := newUserFixture()
	year := 2024
	stored := f.users.seed(domain.User{
		Username: "alice", Email: "alice@school.edu", Firstname: "Alice",
		MobileNumber: "9876543210", Photo: "a.png", GraduationYear: &year,
	})

	public, err := f.svc.FindUserForClient(context.Background(), false, stored.ID)
	require.NoError(t, err)
	require.Equal(t, domain.User{ID: stored.ID, Username: "alice", Photo: "a.png", GraduationYear: &year}, *public)

	full, err := f.svc.FindUserForClient(context.Background(), true, stored.ID)
	require.NoError(t, err)
	require.Equal(t, "9876543210", full.MobileNumber)
	require.Equal(t, "alice@school.edu", full.Email)
}

func TestBuildUserFilter(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name    string
		args    FilterArgs
		want    repository.UserFilter
		wantErr error
	}{
		{name: "empty", args: FilterArgs{}, want: repository.UserFilter{}},
		{
			name: "names and email",
			args: FilterArgs{Username: "alice", Firstname: "Al", Lastname: "Li", Email: "a.lice@school.edu"},
			want: repository.UserFilter{Username: "alice", FirstnamePrefix: "Al", LastnamePrefix: "Li", EmailLoose: "a.lice@school.edu"},
		},
		{name: "contact digits", args: FilterArgs{Contact: "98765"}, want: repository.UserFilter{ContactPrefix: "98765"}},
		{name: "contact with plus", args: FilterArgs{Contact: "+9198"}, wantErr: ErrInvalidPhoneFormat},
		{name: "verified", args: FilterArgs{Verified: "true"}, want: repository.UserFilter{Verified: &yes}},
		{name: "anything else is unverified", args: FilterArgs{Verified: "yes"}, want: repository.UserFilter{Verified: &no}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildUserFilter(tt.args)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFindAllUsersWithFilter(t *testing.T) {
	f := newUserFixture()
	verified := "ab.c@school.edu"
	f.users.seed(domain.User{Username: "abc", Email: verified, VerifiedEmail: &verified, MobileNumber: "9876543210", Photo: "p.png"})
	f.users.seed(domain.User{Username: "xyz", Email: "xyz@school.edu", MobileNumber: "9123456789"})

	got, err := f.svc.FindAllUsersWithFilter(context.Background(), false, FilterArgs{Email: "abc@school.edu"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "abc", got[0].Username)
	require.Empty(t, got[0].Photo, "untrusted clients get directory entries")
	require.Nil(t, got[0].VerifiedEmail)

	got, err = f.svc.FindAllUsersWithFilter(context.Background(), true, FilterArgs{Contact: "91", Verified: "false"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "xyz", got[0].Username)

	_, err = f.svc.FindAllUsersWithFilter(context.Background(), true, FilterArgs{Contact: "91-23"})
	require.ErrorIs(t, err, ErrInvalidPhoneFormat)

	all, err := f.svc.FindAllUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestUpdateUserByID(t *testing.T) {
	f := newUserFixture("school.edu")
	stored := f.users.seed(domain.User{Username: "alice", Email: "alice@school.edu"})
	photo := "new.png"

	n, err := f.svc.UpdateUserByID(context.Background(), stored.ID, domain.UserChanges{Photo: &photo})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	event := waitEvent(t, f.dispatcher.published)
	require.Equal(t, events.EventUserUpdated, event.Type)
	require.Equal(t, events.UserUpdatedPayload{Fields: []string{"photo"}}, event.Payload)

	_, err = f.svc.UpdateUserByID(context.Background(), stored.ID, domain.UserChanges{})
	require.ErrorIs(t, err, ErrNoChanges)

	foreign := "alice@other.com"
	_, err = f.svc.UpdateUserByID(context.Background(), stored.ID, domain.UserChanges{VerifiedEmail: &foreign})
	require.ErrorIs(t, err, ErrDomainNotWhitelisted)
}

func TestUpdateUserByParams(t *testing.T) {
	f := newUserFixture("school.edu")
	stored := f.users.seed(domain.User{Username: "alice", Email: "alice@school.edu"})
	verified := "Alice@School.edu"

	n, err := f.svc.UpdateUserByParams(context.Background(),
		repository.UserFilter{Email: "ALICE@school.edu"},
		domain.UserChanges{VerifiedEmail: &verified})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	event := waitEvent(t, f.dispatcher.published)
	require.Equal(t, stored.ID, event.UserID)

	u, ok := f.users.byUsername("alice")
	require.True(t, ok)
	require.True(t, u.IsVerified())

	_, err = f.svc.UpdateUserByParams(context.Background(), repository.UserFilter{}, domain.UserChanges{VerifiedEmail: &verified})
	require.ErrorIs(t, err, repository.ErrUnboundedUpdate)

	_, err = f.svc.UpdateUserByParams(context.Background(), repository.UserFilter{Username: "nobody"}, domain.UserChanges{VerifiedEmail: &verified})
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestClearSessionsForUser(t *testing.T) {
	f := newUserFixture()
	userID := uuid.NewString()
	for i := 0; i < 3; i++ {
		require.NoError(t, f.sessions.Create(context.Background(), &domain.Session{
			ID: uuid.NewString(), UserID: userID, ExpiresAt: time.Now().Add(time.Hour),
		}))
	}

	n, err := f.svc.ClearSessionsForUser(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	_, err = f.svc.ClearSessionsForUser(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

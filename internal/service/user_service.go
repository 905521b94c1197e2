package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/policy"
	"github.com/spec-kit/account-service/internal/repository"
)

// FilterArgs carries the raw query parameters of a directory search.
type FilterArgs struct {
	Username  string
	Firstname string
	Lastname  string
	Email     string
	Contact   string
	Verified  string
}

// UserService coordinates account reads and writes.
type UserService struct {
	users      repository.UserRepository
	sessions   repository.SessionRepository
	whitelist  EmailWhitelist
	hasher     PasswordHasher
	dispatcher events.Dispatcher
	reporter   observability.Reporter
	logger     *zap.Logger
}

// UserDependencies encapsulates collaborators of the user service.
type UserDependencies struct {
	UserRepo    repository.UserRepository
	SessionRepo repository.SessionRepository
	Whitelist   EmailWhitelist
	Hasher      PasswordHasher
	Dispatcher  events.Dispatcher
	Reporter    observability.Reporter
	Logger      *zap.Logger
}

// NewUserService builds the service.
func NewUserService(deps UserDependencies) *UserService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &UserService{
		users:      deps.UserRepo,
		sessions:   deps.SessionRepo,
		whitelist:  deps.Whitelist,
		hasher:     deps.Hasher,
		dispatcher: deps.Dispatcher,
		reporter:   reporter,
		logger:     logger,
	}
}

// FindAllUsers lists every account.
func (s *UserService) FindAllUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.FindAll(ctx, repository.UserFilter{})
}

// FindUserByID loads a user. Malformed ids are reported as not found.
func (s *UserService) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, pgx.ErrNoRows
	}
	return s.users.GetByID(ctx, id)
}

// FindUserByParams returns the first user matching filter.
func (s *UserService) FindUserByParams(ctx context.Context, filter repository.UserFilter) (*domain.User, error) {
	if filter.Empty() {
		return nil, pgx.ErrNoRows
	}
	return s.users.FindOne(ctx, filter)
}

// FindUserForClient loads a user, trimmed to the public profile unless the
// client is trusted.
func (s *UserService) FindUserForClient(ctx context.Context, trusted bool, id string) (*domain.User, error) {
	user, err := s.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !trusted {
		public := user.PublicProfile()
		return &public, nil
	}
	return user, nil
}

// FindAllUsersWithFilter searches the directory. Untrusted clients get
// directory entries only.
func (s *UserService) FindAllUsersWithFilter(ctx context.Context, trusted bool, args FilterArgs) ([]domain.User, error) {
	filter, err := BuildUserFilter(args)
	if err != nil {
		return nil, err
	}
	var users []domain.User
	if filter.Empty() {
		users, err = s.FindAllUsers(ctx)
	} else {
		users, err = s.users.FindAll(ctx, filter)
	}
	if err != nil {
		return nil, err
	}
	if trusted {
		return users, nil
	}
	entries := make([]domain.User, len(users))
	for i, u := range users {
		entries[i] = u.DirectoryEntry()
	}
	return entries, nil
}

// BuildUserFilter turns search arguments into a storage filter. Contact must
// be digits only; verified is true only for the literal "true".
func BuildUserFilter(args FilterArgs) (repository.UserFilter, error) {
	filter := repository.UserFilter{
		Username:        strings.TrimSpace(args.Username),
		FirstnamePrefix: strings.TrimSpace(args.Firstname),
		LastnamePrefix:  strings.TrimSpace(args.Lastname),
		EmailLoose:      strings.TrimSpace(args.Email),
	}
	if contact := strings.TrimSpace(args.Contact); contact != "" {
		if !allDigits(contact) {
			return repository.UserFilter{}, ErrInvalidPhoneFormat
		}
		filter.ContactPrefix = contact
	}
	if args.Verified != "" {
		verified := args.Verified == "true"
		filter.Verified = &verified
	}
	return filter, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// CreateUserLocal registers an account with a local password. The user and
// credential are written atomically.
func (s *UserService) CreateUserLocal(ctx context.Context, user *domain.User, password string) (*domain.User, error) {
	if err := s.checkNewUser(ctx, user); err != nil {
		return nil, err
	}
	if err := policy.CheckUsername(user.Username); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	user.Credential = &domain.Credential{PasswordHash: hash}

	if err := s.users.Create(ctx, user); err != nil {
		s.reporter.Capture(err, zap.String("op", "create_user_local"), zap.String("username", user.Username))
		user.Credential = nil
		return nil, ErrRegistrationFailed
	}
	user.Credential = nil

	s.emit(ctx, events.EventUserCreated, user.ID, nil)
	return user, nil
}

// CreateUserWithoutPassword registers an account that signs in through an
// external provider.
func (s *UserService) CreateUserWithoutPassword(ctx context.Context, user *domain.User) (*domain.User, error) {
	if err := s.ensureWhitelisted(ctx, user.Email); err != nil {
		return nil, err
	}
	user.Credential = nil
	return s.CreateUser(ctx, user)
}

// CreateUser inserts user as given and emits user_created. A verified email
// must still belong to a whitelisted domain.
func (s *UserService) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user.VerifiedEmail != nil {
		if err := s.ensureWhitelisted(ctx, *user.VerifiedEmail); err != nil {
			return nil, err
		}
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.emit(ctx, events.EventUserCreated, user.ID, nil)
	return user, nil
}

// UpdateUserByID applies changes to one user and emits user_updated.
func (s *UserService) UpdateUserByID(ctx context.Context, id string, changes domain.UserChanges) (int64, error) {
	if err := s.checkChanges(ctx, changes); err != nil {
		return 0, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return 0, pgx.ErrNoRows
	}
	n, err := s.users.Update(ctx, id, changes)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.emit(ctx, events.EventUserUpdated, id, updatedPayload(changes))
	}
	return n, nil
}

// UpdateUserByParams applies changes to every user matching filter. The
// user_updated event names the first match.
func (s *UserService) UpdateUserByParams(ctx context.Context, filter repository.UserFilter, changes domain.UserChanges) (int64, error) {
	if filter.Empty() {
		return 0, repository.ErrUnboundedUpdate
	}
	if err := s.checkChanges(ctx, changes); err != nil {
		return 0, err
	}

	first, err := s.users.FindOne(ctx, filter)
	if err != nil {
		return 0, err
	}
	n, err := s.users.UpdateWhere(ctx, filter, changes)
	if err != nil {
		return 0, err
	}
	s.emit(ctx, events.EventUserUpdated, first.ID, updatedPayload(changes))
	return n, nil
}

// ClearSessionsForUser signs the user out everywhere.
func (s *UserService) ClearSessionsForUser(ctx context.Context, userID string) (int64, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return 0, pgx.ErrNoRows
	}
	return s.sessions.DeleteByUser(ctx, userID)
}

func (s *UserService) checkChanges(ctx context.Context, changes domain.UserChanges) error {
	if changes.Empty() {
		return ErrNoChanges
	}
	if changes.VerifiedEmail != nil {
		return s.ensureWhitelisted(ctx, *changes.VerifiedEmail)
	}
	return nil
}

func (s *UserService) checkNewUser(ctx context.Context, user *domain.User) error {
	if err := s.ensureWhitelisted(ctx, user.Email); err != nil {
		return err
	}
	if user.VerifiedEmail != nil && !strings.EqualFold(*user.VerifiedEmail, user.Email) {
		return s.ensureWhitelisted(ctx, *user.VerifiedEmail)
	}
	return nil
}

func (s *UserService) ensureWhitelisted(ctx context.Context, email string) error {
	allowed, err := s.whitelist.IsWhitelisted(ctx, email)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrDomainNotWhitelisted
	}
	return nil
}

// emit publishes in the background; the caller never waits for handlers and
// failures only reach the reporter.
func (s *UserService) emit(ctx context.Context, eventType events.EventType, userID string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	event := events.NewUserEvent(eventType, userID, payload)
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.reporter.Capture(err, zap.String("event", string(eventType)), zap.String("user_id", userID))
		}
	}()
}

type nopReporter struct{}

func (nopReporter) Capture(error, ...zap.Field) {}

func updatedPayload(c domain.UserChanges) events.UserUpdatedPayload {
	var fields []string
	if c.Firstname != nil {
		fields = append(fields, "firstname")
	}
	if c.Lastname != nil {
		fields = append(fields, "lastname")
	}
	if c.MobileNumber != nil {
		fields = append(fields, "mobile_number")
	}
	if c.Photo != nil {
		fields = append(fields, "photo")
	}
	if c.GraduationYear != nil {
		fields = append(fields, "graduation_year")
	}
	if c.VerifiedEmail != nil {
		fields = append(fields, "verified_email")
	}
	return events.UserUpdatedPayload{Fields: fields}
}

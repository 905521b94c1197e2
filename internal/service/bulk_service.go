package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/policy"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/validation"
)

// DefaultConcurrency caps in-flight candidates when no limit is configured.
const DefaultConcurrency = 50

// PasswordHasher produces salted one-way hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// EmailWhitelist confirms an email's domain is permitted.
type EmailWhitelist interface {
	IsWhitelisted(ctx context.Context, email string) (bool, error)
}

// DuplicateDetector flags candidates whose username or email is already taken.
// It is advisory: the unique indexes in storage remain the authority, so two
// identical candidates can both pass and only one will be created.
type DuplicateDetector struct {
	users       repository.UserRepository
	concurrency int
	maxBatch    int
}

// NewDuplicateDetector constructs detector.
func NewDuplicateDetector(users repository.UserRepository, cfg config.ProvisioningConfig) *DuplicateDetector {
	return &DuplicateDetector{users: users, concurrency: concurrencyOf(cfg), maxBatch: cfg.MaxBatchSize}
}

func concurrencyOf(cfg config.ProvisioningConfig) int {
	if cfg.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return cfg.Concurrency
}

type detectOptions struct {
	withinBatch bool
}

// DetectOption tunes a detection run.
type DetectOption func(*detectOptions)

// WithinBatch also flags a candidate that repeats the username or email of an
// earlier candidate in the same batch.
func WithinBatch() DetectOption {
	return func(o *detectOptions) { o.withinBatch = true }
}

// DetectDuplicates returns one annotated entry per candidate, in input order.
func (d *DuplicateDetector) DetectDuplicates(ctx context.Context, candidates []domain.Candidate, opts ...DetectOption) ([]domain.CheckedCandidate, error) {
	if d.maxBatch > 0 && len(candidates) > d.maxBatch {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(candidates), d.maxBatch)
	}
	var o detectOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx = context.WithoutCancel(ctx)
	checked := make([]domain.CheckedCandidate, len(candidates))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			checked[i] = d.check(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	if o.withinBatch {
		markRepeats(checked)
	}
	return checked, nil
}

func (d *DuplicateDetector) check(ctx context.Context, c domain.Candidate) (checked domain.CheckedCandidate) {
	checked.Candidate = c
	defer func() {
		if r := recover(); r != nil {
			checked.Verdict = domain.DuplicateVerdict{}
			checked.Err = fmt.Errorf("lookup panicked: %v", r)
		}
	}()
	checked.Verdict, checked.Err = d.lookup(ctx, c)
	return checked
}

// lookup runs the username and email queries one after the other so a
// candidate never holds more than one storage call at a time.
func (d *DuplicateDetector) lookup(ctx context.Context, c domain.Candidate) (domain.DuplicateVerdict, error) {
	var verdict domain.DuplicateVerdict

	usernameTaken, err := d.exists(ctx, repository.UserFilter{Username: c.Username})
	if err != nil {
		return verdict, fmt.Errorf("username lookup: %w", err)
	}
	emailTaken, err := d.exists(ctx, repository.UserFilter{VerifiedEmail: c.Email})
	if err != nil {
		return verdict, fmt.Errorf("email lookup: %w", err)
	}

	verdict.Username = usernameTaken
	verdict.Email = emailTaken
	return verdict, nil
}

func (d *DuplicateDetector) exists(ctx context.Context, filter repository.UserFilter) (bool, error) {
	if filter.Empty() {
		return false, nil
	}
	_, err := d.users.FindOne(ctx, filter)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, err
	}
}

func markRepeats(checked []domain.CheckedCandidate) {
	seenUsernames := make(map[string]struct{}, len(checked))
	seenEmails := make(map[string]struct{}, len(checked))
	for i := range checked {
		username := strings.ToLower(checked[i].Candidate.Username)
		email := strings.ToLower(checked[i].Candidate.Email)
		if _, ok := seenUsernames[username]; ok && username != "" {
			checked[i].Verdict.Username = true
		}
		if _, ok := seenEmails[email]; ok && email != "" {
			checked[i].Verdict.Email = true
		}
		seenUsernames[username] = struct{}{}
		seenEmails[email] = struct{}{}
	}
}

// BulkProvisioner creates verified accounts for a batch of candidates under a
// fixed concurrency cap. Per-record failures are returned, never raised.
type BulkProvisioner struct {
	users       repository.UserRepository
	whitelist   EmailWhitelist
	hasher      PasswordHasher
	concurrency int
	maxBatch    int
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// BulkDependencies encapsulates collaborators of the provisioner.
type BulkDependencies struct {
	UserRepo  repository.UserRepository
	Whitelist EmailWhitelist
	Hasher    PasswordHasher
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// NewBulkProvisioner builds the provisioner.
func NewBulkProvisioner(cfg config.ProvisioningConfig, deps BulkDependencies) *BulkProvisioner {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkProvisioner{
		users:       deps.UserRepo,
		whitelist:   deps.Whitelist,
		hasher:      deps.Hasher,
		concurrency: concurrencyOf(cfg),
		maxBatch:    cfg.MaxBatchSize,
		logger:      logger,
		metrics:     deps.Metrics,
	}
}

// ProvisionBatch attempts every candidate and returns exactly one result per
// candidate, in input order. The caller's cancellation does not cut a batch short.
func (p *BulkProvisioner) ProvisionBatch(ctx context.Context, candidates []domain.Candidate) ([]domain.BatchResult, error) {
	if p.maxBatch > 0 && len(candidates) > p.maxBatch {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(candidates), p.maxBatch)
	}

	ctx = context.WithoutCancel(ctx)
	results := make([]domain.BatchResult, len(candidates))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			results[i] = p.provisionOne(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	created := 0
	for _, r := range results {
		if r.Created {
			created++
		}
	}
	p.metrics.RecordBatch("provision", created, len(results)-created)
	p.logger.Info("batch provisioned",
		zap.Int("size", len(results)),
		zap.Int("created", created),
		zap.Int("failed", len(results)-created),
	)
	return results, nil
}

func (p *BulkProvisioner) provisionOne(ctx context.Context, c domain.Candidate) (result domain.BatchResult) {
	pending := c.ToUser()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("provisioning panicked", zap.String("username", c.Username), zap.Any("panic", r))
			result = domain.FailedResult(pending, fmt.Sprintf("unexpected failure: %v", r))
		}
	}()

	if reason := policy.ValidateUsername(c.Username); reason != "" {
		return domain.FailedResult(pending, reason)
	}

	allowed, err := p.whitelist.IsWhitelisted(ctx, c.Email)
	if err != nil {
		return domain.FailedResult(pending, err.Error())
	}
	if !allowed {
		return domain.FailedResult(pending, ErrDomainNotWhitelisted.Error())
	}

	hash, err := p.hasher.Hash(c.Password)
	if err != nil {
		return domain.FailedResult(pending, err.Error())
	}

	record := pending
	verified := c.Email
	record.VerifiedEmail = &verified
	record.Credential = &domain.Credential{PasswordHash: hash}

	if err := p.users.Create(ctx, &record); err != nil {
		p.logger.Debug("bulk create failed", zap.String("username", c.Username), zap.Error(err))
		return domain.FailedResult(pending, err.Error())
	}

	record.Credential = nil
	return domain.BatchResult{User: record, Created: true}
}

// BatchValidator normalizes raw input or reports every invalid field.
type BatchValidator interface {
	ValidateBatch(inputs []validation.UserInput) ([]domain.Candidate, error)
}

// BulkService runs the import pipeline: validate, detect duplicates, provision.
type BulkService struct {
	validator   BatchValidator
	detector    *DuplicateDetector
	provisioner *BulkProvisioner
	metrics     *observability.Metrics
}

// NewBulkService wires the pipeline stages.
func NewBulkService(validator BatchValidator, detector *DuplicateDetector, provisioner *BulkProvisioner, metrics *observability.Metrics) *BulkService {
	return &BulkService{validator: validator, detector: detector, provisioner: provisioner, metrics: metrics}
}

// Check validates the batch and reports duplicates without creating anything.
func (s *BulkService) Check(ctx context.Context, inputs []validation.UserInput) ([]domain.CheckedCandidate, error) {
	candidates, err := s.validator.ValidateBatch(inputs)
	if err != nil {
		return nil, err
	}
	return s.detector.DetectDuplicates(ctx, candidates, WithinBatch())
}

// Import provisions every candidate that passed duplicate detection. Flagged
// candidates are reported as not created with the verdict as the error.
func (s *BulkService) Import(ctx context.Context, inputs []validation.UserInput) ([]domain.BatchResult, error) {
	checked, err := s.Check(ctx, inputs)
	if err != nil {
		return nil, err
	}

	results := make([]domain.BatchResult, 0, len(checked))
	accepted := make([]domain.Candidate, 0, len(checked))
	for _, c := range checked {
		if c.Provisionable() {
			accepted = append(accepted, c.Candidate)
			continue
		}
		results = append(results, domain.FailedResult(c.Candidate.ToUser(), c.Reason()))
	}
	s.metrics.RecordBatch("detect", 0, len(results))

	provisioned, err := s.provisioner.ProvisionBatch(ctx, accepted)
	if err != nil {
		return nil, err
	}
	return append(results, provisioned...), nil
}

package referrals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/justcook/justcook-backend/internal/customers"
	"github.com/justcook/justcook-backend/pkg/config"
	"github.com/justcook/justcook-backend/pkg/db/models"
	pkgerrors "github.com/justcook/justcook-backend/pkg/errors"
	"github.com/justcook/justcook-backend/pkg/logger"
)

// Outcome describes what a redemption attempt did. Only infrastructure
// failures are returned as errors.
type Outcome string

const (
	OutcomeRedeemed        Outcome = "redeemed"
	OutcomeAlreadyReferred Outcome = "already_referred"
	OutcomeCodeUsed        Outcome = "code_used"
	OutcomeSelfReferral    Outcome = "self_referral"
	OutcomeUnknownCode     Outcome = "unknown_code"
)

const redeemSavepoint = "referral_redeem"

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Validation is the read-only verdict on a code for a given customer.
type Validation struct {
	Valid   bool      `json:"valid"`
	Code    string    `json:"code"`
	OwnerID uuid.UUID `json:"ownerId"`
}

// Summary is a customer's view of their own referral standing.
type Summary struct {
	Code                string `json:"code"`
	FreeDeliveryCredits int    `json:"freeDeliveryCredits"`
	Referred            bool   `json:"referred"`
	CodeRedeemed        bool   `json:"codeRedeemed"`
}

type Service struct {
	tx          TxRunner
	repo        Repository
	customers   customers.Repository
	gen         CodeGenerator
	known       *knownCodes
	maxAttempts int
	logg        *logger.Logger
}

type Option func(*Service)

// WithCodeGenerator overrides the random code source.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(s *Service) {
		if gen != nil {
			s.gen = gen
		}
	}
}

func NewService(tx TxRunner, repo Repository, customerRepo customers.Repository, cfg config.ReferralConfig, logg *logger.Logger, opts ...Option) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil || customerRepo == nil {
		return nil, fmt.Errorf("referral and customer repositories required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	s := &Service{
		tx:          tx,
		repo:        repo,
		customers:   customerRepo,
		gen:         NewCodeGenerator(cfg.CodePrefix, cfg.CodeLength),
		known:       newKnownCodes(),
		maxAttempts: maxAttempts,
		logg:        logg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Validate checks a code for customerID without changing any state.
func (s *Service) Validate(ctx context.Context, code string, customerID uuid.UUID) (*Validation, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidReferral, "referral code is not valid")
	}

	row, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidReferral, "referral code is not valid")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load referral code")
	}
	if row.OwnerCustomerID == customerID {
		return nil, pkgerrors.New(pkgerrors.CodeSelfReferral, "you cannot use your own referral code")
	}
	if row.Redeemed {
		return nil, pkgerrors.New(pkgerrors.CodeReferralUsed, "referral code has already been used")
	}

	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return nil, customers.MapLookupError(err)
	}
	if customer.ReferredBy != nil {
		return nil, pkgerrors.New(pkgerrors.CodeReferralUsed, "you have already used a referral code")
	}

	return &Validation{Valid: true, Code: row.Code, OwnerID: row.OwnerCustomerID}, nil
}

// RedeemTx applies a referral inside the caller's transaction. Each step is a
// conditional write under a savepoint, so replays and lost races leave no
// partial effects.
func (s *Service) RedeemTx(ctx context.Context, tx *gorm.DB, code string, redeemer uuid.UUID, now time.Time) (Outcome, error) {
	code = NormalizeCode(code)
	if code == "" {
		return OutcomeUnknownCode, nil
	}

	codes := s.repo.WithTx(tx)
	row, err := codes.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OutcomeUnknownCode, nil
		}
		return "", fmt.Errorf("load referral code: %w", err)
	}
	if row.OwnerCustomerID == redeemer {
		return OutcomeSelfReferral, nil
	}

	if err := tx.SavePoint(redeemSavepoint).Error; err != nil {
		return "", fmt.Errorf("savepoint: %w", err)
	}
	rollback := func(outcome Outcome, cause error) (Outcome, error) {
		if err := tx.RollbackTo(redeemSavepoint).Error; err != nil {
			return "", fmt.Errorf("rollback to savepoint: %w", err)
		}
		return outcome, cause
	}

	customerRepo := s.customers.WithTx(tx)
	linked, err := customerRepo.SetReferredByIfUnset(ctx, redeemer, row.OwnerCustomerID, now)
	if err != nil {
		return rollback("", fmt.Errorf("link referrer: %w", err))
	}
	if !linked {
		return rollback(OutcomeAlreadyReferred, nil)
	}

	marked, err := codes.MarkRedeemed(ctx, code, redeemer, now)
	if err != nil {
		return rollback("", fmt.Errorf("mark code redeemed: %w", err))
	}
	if !marked {
		return rollback(OutcomeCodeUsed, nil)
	}

	if err := customerRepo.AddCredits(ctx, row.OwnerCustomerID, 1); err != nil {
		return rollback("", fmt.Errorf("credit referrer: %w", err))
	}
	return OutcomeRedeemed, nil
}

// EnsureCode returns the customer's referral code, issuing one on first use.
func (s *Service) EnsureCode(ctx context.Context, customerID uuid.UUID) (string, error) {
	var code string
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		code, err = s.EnsureCodeTx(ctx, tx, customerID)
		return err
	})
	return code, err
}

// EnsureCodeTx is EnsureCode inside an existing transaction. An issued code
// is never replaced.
func (s *Service) EnsureCodeTx(ctx context.Context, tx *gorm.DB, customerID uuid.UUID) (string, error) {
	customerRepo := s.customers.WithTx(tx)
	customer, err := customerRepo.FindByID(ctx, customerID)
	if err != nil {
		return "", customers.MapLookupError(err)
	}
	if customer.ReferralCode != nil && *customer.ReferralCode != "" {
		return *customer.ReferralCode, nil
	}

	codes := s.repo.WithTx(tx)
	var code string
	existing, err := codes.FindByOwner(ctx, customerID)
	switch {
	case err == nil:
		code = existing.Code
	case errors.Is(err, gorm.ErrRecordNotFound):
		code, err = s.issue(ctx, codes, customerID)
		if err != nil {
			return "", err
		}
	default:
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load referral code")
	}

	set, err := customerRepo.SetReferralCodeIfUnset(ctx, customerID, code)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store referral code")
	}
	if !set {
		customer, err = customerRepo.FindByID(ctx, customerID)
		if err != nil {
			return "", customers.MapLookupError(err)
		}
		if customer.ReferralCode != nil {
			return *customer.ReferralCode, nil
		}
	}
	return code, nil
}

func (s *Service) issue(ctx context.Context, codes Repository, ownerID uuid.UUID) (string, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		candidate, err := s.gen.Generate()
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate referral code")
		}
		if s.known.MaybeTaken(candidate) {
			continue
		}

		inserted, err := codes.InsertIfAbsent(ctx, &models.ReferralCode{Code: candidate, OwnerCustomerID: ownerID})
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert referral code")
		}
		if inserted {
			s.known.Add(candidate)
			return candidate, nil
		}

		// The owner may have been issued a code concurrently.
		if existing, err := codes.FindByOwner(ctx, ownerID); err == nil {
			return existing.Code, nil
		}
		s.known.Add(candidate)
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "referral.code_collision")
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, "could not allocate a unique referral code").
		WithDetails(map[string]any{"attempts": s.maxAttempts})
}

// Summary ensures the customer's code exists and reports their standing.
func (s *Service) Summary(ctx context.Context, customerID uuid.UUID) (*Summary, error) {
	var out Summary
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		code, err := s.EnsureCodeTx(ctx, tx, customerID)
		if err != nil {
			return err
		}
		customer, err := s.customers.WithTx(tx).FindByID(ctx, customerID)
		if err != nil {
			return customers.MapLookupError(err)
		}
		row, err := s.repo.WithTx(tx).FindByCode(ctx, code)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load referral code")
		}
		out = Summary{
			Code:                code,
			FreeDeliveryCredits: customer.FreeDeliveryCredits,
			Referred:            customer.ReferredBy != nil,
			CodeRedeemed:        row.Redeemed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

package referrals

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/justcook/justcook-backend/internal/customers"
	"github.com/justcook/justcook-backend/pkg/config"
	"github.com/justcook/justcook-backend/pkg/db"
	"github.com/justcook/justcook-backend/pkg/db/dbtest"
	"github.com/justcook/justcook-backend/pkg/db/models"
	pkgerrors "github.com/justcook/justcook-backend/pkg/errors"
)

type fixture struct {
	conn      *gorm.DB
	client    *db.Client
	customers customers.Repository
	codes     Repository
	svc       *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	f := &fixture{
		conn:      conn,
		client:    db.NewFromConn(conn),
		customers: customers.NewRepository(conn),
		codes:     NewRepository(conn),
	}
	svc, err := NewService(f.client, f.codes, f.customers, config.ReferralConfig{CodePrefix: "JC-", CodeLength: 8, MaxAttempts: 4}, nil, opts...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) customer(t *testing.T, name string) *models.Customer {
	t.Helper()
	c := &models.Customer{Name: name, Phone: "07700900123"}
	require.NoError(t, f.customers.Create(context.Background(), c))
	return c
}

func (f *fixture) redeem(t *testing.T, code string, redeemer uuid.UUID) Outcome {
	t.Helper()
	var outcome Outcome
	require.NoError(t, f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		outcome, err = f.svc.RedeemTx(context.Background(), tx, code, redeemer, time.Now().UTC())
		return err
	}))
	return outcome
}

type sequenceCodes struct {
	codes []string
	i     int
}

func (s *sequenceCodes) Generate() (string, error) {
	code := s.codes[s.i%len(s.codes)]
	s.i++
	return code, nil
}

func TestEnsureCodeIssuesOnceAndNeverRegenerates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.customer(t, "Owner")

	code, err := f.svc.EnsureCode(ctx, owner.ID)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^JC-[A-Z0-9]{8}$`), code)

	again, err := f.svc.EnsureCode(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, code, again)

	stored, err := f.customers.FindByID(ctx, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReferralCode)
	assert.Equal(t, code, *stored.ReferralCode)
}

func TestEnsureCodeRetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	gen := &sequenceCodes{codes: []string{"JC-TAKEN001", "JC-TAKEN001", "JC-FRESH001"}}
	f := newFixture(t, WithCodeGenerator(gen))

	other := f.customer(t, "Other")
	inserted, err := f.codes.InsertIfAbsent(ctx, &models.ReferralCode{Code: "JC-TAKEN001", OwnerCustomerID: other.ID})
	require.NoError(t, err)
	require.True(t, inserted)

	owner := f.customer(t, "Owner")
	code, err := f.svc.EnsureCode(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "JC-FRESH001", code)
	assert.Equal(t, 3, gen.i)
}

func TestEnsureCodeGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithCodeGenerator(&sequenceCodes{codes: []string{"JC-TAKEN001"}}))

	other := f.customer(t, "Other")
	_, err := f.codes.InsertIfAbsent(ctx, &models.ReferralCode{Code: "JC-TAKEN001", OwnerCustomerID: other.ID})
	require.NoError(t, err)

	owner := f.customer(t, "Owner")
	_, err = f.svc.EnsureCode(ctx, owner.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}

func TestEnsureCodeUnknownCustomer(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.EnsureCode(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.customer(t, "Owner")
	friend := f.customer(t, "Friend")
	code, err := f.svc.EnsureCode(ctx, owner.ID)
	require.NoError(t, err)

	v, err := f.svc.Validate(ctx, strings.TrimPrefix(code, "JC-"), friend.ID)
	assert.Nil(t, v)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidReferral))

	_, err = f.svc.Validate(ctx, "", friend.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidReferral))

	_, err = f.svc.Validate(ctx, code, owner.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSelfReferral))

	v, err = f.svc.Validate(ctx, " "+strings.ToLower(code)+" ", friend.ID)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, owner.ID, v.OwnerID)

	require.Equal(t, OutcomeRedeemed, f.redeem(t, code, friend.ID))

	late := f.customer(t, "Late")
	_, err = f.svc.Validate(ctx, code, late.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReferralUsed))

	otherOwner := f.customer(t, "Second owner")
	otherCode, err := f.svc.EnsureCode(ctx, otherOwner.ID)
	require.NoError(t, err)
	_, err = f.svc.Validate(ctx, otherCode, friend.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReferralUsed), "already referred customer")
}

func TestRedeemTwiceCreditsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.customer(t, "Owner")
	friend := f.customer(t, "Friend")
	code, err := f.svc.EnsureCode(ctx, owner.ID)
	require.NoError(t, err)

	assert.Equal(t, OutcomeRedeemed, f.redeem(t, code, friend.ID))
	assert.Equal(t, OutcomeAlreadyReferred, f.redeem(t, code, friend.ID))

	gotOwner, err := f.customers.FindByID(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotOwner.FreeDeliveryCredits)

	gotFriend, err := f.customers.FindByID(ctx, friend.ID)
	require.NoError(t, err)
	require.NotNil(t, gotFriend.ReferredBy)
	assert.Equal(t, owner.ID, *gotFriend.ReferredBy)

	row, err := f.codes.FindByCode(ctx, code)
	require.NoError(t, err)
	assert.True(t, row.Redeemed)
	require.NotNil(t, row.RedeemedBy)
	assert.Equal(t, friend.ID, *row.RedeemedBy)
}

func TestRedeemUsedCodeLeavesRedeemerUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.customer(t, "Owner")
	first := f.customer(t, "First")
	second := f.customer(t, "Second")
	code, err := f.svc.EnsureCode(ctx, owner.ID)
	require.NoError(t, err)

	require.Equal(t, OutcomeRedeemed, f.redeem(t, code, first.ID))
	assert.Equal(t, OutcomeCodeUsed, f.redeem(t, code, second.ID))

	got, err := f.customers.FindByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ReferredBy, "savepoint must undo the referrer link")

	gotOwner, err := f.customers.FindByID(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotOwner.FreeDeliveryCredits)
}

func TestRedeemRejectsSelfAndUnknown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.customer(t, "Owner")
	code, err := f.svc.EnsureCode(ctx, owner.ID)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSelfReferral, f.redeem(t, code, owner.ID))
	assert.Equal(t, OutcomeUnknownCode, f.redeem(t, "JC-NOPE0000", owner.ID))
	assert.Equal(t, OutcomeUnknownCode, f.redeem(t, " ", owner.ID))

	got, err := f.customers.FindByID(ctx, owner.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ReferredBy)
	assert.Equal(t, 0, got.FreeDeliveryCredits)
}

func TestSummaryAndWarm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.customer(t, "Owner")
	friend := f.customer(t, "Friend")

	summary, err := f.svc.Summary(ctx, owner.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, summary.Code)
	assert.False(t, summary.CodeRedeemed)

	require.Equal(t, OutcomeRedeemed, f.redeem(t, summary.Code, friend.ID))

	summary, err = f.svc.Summary(ctx, owner.ID)
	require.NoError(t, err)
	assert.True(t, summary.CodeRedeemed)
	assert.Equal(t, 1, summary.FreeDeliveryCredits)

	friendSummary, err := f.svc.Summary(ctx, friend.ID)
	require.NoError(t, err)
	assert.True(t, friendSummary.Referred)

	n, err := f.svc.Warm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, f.svc.known.MaybeTaken(summary.Code))
}

func TestCodeGeneratorFormat(t *testing.T) {
	gen := NewCodeGenerator("JC-", 8)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := gen.Generate()
		require.NoError(t, err)
		assert.Regexp(t, `^JC-[A-Z0-9]{8}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}

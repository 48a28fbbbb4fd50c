package customers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/justcook/justcook-backend/pkg/db/dbtest"
	"github.com/justcook/justcook-backend/pkg/db/models"
)

func seedCustomer(t *testing.T, repo Repository, credits int) *models.Customer {
	t.Helper()
	c := &models.Customer{Name: "Ada", Phone: "07700900123", FreeDeliveryCredits: credits}
	require.NoError(t, repo.Create(context.Background(), c))
	require.NotEqual(t, uuid.Nil, c.ID)
	return c
}

func TestRepositoryReferredByIsWrittenOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	c := seedCustomer(t, repo, 0)

	first, second := uuid.New(), uuid.New()
	ok, err := repo.SetReferredByIfUnset(ctx, c.ID, first, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SetReferredByIfUnset(ctx, c.ID, second, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ReferredBy)
	assert.Equal(t, first, *got.ReferredBy)
	assert.NotNil(t, got.ReferredAt)
}

func TestRepositoryConsumeCreditStopsAtZero(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	c := seedCustomer(t, repo, 1)

	ok, err := repo.ConsumeCredit(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ConsumeCredit(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.AddCredits(ctx, c.ID, 2))
	got, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.FreeDeliveryCredits)
}

func TestRepositoryReferralCodeIsSetOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	c := seedCustomer(t, repo, 0)

	ok, err := repo.SetReferralCodeIfUnset(ctx, c.ID, "JC-AAAA1111")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.SetReferralCodeIfUnset(ctx, c.ID, "JC-BBBB2222")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ReferralCode)
	assert.Equal(t, "JC-AAAA1111", *got.ReferralCode)
}

func TestRepositoryFindMissing(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

package customers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/justcook/justcook-backend/pkg/db/models"
)

// Repository persists customer accounts. Every mutation that guards an
// invariant is a conditional update reporting whether it applied.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, customer *models.Customer) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	SetReferredByIfUnset(ctx context.Context, id, referrerID uuid.UUID, at time.Time) (bool, error)
	SetReferralCodeIfUnset(ctx context.Context, id uuid.UUID, code string) (bool, error)
	AddCredits(ctx context.Context, id uuid.UUID, n int) error
	ConsumeCredit(ctx context.Context, id uuid.UUID) (bool, error)
	SetStudent(ctx context.Context, id uuid.UUID, isStudent bool) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a customer repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repository) SetReferredByIfUnset(ctx context.Context, id, referrerID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ? AND referred_by IS NULL", id).
		Updates(map[string]any{
			"referred_by": referrerID,
			"referred_at": at,
			"updated_at":  at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) SetReferralCodeIfUnset(ctx context.Context, id uuid.UUID, code string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ? AND referral_code IS NULL", id).
		Updates(map[string]any{
			"referral_code": code,
			"updated_at":    time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) AddCredits(ctx context.Context, id uuid.UUID, n int) error {
	return r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"free_delivery_credits": gorm.Expr("free_delivery_credits + ?", n),
			"updated_at":            time.Now().UTC(),
		}).Error
}

func (r *repository) ConsumeCredit(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ? AND free_delivery_credits > 0", id).
		Updates(map[string]any{
			"free_delivery_credits": gorm.Expr("free_delivery_credits - 1"),
			"updated_at":            time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) SetStudent(ctx context.Context, id uuid.UUID, isStudent bool) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_student": isStudent,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

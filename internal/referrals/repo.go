package referrals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/justcook/justcook-backend/pkg/db/models"
)

// Repository persists referral codes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByCode(ctx context.Context, code string) (*models.ReferralCode, error)
	FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.ReferralCode, error)
	InsertIfAbsent(ctx context.Context, code *models.ReferralCode) (bool, error)
	MarkRedeemed(ctx context.Context, code string, redeemer uuid.UUID, at time.Time) (bool, error)
	EachCode(ctx context.Context, fn func(code string)) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	var row models.ReferralCode
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.ReferralCode, error) {
	var row models.ReferralCode
	if err := r.db.WithContext(ctx).Where("owner_customer_id = ?", ownerID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// InsertIfAbsent reports false when either the code or the owner already exists.
func (r *repository) InsertIfAbsent(ctx context.Context, code *models.ReferralCode) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(code)
	return res.RowsAffected == 1, res.Error
}

func (r *repository) MarkRedeemed(ctx context.Context, code string, redeemer uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ReferralCode{}).
		Where("code = ? AND redeemed = ?", code, false).
		Updates(map[string]any{
			"redeemed":    true,
			"redeemed_by": redeemer,
			"redeemed_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) EachCode(ctx context.Context, fn func(code string)) error {
	rows, err := r.db.WithContext(ctx).Model(&models.ReferralCode{}).Select("code").Rows()
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return err
		}
		fn(code)
	}
	return rows.Err()
}

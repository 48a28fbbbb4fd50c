package models

import (
	"time"

	"github.com/google/uuid"
)

// ReferralCode is owned by exactly one customer and flips to redeemed once.
type ReferralCode struct {
	Code            string     `gorm:"column:code;primaryKey"`
	OwnerCustomerID uuid.UUID  `gorm:"column:owner_customer_id;type:uuid;not null;uniqueIndex"`
	Redeemed        bool       `gorm:"column:redeemed;not null;default:false"`
	RedeemedBy      *uuid.UUID `gorm:"column:redeemed_by;type:uuid"`
	RedeemedAt      *time.Time `gorm:"column:redeemed_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (ReferralCode) TableName() string { return "referral_codes" }

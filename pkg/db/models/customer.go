package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Customer is a shopper account. ReferredBy is written at most once.
type Customer struct {
	ID                  uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name                string     `gorm:"column:name;not null"`
	Phone               string     `gorm:"column:phone;not null"`
	ReferralCode        *string    `gorm:"column:referral_code;uniqueIndex"`
	FreeDeliveryCredits int        `gorm:"column:free_delivery_credits;not null;default:0"`
	ReferredBy          *uuid.UUID `gorm:"column:referred_by;type:uuid"`
	ReferredAt          *time.Time `gorm:"column:referred_at"`
	IsStudent           bool       `gorm:"column:is_student;not null;default:false"`
	CreatedAt           time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Customer) TableName() string { return "customers" }

func (c *Customer) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

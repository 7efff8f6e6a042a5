package models

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Setting represents one business-profile setting row per user.
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);not null;index:ux_settings_user_key,unique,priority:1" json:"user_id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;index:ux_settings_user_key,unique,priority:2" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BusinessSettings is the in-memory view of a user's business profile
// used when rendering receipts and reminders.
type BusinessSettings struct {
	BusinessName  string `json:"business_name" validate:"max=255"`
	EmailFromName string `json:"email_from_name" validate:"max=255"`
	LogoObjectKey string `json:"logo_object_key" validate:"max=512"`
	mu            sync.RWMutex
}

// Validate validates the settings
func (s *BusinessSettings) Validate() error {
	validate := validator.New()
	return validate.Struct(s)
}

// GetBusinessName returns the business display name, falling back to
// the product default when unset.
func (s *BusinessSettings) GetBusinessName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.BusinessName == "" {
		return "VeloBill"
	}
	return s.BusinessName
}

// LoadBusinessSettings loads a user's settings rows into a BusinessSettings view.
func LoadBusinessSettings(db *gorm.DB, userID string) (*BusinessSettings, error) {
	var rows []Setting
	if err := db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	bs := &BusinessSettings{}
	for _, row := range rows {
		switch row.Key {
		case "business_name":
			bs.BusinessName = row.Value
		case "email_from_name":
			bs.EmailFromName = row.Value
		case "logo_object_key":
			bs.LogoObjectKey = row.Value
		}
	}
	return bs, nil
}

// SaveBusinessSetting upserts a single settings row for a user.
func SaveBusinessSetting(db *gorm.DB, userID, key, value string) error {
	var setting Setting
	result := db.Where("user_id = ? AND setting_key = ?", userID, key).First(&setting)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			setting = Setting{UserID: userID, Key: key, Value: value}
			if err := db.Create(&setting).Error; err != nil {
				return fmt.Errorf("failed to create setting %s: %w", key, err)
			}
			return nil
		}
		return fmt.Errorf("failed to query setting %s: %w", key, result.Error)
	}

	setting.Value = value
	if err := db.Save(&setting).Error; err != nil {
		return fmt.Errorf("failed to update setting %s: %w", key, err)
	}
	return nil
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// Client is a billable customer of one VeloBill user.
type Client struct {
	ID        string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string         `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Name      string         `gorm:"type:varchar(200);not null" json:"name" validate:"required,min=1,max=200"`
	Email     string         `gorm:"type:varchar(200)" json:"email" validate:"omitempty,email"`
	Company   string         `gorm:"type:varchar(200)" json:"company"`
	Address   string         `gorm:"type:text" json:"address"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// FindClientByID loads a client by primary key
func FindClientByID(db *gorm.DB, id string) (*Client, error) {
	var c Client
	if err := db.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

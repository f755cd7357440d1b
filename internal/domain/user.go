package domain

import (
	"time"

	"gorm.io/gorm"
)

// User is a back-office account (staff or admin). Investors are not users;
// they authenticate through the identity provider.
type User struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Username       string     `gorm:"uniqueIndex;not null" json:"username"`
	Email          string     `gorm:"uniqueIndex;not null" json:"email"`
	HashedPassword string     `gorm:"not null" json:"-"`
	FullName       *string    `json:"fullName"`
	IsActive       bool       `gorm:"default:true" json:"isActive"`
	IsAdmin        bool       `gorm:"default:false" json:"isAdmin"`
	IsStaff        bool       `gorm:"default:false" json:"isStaff"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	LastLogin      *time.Time `json:"lastLogin"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// DisplayName returns the full name when set, otherwise the username.
func (u *User) DisplayName() string {
	if u.FullName != nil && *u.FullName != "" {
		return *u.FullName
	}
	return u.Username
}

// BeforeCreate hook
func (u *User) BeforeCreate(tx *gorm.DB) error {
	u.CreatedAt = time.Now()
	u.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate hook
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}

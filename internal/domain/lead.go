package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Lead types
const (
	LeadTypeBuyer    = "buyer"
	LeadTypeSeller   = "seller"
	LeadTypeInvestor = "investor"
)

// Lead statuses
const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusQualified = "qualified"
	LeadStatusConverted = "converted"
	LeadStatusClosed    = "closed"
)

// ValidLeadType reports whether t is a known lead type.
func ValidLeadType(t string) bool {
	switch t {
	case LeadTypeBuyer, LeadTypeSeller, LeadTypeInvestor:
		return true
	}
	return false
}

// ValidLeadStatus reports whether s is a known lead status.
func ValidLeadStatus(s string) bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusQualified, LeadStatusConverted, LeadStatusClosed:
		return true
	}
	return false
}

// Lead represents a contact form submission from the marketing site
type Lead struct {
	ID              string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name            string     `gorm:"not null" json:"name"`
	Email           string     `gorm:"not null;index" json:"email"`
	Phone           *string    `json:"phone,omitempty"`
	Type            string     `gorm:"not null;index" json:"type"`
	Status          string     `gorm:"default:'new';index" json:"status"`
	Message         string     `gorm:"type:text" json:"message"`
	PropertyAddress *string    `json:"propertyAddress,omitempty"`
	Source          *string    `json:"source,omitempty"`
	InvestorRef     *string    `gorm:"type:varchar(36)" json:"investorRef,omitempty"`
	Notes           string     `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

// TableName specifies the table name for Lead
func (Lead) TableName() string {
	return "leads"
}

// BeforeCreate hook
func (l *Lead) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.CreatedAt = time.Now().UTC()
	if l.Status == "" {
		l.Status = LeadStatusNew
	}
	return nil
}

// BeforeUpdate hook
func (l *Lead) BeforeUpdate(tx *gorm.DB) error {
	now := time.Now().UTC()
	l.UpdatedAt = &now
	return nil
}

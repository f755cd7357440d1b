package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Prospectus statuses
const (
	ProspectusDraft      = "draft"
	ProspectusOpen       = "open"
	ProspectusSubscribed = "subscribed"
	ProspectusInProgress = "in-progress"
	ProspectusCompleted  = "completed"
	ProspectusClosed     = "closed"
)

// ValidProspectusStatus reports whether s is a known prospectus status.
func ValidProspectusStatus(s string) bool {
	switch s {
	case ProspectusDraft, ProspectusOpen, ProspectusSubscribed, ProspectusInProgress, ProspectusCompleted, ProspectusClosed:
		return true
	}
	return false
}

// Prospectus is an investment opportunity. The application only reads
// prospectuses; they are authored elsewhere.
type Prospectus struct {
	ID                string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title             string          `gorm:"not null" json:"title"`
	Slug              string          `gorm:"uniqueIndex;not null" json:"slug"`
	Status            string          `gorm:"default:'draft';index" json:"status"`
	PropertyType      string          `json:"propertyType"`
	Location          string          `json:"location"`
	Summary           string          `gorm:"type:text" json:"summary"`
	MinimumInvestment decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"minimumInvestment"`
	TargetRaise       decimal.Decimal `gorm:"type:decimal(15,2)" json:"targetRaise"`
	ProjectedIRR      *string         `json:"projectedIrr,omitempty"`
	ClosingDate       *time.Time      `json:"closingDate,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         *time.Time      `json:"updatedAt,omitempty"`
}

// TableName specifies the table name for Prospectus
func (Prospectus) TableName() string {
	return "prospectuses"
}

// BeforeCreate hook
func (p *Prospectus) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()
	if p.Status == "" {
		p.Status = ProspectusDraft
	}
	return nil
}

// BeforeUpdate hook
func (p *Prospectus) BeforeUpdate(tx *gorm.DB) error {
	now := time.Now().UTC()
	p.UpdatedAt = &now
	return nil
}

// AcceptingInvestment reports whether new letters of intent may be submitted.
func (p *Prospectus) AcceptingInvestment() bool {
	return p.Status == ProspectusOpen
}

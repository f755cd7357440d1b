package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Investor statuses
const (
	InvestorStatusPending   = "pending"
	InvestorStatusActive    = "active"
	InvestorStatusInactive  = "inactive"
	InvestorStatusSuspended = "suspended"
)

// Investor accreditation statuses
const (
	AccreditedPending       = "pending"
	AccreditedVerified      = "verified"
	AccreditedExpired       = "expired"
	AccreditedNotAccredited = "not_accredited"
)

// Accreditation document statuses
const (
	DocumentPending     = "pending"
	DocumentUnderReview = "under_review"
	DocumentApproved    = "approved"
	DocumentRejected    = "rejected"
)

// ValidInvestorStatus reports whether s is a known investor status.
func ValidInvestorStatus(s string) bool {
	switch s {
	case InvestorStatusPending, InvestorStatusActive, InvestorStatusInactive, InvestorStatusSuspended:
		return true
	}
	return false
}

// ValidAccreditedStatus reports whether s is a known accreditation status.
func ValidAccreditedStatus(s string) bool {
	switch s {
	case AccreditedPending, AccreditedVerified, AccreditedExpired, AccreditedNotAccredited:
		return true
	}
	return false
}

// Investor is an identity-provider linked investor profile. Investors are
// never deleted, only marked inactive.
type Investor struct {
	ID               string                  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	IdentityID       *string                 `gorm:"uniqueIndex" json:"identityId,omitempty"`
	Name             string                  `gorm:"not null" json:"name"`
	Email            string                  `gorm:"not null;index" json:"email"`
	Phone            *string                 `json:"phone,omitempty"`
	Company          *string                 `json:"company,omitempty"`
	Status           string                  `gorm:"default:'pending';index" json:"status"`
	AccreditedStatus string                  `gorm:"default:'pending'" json:"accreditedStatus"`
	LeadRef          *string                 `gorm:"type:varchar(36);index" json:"leadRef,omitempty"`
	Notes            string                  `gorm:"type:text" json:"notes"`
	Documents        []AccreditationDocument `gorm:"foreignKey:InvestorID" json:"accreditationDocuments"`
	CreatedAt        time.Time               `json:"createdAt"`
	UpdatedAt        *time.Time              `json:"updatedAt,omitempty"`
}

// TableName specifies the table name for Investor
func (Investor) TableName() string {
	return "investors"
}

// BeforeCreate hook
func (i *Investor) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	i.CreatedAt = time.Now().UTC()
	if i.Status == "" {
		i.Status = InvestorStatusPending
	}
	if i.AccreditedStatus == "" {
		i.AccreditedStatus = AccreditedPending
	}
	return nil
}

// BeforeUpdate hook
func (i *Investor) BeforeUpdate(tx *gorm.DB) error {
	now := time.Now().UTC()
	i.UpdatedAt = &now
	return nil
}

// AccreditationDocument is a supporting document embedded in an investor
// profile, reviewed independently of the investor-level status.
type AccreditationDocument struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	InvestorID    string     `gorm:"type:varchar(36);not null;index" json:"investorId"`
	DocumentType  string     `gorm:"not null" json:"documentType"`
	FileName      string     `json:"fileName"`
	FileRef       string     `gorm:"not null" json:"fileRef"`
	Status        string     `gorm:"default:'pending'" json:"status"`
	ReviewerNotes string     `gorm:"type:text" json:"reviewerNotes"`
	UploadedAt    time.Time  `json:"uploadedAt"`
	ReviewedAt    *time.Time `json:"reviewedAt,omitempty"`
}

// TableName specifies the table name for AccreditationDocument
func (AccreditationDocument) TableName() string {
	return "accreditation_documents"
}

// BeforeCreate hook
func (d *AccreditationDocument) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now().UTC()
	}
	if d.Status == "" {
		d.Status = DocumentPending
	}
	return nil
}

// CanMoveTo reports whether the document may move from its current status to
// next. Approved and rejected documents are final.
func (d *AccreditationDocument) CanMoveTo(next string) bool {
	switch d.Status {
	case DocumentPending:
		return next == DocumentUnderReview || next == DocumentApproved || next == DocumentRejected
	case DocumentUnderReview:
		return next == DocumentApproved || next == DocumentRejected
	}
	return false
}

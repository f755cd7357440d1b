package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LOI statuses
const (
	LOIDraft         = "draft"
	LOISubmitted     = "submitted"
	LOIReview        = "review"
	LOIApproved      = "approved"
	LOIRejected      = "rejected"
	LOIWithdrawn     = "withdrawn"
	LOICountersigned = "countersigned"
	LOIConverted     = "converted"
)

// ActiveLOIStatuses are the statuses in which an LOI blocks another
// submission for the same investor and prospectus.
var ActiveLOIStatuses = []string{LOISubmitted, LOIReview, LOIApproved}

// ValidLOIStatus reports whether s is a known LOI status.
func ValidLOIStatus(s string) bool {
	switch s {
	case LOIDraft, LOISubmitted, LOIReview, LOIApproved, LOIRejected, LOIWithdrawn, LOICountersigned, LOIConverted:
		return true
	}
	return false
}

// IsActiveLOIStatus reports whether s is one of ActiveLOIStatuses.
func IsActiveLOIStatus(s string) bool {
	for _, active := range ActiveLOIStatuses {
		if s == active {
			return true
		}
	}
	return false
}

// InvestorSignature is written once, at submission.
type InvestorSignature struct {
	Signed    bool       `json:"signed"`
	SignedAt  *time.Time `json:"signedAt,omitempty"`
	IPAddress string     `json:"ipAddress,omitempty"`
}

// CompanySignature is written once, when an approved LOI is countersigned.
type CompanySignature struct {
	Signed            bool       `json:"signed"`
	SignedAt          *time.Time `json:"signedAt,omitempty"`
	SignerName        string     `json:"signerName,omitempty"`
	SignerEmail       string     `json:"signerEmail,omitempty"`
	SignerTitle       string     `json:"signerTitle,omitempty"`
	IPAddress         string     `json:"ipAddress,omitempty"`
	SignatureImageRef string     `json:"signatureImageRef,omitempty"`
}

// LetterOfIntent is an investor's non-binding intent to invest an amount in a
// prospectus. InvestorRef, ProspectusRef and InvestmentAmount never change
// after creation.
type LetterOfIntent struct {
	ID                string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	InvestorRef       string            `gorm:"type:varchar(36);not null;index" json:"investorRef"`
	ProspectusRef     string            `gorm:"type:varchar(36);not null;index" json:"prospectusRef"`
	InvestmentAmount  decimal.Decimal   `gorm:"type:decimal(15,2);not null" json:"investmentAmount"`
	Status            string            `gorm:"not null;index" json:"status"`
	SubmittedAt       *time.Time        `json:"submittedAt,omitempty"`
	ReviewedAt        *time.Time        `json:"reviewedAt,omitempty"`
	InvestorSignature InvestorSignature `gorm:"embedded;embeddedPrefix:investor_signature_" json:"investorSignature"`
	CompanySignature  CompanySignature  `gorm:"embedded;embeddedPrefix:company_signature_" json:"companySignature"`
	InvestorNotes     string            `gorm:"type:text" json:"investorNotes"`
	Notes             string            `gorm:"type:text" json:"notes"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         *time.Time        `json:"updatedAt,omitempty"`

	Investor   *Investor   `gorm:"foreignKey:InvestorRef" json:"investor,omitempty"`
	Prospectus *Prospectus `gorm:"foreignKey:ProspectusRef" json:"prospectus,omitempty"`
}

// TableName specifies the table name for LetterOfIntent
func (LetterOfIntent) TableName() string {
	return "letters_of_intent"
}

// BeforeCreate hook
func (l *LetterOfIntent) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.CreatedAt = time.Now().UTC()
	if l.Status == "" {
		l.Status = LOIDraft
	}
	return nil
}

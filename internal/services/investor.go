package services

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"realtyportal/internal/assets"
	"realtyportal/internal/domain"
	"realtyportal/internal/metrics"
	"realtyportal/internal/store"
	"realtyportal/internal/util"
	apperrors "realtyportal/pkg/errors"
)

// MaxDocumentSize is the largest accreditation document accepted.
const MaxDocumentSize = 10 << 20

var documentTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
}

// InvestorService manages investor profiles and accreditation documents
type InvestorService struct {
	store    *store.Client
	uploader assets.Uploader
	now      func() time.Time
	log      *logrus.Entry
}

// NewInvestorService creates a new investor service
func NewInvestorService(st *store.Client, uploader assets.Uploader) *InvestorService {
	return &InvestorService{
		store:    st,
		uploader: uploader,
		now:      time.Now,
		log:      logrus.WithField("component", "investor"),
	}
}

// IdentityEvent is a user lifecycle webhook from the identity provider.
type IdentityEvent struct {
	Type string       `json:"type"`
	Data IdentityUser `json:"data"`
}

// IdentityUser is the user object carried by an IdentityEvent.
type IdentityUser struct {
	ID                    string `json:"id"`
	FirstName             string `json:"first_name"`
	LastName              string `json:"last_name"`
	PrimaryEmailAddressID string `json:"primary_email_address_id"`
	EmailAddresses        []struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

// PrimaryEmail returns the user's primary address, or the first one.
func (u *IdentityUser) PrimaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// HandleIdentityEvent applies a verified identity provider webhook. Unknown
// event types are ignored.
func (s *InvestorService) HandleIdentityEvent(ctx context.Context, ev IdentityEvent) error {
	log := s.log.WithFields(logrus.Fields{"event": ev.Type, "identity_id": ev.Data.ID})
	if ev.Data.ID == "" {
		return apperrors.Validation("event has no user id")
	}

	switch ev.Type {
	case "user.created":
		name := strings.TrimSpace(ev.Data.FirstName + " " + ev.Data.LastName)
		inv, created, err := s.ensureInvestor(ctx, ev.Data.ID, ev.Data.PrimaryEmail(), name)
		if err != nil {
			return err
		}
		if created {
			log.WithField("investor_id", inv.ID).Info("Investor registered")
		}
	case "user.deleted":
		inv, err := store.FindOne[domain.Investor](ctx, s.store, "investor", "identity_id = ?", ev.Data.ID)
		if apperrors.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		err = store.Patch[domain.Investor](ctx, s.store, "investor", inv.ID, map[string]any{
			"status":     domain.InvestorStatusInactive,
			"updated_at": s.now().UTC(),
		})
		if err != nil {
			return err
		}
		log.WithField("investor_id", inv.ID).Info("Investor deactivated")
	default:
		log.Debug("Ignoring identity event")
	}
	return nil
}

// ResolveIdentity returns the investor for a verified session token,
// registering one when the user.created webhook has not arrived yet.
func (s *InvestorService) ResolveIdentity(ctx context.Context, claims *util.IdentityClaims) (*domain.Investor, error) {
	inv, _, err := s.ensureInvestor(ctx, claims.Subject, claims.Email, claims.Name)
	return inv, err
}

func (s *InvestorService) ensureInvestor(ctx context.Context, identityID, email, name string) (*domain.Investor, bool, error) {
	inv, err := store.FindOne[domain.Investor](ctx, s.store, "investor", "identity_id = ?", identityID)
	if err == nil {
		return inv, false, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		name = email
	}
	inv = &domain.Investor{
		IdentityID:       &identityID,
		Name:             name,
		Email:            email,
		Status:           domain.InvestorStatusPending,
		AccreditedStatus: domain.AccreditedPending,
	}
	if err := store.Create(ctx, s.store, inv); err != nil {
		// Webhook and first request raced; the other one won.
		if apperrors.Is(err, apperrors.ErrCodeDuplicateSubmission) {
			inv, err := store.FindOne[domain.Investor](ctx, s.store, "investor", "identity_id = ?", identityID)
			return inv, false, err
		}
		return nil, false, err
	}
	return inv, true, nil
}

// Get returns an investor with their accreditation documents
func (s *InvestorService) Get(ctx context.Context, id string) (*domain.Investor, error) {
	return store.Fetch[domain.Investor](ctx, s.store, "investor", id, "Documents")
}

// InvestorFilter narrows the admin investor table
type InvestorFilter struct {
	Status           string
	AccreditedStatus string
	Search           string
}

// List returns investors matching filter, newest first
func (s *InvestorService) List(ctx context.Context, filter InvestorFilter) ([]domain.Investor, error) {
	all, err := store.List[domain.Investor](ctx, s.store, "")
	if err != nil {
		return nil, err
	}
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	out := make([]domain.Investor, 0, len(all))
	for _, inv := range all {
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.AccreditedStatus != "" && inv.AccreditedStatus != filter.AccreditedStatus {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(inv.Name), search) &&
			!strings.Contains(strings.ToLower(inv.Email), search) {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

// UpdateStatus sets an investor's account status
func (s *InvestorService) UpdateStatus(ctx context.Context, id, status string) (*domain.Investor, error) {
	if !domain.ValidInvestorStatus(status) {
		return nil, apperrors.Validation("invalid status %q", status)
	}
	err := store.Patch[domain.Investor](ctx, s.store, "investor", id, map[string]any{"status": status, "updated_at": s.now().UTC()})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"investor_id": id, "status": status}).Info("Investor status updated")
	return s.Get(ctx, id)
}

// UpdateAccreditedStatus sets an investor's accreditation status directly
func (s *InvestorService) UpdateAccreditedStatus(ctx context.Context, id, status string) (*domain.Investor, error) {
	if !domain.ValidAccreditedStatus(status) {
		return nil, apperrors.Validation("invalid accreditation status %q", status)
	}
	err := store.Patch[domain.Investor](ctx, s.store, "investor", id, map[string]any{"accredited_status": status, "updated_at": s.now().UTC()})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"investor_id": id, "accredited_status": status}).Info("Investor accreditation updated")
	return s.Get(ctx, id)
}

// UploadDocumentInput is an accreditation document upload
type UploadDocumentInput struct {
	DocumentType string
	FileName     string
	ContentType  string
	Size         int64
	Body         io.Reader
}

// UploadAccreditationDocument stores a document and attaches it, pending
// review, to the investor's profile
func (s *InvestorService) UploadAccreditationDocument(ctx context.Context, investorID string, in UploadDocumentInput) (*domain.AccreditationDocument, error) {
	docType := strings.TrimSpace(in.DocumentType)
	if docType == "" {
		return nil, apperrors.Validation("document type is required")
	}
	if in.Size <= 0 {
		return nil, apperrors.Validation("file is empty")
	}
	if in.Size > MaxDocumentSize {
		return nil, apperrors.Validation("file must not exceed 10 MB")
	}
	if !documentTypes[in.ContentType] {
		return nil, apperrors.Validation("file must be a PDF, PNG or JPEG")
	}
	if _, err := store.Fetch[domain.Investor](ctx, s.store, "investor", investorID); err != nil {
		return nil, err
	}

	ref, err := s.uploader.Upload(ctx, "accreditation/"+investorID, in.FileName, in.ContentType, in.Body, in.Size)
	if err != nil {
		s.log.WithError(err).WithField("investor_id", investorID).Error("Failed to upload accreditation document")
		return nil, err
	}

	doc := &domain.AccreditationDocument{
		InvestorID:   investorID,
		DocumentType: docType,
		FileName:     path.Base(in.FileName),
		FileRef:      ref,
		Status:       domain.DocumentPending,
		UploadedAt:   s.now().UTC(),
	}
	if err := store.Create(ctx, s.store, doc); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"investor_id": investorID, "document_id": doc.ID}).Info("Accreditation document uploaded")
	return doc, nil
}

// ReviewAccreditationDocument moves a document through review. Approving a
// document verifies the investor's accreditation and activates a pending
// investor. Rejecting a document leaves the investor untouched.
func (s *InvestorService) ReviewAccreditationDocument(ctx context.Context, investorID, documentID, status, notes string) (*domain.AccreditationDocument, error) {
	switch status {
	case domain.DocumentUnderReview, domain.DocumentApproved, domain.DocumentRejected:
	default:
		return nil, apperrors.Validation("invalid document status %q", status)
	}

	var reviewed *domain.AccreditationDocument
	err := s.store.Transaction(ctx, func(tx *store.Client) error {
		doc, err := store.FindOne[domain.AccreditationDocument](ctx, tx, "accreditation document",
			"id = ? AND investor_id = ?", documentID, investorID)
		if err != nil {
			return err
		}
		if !doc.CanMoveTo(status) {
			return apperrors.StateConflict("a %s document cannot move to %s", doc.Status, status)
		}

		now := s.now().UTC()
		patch := map[string]any{"status": status, "reviewer_notes": strings.TrimSpace(notes)}
		if status != domain.DocumentUnderReview {
			patch["reviewed_at"] = now
		}
		ok, err := store.PatchIfStatus[domain.AccreditationDocument](ctx, tx, doc.ID, doc.Status, patch)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.StateConflict("document was changed concurrently, reload and try again")
		}

		if status == domain.DocumentApproved {
			inv, err := store.Fetch[domain.Investor](ctx, tx, "investor", investorID)
			if err != nil {
				return err
			}
			invPatch := map[string]any{"accredited_status": domain.AccreditedVerified, "updated_at": now}
			if inv.Status == domain.InvestorStatusPending {
				invPatch["status"] = domain.InvestorStatusActive
			}
			if err := store.Patch[domain.Investor](ctx, tx, "investor", investorID, invPatch); err != nil {
				return err
			}
		}

		reviewed, err = store.Fetch[domain.AccreditationDocument](ctx, tx, "accreditation document", doc.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordAccreditationReview(status)
	s.log.WithFields(logrus.Fields{"investor_id": investorID, "document_id": documentID, "status": status}).Info("Accreditation document reviewed")
	return reviewed, nil
}

// OpenDocument streams a stored accreditation document
func (s *InvestorService) OpenDocument(ctx context.Context, investorID, documentID string) (*domain.AccreditationDocument, io.ReadCloser, error) {
	doc, err := store.FindOne[domain.AccreditationDocument](ctx, s.store, "accreditation document",
		"id = ? AND investor_id = ?", documentID, investorID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.uploader.Open(ctx, doc.FileRef)
	if err != nil {
		return nil, nil, err
	}
	return doc, rc, nil
}

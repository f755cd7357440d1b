package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"realtyportal/internal/assets"
	"realtyportal/internal/domain"
	"realtyportal/internal/metrics"
	"realtyportal/internal/pdf"
	"realtyportal/internal/ratelimit"
	"realtyportal/internal/store"
	apperrors "realtyportal/pkg/errors"
)

// PDFRenderer prints an LOI document.
type PDFRenderer interface {
	Render(ctx context.Context, v pdf.View) ([]byte, error)
}

// RateLimit is one throttled action.
type RateLimit struct {
	Limiter *ratelimit.Limiter
	Limit   int
	Window  time.Duration
}

func (r RateLimit) check(ctx context.Context, action, clientIP string) error {
	if r.Limiter == nil {
		return nil
	}
	if res := r.Limiter.Check(ctx, action, clientIP, r.Limit, r.Window); !res.Success {
		return apperrors.New(apperrors.ErrCodeRateLimited, "too many submissions, please try again later")
	}
	return nil
}

var loiParties = []string{"Investor", "Prospectus"}

// LOIService drives the letter of intent lifecycle
type LOIService struct {
	store    *store.Client
	dispatch *Dispatcher
	uploader assets.Uploader
	renderer PDFRenderer
	limit    RateLimit
	strict   bool
	now      func() time.Time
	log      *logrus.Entry
}

// LOIServiceOptions configures a LOIService.
type LOIServiceOptions struct {
	Store    *store.Client
	Dispatch *Dispatcher
	Uploader assets.Uploader
	Renderer PDFRenderer
	Limit    RateLimit
	// StrictTransitions restricts UpdateStatus to the transition table.
	StrictTransitions bool
}

// NewLOIService creates a new LOI service
func NewLOIService(opts LOIServiceOptions) *LOIService {
	return &LOIService{
		store:    opts.Store,
		dispatch: opts.Dispatch,
		uploader: opts.Uploader,
		renderer: opts.Renderer,
		limit:    opts.Limit,
		strict:   opts.StrictTransitions,
		now:      time.Now,
		log:      logrus.WithField("component", "loi"),
	}
}

// SubmitLOIInput is an investor's letter of intent.
type SubmitLOIInput struct {
	InvestorID    string
	ProspectusID  string
	Amount        decimal.Decimal
	InvestorNotes string
	IPAddress     string
}

// Submit creates a signed, submitted LOI for an open prospectus
func (s *LOIService) Submit(ctx context.Context, in SubmitLOIInput) (*domain.LetterOfIntent, error) {
	log := s.log.WithFields(logrus.Fields{"investor_id": in.InvestorID, "prospectus_id": in.ProspectusID})

	if err := s.limit.check(ctx, "loi-submit", in.IPAddress); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, apperrors.Validation("investment amount must be greater than zero")
	}
	if len(in.InvestorNotes) > 5000 {
		return nil, apperrors.Validation("notes must not exceed 5000 characters")
	}

	investor, err := store.Fetch[domain.Investor](ctx, s.store, "investor", in.InvestorID)
	if err != nil {
		return nil, err
	}
	prospectus, err := store.Fetch[domain.Prospectus](ctx, s.store, "prospectus", in.ProspectusID)
	if err != nil {
		return nil, err
	}
	if !prospectus.AcceptingInvestment() {
		return nil, apperrors.Validation("prospectus is not accepting investment")
	}
	if in.Amount.LessThan(prospectus.MinimumInvestment) {
		return nil, apperrors.Validation("investment amount must be at least $%s", prospectus.MinimumInvestment.StringFixedBank(2))
	}

	active, err := store.Exists[domain.LetterOfIntent](ctx, s.store,
		"investor_ref = ? AND prospectus_ref = ? AND status IN ?", investor.ID, prospectus.ID, domain.ActiveLOIStatuses)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, errDuplicateLOI
	}

	tr, _ := domain.LookupTransition(domain.LOIDraft, domain.ActionSubmit)
	now := s.now().UTC()
	loi := &domain.LetterOfIntent{
		InvestorRef:      investor.ID,
		ProspectusRef:    prospectus.ID,
		InvestmentAmount: in.Amount.Round(2),
		Status:           tr.To,
		SubmittedAt:      &now,
		InvestorSignature: domain.InvestorSignature{
			Signed:    true,
			SignedAt:  &now,
			IPAddress: in.IPAddress,
		},
		InvestorNotes: strings.TrimSpace(in.InvestorNotes),
	}
	if err := store.Create(ctx, s.store, loi); err != nil {
		// Lost a race with a concurrent submission for the same pair.
		if apperrors.Is(err, apperrors.ErrCodeDuplicateSubmission) {
			return nil, errDuplicateLOI
		}
		log.WithError(err).Error("Failed to create letter of intent")
		return nil, err
	}

	metrics.RecordLOITransition(string(tr.Action))
	log.WithFields(logrus.Fields{"loi_id": loi.ID, "amount": loi.InvestmentAmount.String()}).Info("Letter of intent submitted")

	loi.Investor = investor
	loi.Prospectus = prospectus
	s.dispatch.LOI(tr.Notify, loi)
	return loi, nil
}

var errDuplicateLOI = apperrors.New(apperrors.ErrCodeDuplicateSubmission, "an active letter of intent already exists for this prospectus")

// BeginReview moves a submitted LOI into review
func (s *LOIService) BeginReview(ctx context.Context, id string) (*domain.LetterOfIntent, error) {
	return s.act(ctx, id, domain.ActionBeginReview, nil)
}

// Approve approves a submitted or in-review LOI
func (s *LOIService) Approve(ctx context.Context, id string) (*domain.LetterOfIntent, error) {
	return s.act(ctx, id, domain.ActionApprove, nil)
}

// Reject rejects a submitted or in-review LOI
func (s *LOIService) Reject(ctx context.Context, id string) (*domain.LetterOfIntent, error) {
	return s.act(ctx, id, domain.ActionReject, nil)
}

// Convert marks a countersigned LOI as converted into a subscription
func (s *LOIService) Convert(ctx context.Context, id string) (*domain.LetterOfIntent, error) {
	return s.act(ctx, id, domain.ActionConvert, nil)
}

// Withdraw lets an investor withdraw one of their active LOIs
func (s *LOIService) Withdraw(ctx context.Context, investorID, id string) (*domain.LetterOfIntent, error) {
	loi, err := s.GetForInvestor(ctx, investorID, id)
	if err != nil {
		return nil, err
	}
	tr, ok := domain.LookupTransition(loi.Status, domain.ActionWithdraw)
	if !ok {
		return nil, apperrors.StateConflict("a %s letter of intent cannot be withdrawn", loi.Status)
	}
	return s.fire(ctx, loi, tr, nil)
}

// CountersignInput carries the company signer and signature image
type CountersignInput struct {
	SignerName  string
	SignerEmail string
	SignerTitle string
	// SignatureImage is a base64 image, optionally as a data URL.
	SignatureImage string
	IPAddress      string
}

// Countersign signs an approved LOI on behalf of the company
func (s *LOIService) Countersign(ctx context.Context, id string, in CountersignInput) (*domain.LetterOfIntent, error) {
	loi, err := store.Fetch[domain.LetterOfIntent](ctx, s.store, "letter of intent", id)
	if err != nil {
		return nil, err
	}
	tr, ok := domain.LookupTransition(loi.Status, domain.ActionCountersign)
	if !ok {
		return nil, apperrors.StateConflict("only approved letters of intent can be countersigned, this one is %s", loi.Status)
	}

	name := strings.TrimSpace(in.SignerName)
	email := strings.ToLower(strings.TrimSpace(in.SignerEmail))
	if name == "" {
		return nil, apperrors.Validation("signer name is required")
	}
	if email == "" || !emailRegex.MatchString(email) {
		return nil, apperrors.Validation("invalid signer email address")
	}
	image, contentType, err := assets.DecodeDataURL(in.SignatureImage)
	if err != nil {
		return nil, err
	}

	ref, err := assets.UploadBytes(ctx, s.uploader, "signatures/"+loi.ID, "signature"+imageExt(contentType), contentType, image)
	if err != nil {
		s.log.WithError(err).WithField("loi_id", loi.ID).Error("Failed to upload signature image")
		return nil, err
	}

	now := s.now().UTC()
	return s.fire(ctx, loi, tr, map[string]any{
		"company_signature_signed":              true,
		"company_signature_signed_at":           now,
		"company_signature_signer_name":         name,
		"company_signature_signer_email":        email,
		"company_signature_signer_title":        strings.TrimSpace(in.SignerTitle),
		"company_signature_ip_address":          in.IPAddress,
		"company_signature_signature_image_ref": ref,
	})
}

// UpdateStatus sets an LOI status directly from the admin table. With strict
// transitions only moves in the transition table are allowed and
// countersigning requires Countersign. Otherwise any status may be set from
// any state.
func (s *LOIService) UpdateStatus(ctx context.Context, id, status string, actor *domain.User) (*domain.LetterOfIntent, error) {
	if !domain.ValidLOIStatus(status) {
		return nil, apperrors.Validation("invalid status %q", status)
	}
	loi, err := store.Fetch[domain.LetterOfIntent](ctx, s.store, "letter of intent", id)
	if err != nil {
		return nil, err
	}

	if s.strict {
		if status == domain.LOICountersigned {
			return nil, apperrors.StateConflict("countersigning requires signer details")
		}
		tr, ok := domain.TransitionTo(loi.Status, status)
		if !ok {
			return nil, apperrors.StateConflict("cannot move a letter of intent from %s to %s", loi.Status, status)
		}
		return s.fire(ctx, loi, tr, nil)
	}

	now := s.now().UTC()
	patch := map[string]any{"status": status, "updated_at": now}
	switch status {
	case domain.LOIApproved, domain.LOIRejected:
		patch["reviewed_at"] = now
	case domain.LOICountersigned:
		// The company signature is written once.
		if loi.CompanySignature.Signed {
			break
		}
		patch["company_signature_signed"] = true
		patch["company_signature_signed_at"] = now
		if actor != nil {
			patch["company_signature_signer_name"] = actor.DisplayName()
			patch["company_signature_signer_email"] = actor.Email
		}
	}
	if err := store.Patch[domain.LetterOfIntent](ctx, s.store, "letter of intent", loi.ID, patch); err != nil {
		return nil, err
	}

	metrics.RecordLOITransition("update-status")
	s.log.WithFields(logrus.Fields{"loi_id": loi.ID, "from": loi.Status, "to": status}).Warn("Letter of intent status overridden")

	updated, err := s.Get(ctx, loi.ID)
	if err != nil {
		return nil, err
	}
	s.dispatch.LOI(domain.NotificationFor(status), updated)
	return updated, nil
}

// act fires the transition for action from the LOI's current status.
func (s *LOIService) act(ctx context.Context, id string, action domain.LOIAction, fields map[string]any) (*domain.LetterOfIntent, error) {
	loi, err := store.Fetch[domain.LetterOfIntent](ctx, s.store, "letter of intent", id)
	if err != nil {
		return nil, err
	}
	tr, ok := domain.LookupTransition(loi.Status, action)
	if !ok {
		return nil, apperrors.StateConflict("cannot %s a letter of intent that is %s", action, loi.Status)
	}
	return s.fire(ctx, loi, tr, fields)
}

// fire applies tr to loi with a compare-and-swap on the current status.
func (s *LOIService) fire(ctx context.Context, loi *domain.LetterOfIntent, tr domain.Transition, fields map[string]any) (*domain.LetterOfIntent, error) {
	now := s.now().UTC()
	patch := map[string]any{"status": tr.To, "updated_at": now}
	if tr.SetsReviewedAt {
		patch["reviewed_at"] = now
	}
	for k, v := range fields {
		patch[k] = v
	}

	ok, err := store.PatchIfStatus[domain.LetterOfIntent](ctx, s.store, loi.ID, tr.From, patch)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCodeDuplicateSubmission) {
			return nil, errDuplicateLOI
		}
		return nil, err
	}
	if !ok {
		return nil, apperrors.StateConflict("letter of intent was changed concurrently, reload and try again")
	}

	metrics.RecordLOITransition(string(tr.Action))
	s.log.WithFields(logrus.Fields{"loi_id": loi.ID, "from": tr.From, "to": tr.To}).Info("Letter of intent transitioned")

	updated, err := s.Get(ctx, loi.ID)
	if err != nil {
		return nil, err
	}
	s.dispatch.LOI(tr.Notify, updated)
	return updated, nil
}

// Get returns an LOI with its investor and prospectus
func (s *LOIService) Get(ctx context.Context, id string) (*domain.LetterOfIntent, error) {
	return store.Fetch[domain.LetterOfIntent](ctx, s.store, "letter of intent", id, loiParties...)
}

// GetForInvestor returns an LOI owned by investorID. Other investors' LOIs
// are reported as not found.
func (s *LOIService) GetForInvestor(ctx context.Context, investorID, id string) (*domain.LetterOfIntent, error) {
	loi, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if loi.InvestorRef != investorID {
		return nil, apperrors.NotFound("letter of intent")
	}
	return loi, nil
}

// ListForInvestor returns an investor's LOIs, newest first
func (s *LOIService) ListForInvestor(ctx context.Context, investorID string) ([]domain.LetterOfIntent, error) {
	return store.ListWith[domain.LetterOfIntent](ctx, s.store, []string{"Prospectus"}, "investor_ref = ?", investorID)
}

// LOIFilter narrows the admin LOI table
type LOIFilter struct {
	Status       string
	ProspectusID string
	InvestorID   string
	Search       string
}

// ListAll returns every LOI matching filter, newest first. Filtering happens
// in memory, like the other admin tables.
func (s *LOIService) ListAll(ctx context.Context, filter LOIFilter) ([]domain.LetterOfIntent, error) {
	all, err := store.ListWith[domain.LetterOfIntent](ctx, s.store, loiParties, "")
	if err != nil {
		return nil, err
	}
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	out := make([]domain.LetterOfIntent, 0, len(all))
	for _, loi := range all {
		if filter.Status != "" && loi.Status != filter.Status {
			continue
		}
		if filter.ProspectusID != "" && loi.ProspectusRef != filter.ProspectusID {
			continue
		}
		if filter.InvestorID != "" && loi.InvestorRef != filter.InvestorID {
			continue
		}
		if search != "" && !loiMatches(&loi, search) {
			continue
		}
		out = append(out, loi)
	}
	return out, nil
}

func loiMatches(loi *domain.LetterOfIntent, search string) bool {
	fields := []string{loi.ID}
	if loi.Investor != nil {
		fields = append(fields, loi.Investor.Name, loi.Investor.Email)
	}
	if loi.Prospectus != nil {
		fields = append(fields, loi.Prospectus.Title)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

// UpdateNotes replaces the internal admin notes of an LOI
func (s *LOIService) UpdateNotes(ctx context.Context, id, notes string) (*domain.LetterOfIntent, error) {
	if len(notes) > 5000 {
		return nil, apperrors.Validation("notes must not exceed 5000 characters")
	}
	err := store.Patch[domain.LetterOfIntent](ctx, s.store, "letter of intent", id, map[string]any{
		"notes":      strings.TrimSpace(notes),
		"updated_at": s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// UpdateInvestorNotes replaces the investor's own notes on their LOI. Notes
// stay editable in every status.
func (s *LOIService) UpdateInvestorNotes(ctx context.Context, investorID, id, notes string) (*domain.LetterOfIntent, error) {
	if len(notes) > 5000 {
		return nil, apperrors.Validation("notes must not exceed 5000 characters")
	}
	if _, err := s.GetForInvestor(ctx, investorID, id); err != nil {
		return nil, err
	}
	err := store.Patch[domain.LetterOfIntent](ctx, s.store, "letter of intent", id, map[string]any{
		"investor_notes": strings.TrimSpace(notes),
		"updated_at":     s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// RenderPDF prints loi, including the company signature image when one was
// uploaded. It returns the document and its download file name.
func (s *LOIService) RenderPDF(ctx context.Context, loi *domain.LetterOfIntent) ([]byte, string, error) {
	if loi.Investor == nil || loi.Prospectus == nil {
		return nil, "", apperrors.NotFound("letter of intent parties")
	}
	view := pdf.View{LOI: loi, Investor: loi.Investor, Prospectus: loi.Prospectus}

	if ref := loi.CompanySignature.SignatureImageRef; ref != "" {
		img, err := s.signatureDataURL(ctx, ref)
		if err != nil {
			s.log.WithError(err).WithField("loi_id", loi.ID).Warn("Signature image unavailable, rendering without it")
		} else {
			view.SignatureImage = img
		}
	}

	data, err := s.renderer.Render(ctx, view)
	if err != nil {
		return nil, "", err
	}
	return data, pdf.Filename(view), nil
}

func (s *LOIService) signatureDataURL(ctx context.Context, ref string) (template.URL, error) {
	rc, err := s.uploader.Open(ctx, ref)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxSignatureBytes))
	if err != nil {
		return "", err
	}
	return template.URL(fmt.Sprintf("data:%s;base64,%s", http.DetectContentType(data), base64.StdEncoding.EncodeToString(data))), nil
}

const maxSignatureBytes = 2 << 20

func imageExt(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/svg+xml":
		return ".svg"
	case "image/webp":
		return ".webp"
	}
	return ".png"
}

package services

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"realtyportal/internal/domain"
	"realtyportal/internal/metrics"
	"realtyportal/internal/store"
	apperrors "realtyportal/pkg/errors"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phoneRegex = regexp.MustCompile(`^[\d\s\+\-\(\)\.]+$`)
)

// LeadService captures marketing-site leads and converts them to investors
type LeadService struct {
	store    *store.Client
	dispatch *Dispatcher
	limit    RateLimit
	now      func() time.Time
	log      *logrus.Entry
}

// NewLeadService creates a new lead service
func NewLeadService(st *store.Client, dispatch *Dispatcher, limit RateLimit) *LeadService {
	return &LeadService{
		store:    st,
		dispatch: dispatch,
		limit:    limit,
		now:      time.Now,
		log:      logrus.WithField("component", "lead"),
	}
}

// SubmitLeadInput is a contact form submission
type SubmitLeadInput struct {
	Name            string
	Email           string
	Phone           string
	Type            string
	Message         string
	PropertyAddress string
	Source          string
	ClientIP        string
}

// SubmitLead stores a lead and alerts the admin inbox
func (s *LeadService) SubmitLead(ctx context.Context, in SubmitLeadInput) (*domain.Lead, error) {
	if err := s.limit.check(ctx, "contact-form", in.ClientIP); err != nil {
		return nil, err
	}
	if err := validateLead(&in); err != nil {
		s.log.WithField("client_ip", in.ClientIP).Infof("Lead rejected: %v", err)
		return nil, err
	}

	lead := &domain.Lead{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.ToLower(strings.TrimSpace(in.Email)),
		Type:    in.Type,
		Status:  domain.LeadStatusNew,
		Message: strings.TrimSpace(in.Message),
	}
	lead.Phone = optional(in.Phone)
	lead.PropertyAddress = optional(in.PropertyAddress)
	lead.Source = optional(in.Source)

	if err := store.Create(ctx, s.store, lead); err != nil {
		s.log.WithError(err).Error("Failed to save lead")
		return nil, err
	}

	metrics.RecordLeadSubmitted(lead.Type)
	s.log.WithFields(logrus.Fields{"lead_id": lead.ID, "type": lead.Type}).Info("Lead captured")
	s.dispatch.Lead(lead)
	return lead, nil
}

func validateLead(in *SubmitLeadInput) error {
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	if in.Type == "" {
		in.Type = domain.LeadTypeBuyer
	}
	if !domain.ValidLeadType(in.Type) {
		return apperrors.Validation("type must be buyer, seller or investor")
	}

	name := strings.TrimSpace(in.Name)
	if len(name) < 2 || len(name) > 100 {
		return apperrors.Validation("name must be between 2 and 100 characters")
	}

	if !emailRegex.MatchString(strings.TrimSpace(in.Email)) {
		return apperrors.Validation("invalid email address")
	}

	message := strings.TrimSpace(in.Message)
	if message == "" {
		return apperrors.Validation("message is required")
	}
	if len(message) > 5000 {
		return apperrors.Validation("message must not exceed 5000 characters")
	}

	// Basic phone validation (allows international format)
	if phone := strings.TrimSpace(in.Phone); phone != "" {
		if !phoneRegex.MatchString(phone) || len(phone) < 7 || len(phone) > 20 {
			return apperrors.Validation("invalid phone number format")
		}
	}

	if in.Type == domain.LeadTypeSeller && strings.TrimSpace(in.PropertyAddress) == "" {
		return apperrors.Validation("property address is required for sellers")
	}
	return nil
}

// LeadFilter narrows the admin lead table
type LeadFilter struct {
	Status string
	Type   string
	Search string
}

// ListLeads returns leads matching filter, newest first
func (s *LeadService) ListLeads(ctx context.Context, filter LeadFilter) ([]domain.Lead, error) {
	all, err := store.List[domain.Lead](ctx, s.store, "")
	if err != nil {
		return nil, err
	}
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	out := make([]domain.Lead, 0, len(all))
	for _, l := range all {
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if filter.Type != "" && l.Type != filter.Type {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(l.Name), search) &&
			!strings.Contains(strings.ToLower(l.Email), search) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// UpdateLeadStatus sets a lead's pipeline status. Conversion goes through
// ConvertLeadToInvestor.
func (s *LeadService) UpdateLeadStatus(ctx context.Context, id, status string) (*domain.Lead, error) {
	if !domain.ValidLeadStatus(status) {
		return nil, apperrors.Validation("invalid status %q", status)
	}
	if status == domain.LeadStatusConverted {
		return nil, apperrors.Validation("use convert to turn a lead into an investor")
	}

	lead, err := store.Fetch[domain.Lead](ctx, s.store, "lead", id)
	if err != nil {
		return nil, err
	}
	if lead.Status == domain.LeadStatusConverted {
		return nil, apperrors.StateConflict("lead was already converted to an investor")
	}

	err = store.Patch[domain.Lead](ctx, s.store, "lead", id, map[string]any{"status": status, "updated_at": s.now().UTC()})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"lead_id": id, "from": lead.Status, "to": status}).Info("Lead status updated")
	return store.Fetch[domain.Lead](ctx, s.store, "lead", id)
}

// ConvertLeadToInvestor creates a pending investor from a lead and marks the
// lead converted, in one transaction. Converting an already converted lead
// returns its existing investor; created reports which case happened.
func (s *LeadService) ConvertLeadToInvestor(ctx context.Context, leadID string) (investor *domain.Investor, created bool, err error) {
	err = s.store.Transaction(ctx, func(tx *store.Client) error {
		lead, err := store.Fetch[domain.Lead](ctx, tx, "lead", leadID)
		if err != nil {
			return err
		}

		if lead.Status == domain.LeadStatusConverted && lead.InvestorRef != nil {
			investor, err = store.Fetch[domain.Investor](ctx, tx, "investor", *lead.InvestorRef)
			return err
		}

		investor = &domain.Investor{
			Name:             lead.Name,
			Email:            lead.Email,
			Phone:            lead.Phone,
			Status:           domain.InvestorStatusPending,
			AccreditedStatus: domain.AccreditedPending,
			LeadRef:          &lead.ID,
		}
		if err := store.Create(ctx, tx, investor); err != nil {
			return err
		}

		ok, err := store.PatchIfStatus[domain.Lead](ctx, tx, lead.ID, lead.Status, map[string]any{
			"status":       domain.LeadStatusConverted,
			"investor_ref": investor.ID,
			"updated_at":   s.now().UTC(),
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.StateConflict("lead was changed concurrently, reload and try again")
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		metrics.RecordLeadConversion()
		s.log.WithFields(logrus.Fields{"lead_id": leadID, "investor_id": investor.ID}).Info("Lead converted to investor")
	}
	return investor, created, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

package services

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"realtyportal/internal/domain"
	"realtyportal/internal/store"
	apperrors "realtyportal/pkg/errors"
)

// ProspectusService exposes published prospectuses. Authoring happens
// outside the portal.
type ProspectusService struct {
	store *store.Client
	log   *logrus.Entry
}

// NewProspectusService creates a new prospectus service
func NewProspectusService(st *store.Client) *ProspectusService {
	return &ProspectusService{store: st, log: logrus.WithField("component", "prospectus")}
}

// visible reports whether investors and the public may see p.
func visible(p *domain.Prospectus) bool {
	return p.Status != domain.ProspectusDraft
}

// ListPublished returns every non-draft prospectus, optionally narrowed to one
// status
func (s *ProspectusService) ListPublished(ctx context.Context, status string) ([]domain.Prospectus, error) {
	if status == domain.ProspectusDraft {
		return []domain.Prospectus{}, nil
	}
	if status != "" && !domain.ValidProspectusStatus(status) {
		return nil, apperrors.Validation("invalid status %q", status)
	}

	var (
		all []domain.Prospectus
		err error
	)
	if status != "" {
		all, err = store.List[domain.Prospectus](ctx, s.store, "status = ?", status)
	} else {
		all, err = store.List[domain.Prospectus](ctx, s.store, "status <> ?", domain.ProspectusDraft)
	}
	if err != nil {
		return nil, err
	}
	return all, nil
}

// GetPublished returns a non-draft prospectus by id or slug
func (s *ProspectusService) GetPublished(ctx context.Context, idOrSlug string) (*domain.Prospectus, error) {
	p, err := store.FindOne[domain.Prospectus](ctx, s.store, "prospectus", "id = ? OR slug = ?", idOrSlug, idOrSlug)
	if err != nil {
		return nil, err
	}
	if !visible(p) {
		return nil, apperrors.NotFound("prospectus")
	}
	return p, nil
}

// CreateProspectusInput seeds a prospectus
type CreateProspectusInput struct {
	Title             string
	Slug              string
	Status            string
	PropertyType      string
	Location          string
	Summary           string
	MinimumInvestment decimal.Decimal
	TargetRaise       decimal.Decimal
}

// Create inserts a prospectus. It backs the seeding command for local
// environments.
func (s *ProspectusService) Create(ctx context.Context, in CreateProspectusInput) (*domain.Prospectus, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperrors.Validation("title is required")
	}
	if in.Status == "" {
		in.Status = domain.ProspectusDraft
	}
	if !domain.ValidProspectusStatus(in.Status) {
		return nil, apperrors.Validation("invalid status %q", in.Status)
	}
	if in.MinimumInvestment.IsNegative() {
		return nil, apperrors.Validation("minimum investment must not be negative")
	}
	slug := in.Slug
	if slug == "" {
		slug = Slugify(title)
	}

	p := &domain.Prospectus{
		Title:             title,
		Slug:              slug,
		Status:            in.Status,
		PropertyType:      in.PropertyType,
		Location:          in.Location,
		Summary:           in.Summary,
		MinimumInvestment: in.MinimumInvestment,
		TargetRaise:       in.TargetRaise,
	}
	if err := store.Create(ctx, s.store, p); err != nil {
		if apperrors.Is(err, apperrors.ErrCodeDuplicateSubmission) {
			return nil, apperrors.New(apperrors.ErrCodeDuplicateSubmission, "a prospectus with this slug already exists")
		}
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"prospectus_id": p.ID, "slug": p.Slug}).Info("Prospectus created")
	return p, nil
}

// Slugify lowercases s and joins its words with hyphens
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
		} else if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

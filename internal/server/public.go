package server

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"realtyportal/internal/services"
	"realtyportal/internal/util"
	apperrors "realtyportal/pkg/errors"
)

const maxWebhookBody = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res := s.health.Check(r.Context())
	status := http.StatusOK
	if res.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(r.Context(), w, status, res)
}

type leadRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Type            string `json:"type"`
	Message         string `json:"message"`
	PropertyAddress string `json:"propertyAddress"`
	Source          string `json:"source"`
}

// handleSubmitLead accepts the contact form as JSON or as a form post
func (s *Server) handleSubmitLead(w http.ResponseWriter, r *http.Request) {
	var body leadRequest
	if isJSON(r) {
		if err := decodeJSON(r, &body); err != nil {
			writeError(r.Context(), w, err)
			return
		}
	} else {
		values, err := formValues(r)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		body = leadRequest{
			Name:            values.Get("name"),
			Email:           values.Get("email"),
			Phone:           values.Get("phone"),
			Type:            values.Get("type"),
			Message:         values.Get("message"),
			PropertyAddress: values.Get("propertyAddress"),
			Source:          values.Get("source"),
		}
	}

	lead, err := s.leads.SubmitLead(r.Context(), services.SubmitLeadInput{
		Name:            body.Name,
		Email:           body.Email,
		Phone:           body.Phone,
		Type:            body.Type,
		Message:         body.Message,
		PropertyAddress: body.PropertyAddress,
		Source:          body.Source,
		ClientIP:        s.clientIP(r),
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusCreated, map[string]any{"success": true, "id": lead.ID})
}

func (s *Server) handleListProspectuses(w http.ResponseWriter, r *http.Request) {
	list, err := s.prospectuses.ListPublished(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusOK, list)
}

func (s *Server) handleGetProspectus(w http.ResponseWriter, r *http.Request) {
	p, err := s.prospectuses.GetPublished(r.Context(), s.pathParam(r, "id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusOK, p)
}

// handleIdentityWebhook applies signed user lifecycle events from the
// identity provider
func (s *Server) handleIdentityWebhook(w http.ResponseWriter, r *http.Request) {
	secret := s.cfg.Identity.WebhookSecret
	if secret == "" {
		writeError(r.Context(), w, apperrors.New(apperrors.ErrCodeConfiguration, "identity webhook secret is not configured"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(r.Context(), w, apperrors.Validation("unreadable body"))
		return
	}
	if err := util.VerifyWebhook(secret, r.Header, body, time.Now()); err != nil {
		s.log.WithError(err).WithField("svix_id", r.Header.Get("svix-id")).Warn("Rejected identity webhook")
		writeError(r.Context(), w, apperrors.New(apperrors.ErrCodeUnauthorized, "invalid webhook signature"))
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	var ev services.IdentityEvent
	if err := decodeJSON(r, &ev); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if err := s.investors.HandleIdentityEvent(r.Context(), ev); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	s.log.WithFields(logrus.Fields{"event": ev.Type, "svix_id": r.Header.Get("svix-id")}).Info("Identity webhook processed")
	writeJSON(r.Context(), w, http.StatusOK, map[string]bool{"success": true})
}

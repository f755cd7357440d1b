package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"


	"realtyportal/internal/services"
	apperrors "realtyportal/pkg/errors"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin accepts credentials as JSON or as an OAuth2 style form post
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	values, err := formValues(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	body := loginRequest{Username: values.Get("username"), Password: values.Get("password")}
	if body.Username == "" || body.Password == "" {
		writeError(r.Context(), w, apperrors.Validation("username and password are required"))
		return
	}
	res, err := s.auth.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, res)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeData(r.Context(), w, http.StatusOK, userFrom(r.Context()))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	skip, _ := strconv.Atoi(q.Get("skip"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	users, err := s.auth.ListUsers(r.Context(), skip, limit)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusOK, users)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body services.CreateUserInput
	if err := decodeJSON(r, &body); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	user, err := s.auth.CreateUser(r.Context(), body)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusCreated, user)
}

func (s *Server) userID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(s.pathParam(r, "id"), 10, 0)
	if err != nil {
		return 0, apperrors.Validation("invalid user id")
	}
	return uint(id), nil
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := s.userID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	user, err := s.auth.GetUser(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusOK, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := s.userID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	var body services.UpdateUserInput
	if err := decodeJSON(r, &body); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	user, err := s.auth.UpdateUser(r.Context(), id, body)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := s.userID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if err := s.auth.DeleteUser(r.Context(), userFrom(r.Context()), id); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]bool{"success": true})
}

// Leads

func (s *Server) handleAdminListLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	leads, err := s.leads.ListLeads(r.Context(), services.LeadFilter{
		Status: q.Get("status"),
		Type:   q.Get("type"),
		Search: q.Get("search"),
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusOK, leads)
}

func (s *Server) handleAdminLeadAction(w http.ResponseWriter, r *http.Request) {
	values, err := formValues(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	id, err := requireID(values)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	switch intent := values.Get("intent"); intent {
	case "convert":
		investor, created, err := s.leads.ConvertLeadToInvestor(r.Context(), id)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		writeJSON(r.Context(), w, http.StatusOK, map[string]any{"success": true, "created": created, "investor": investor})
	case "update-status":
		lead, err := s.leads.UpdateLeadStatus(r.Context(), id, values.Get("status"))
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		writeData(r.Context(), w, http.StatusOK, lead)
	default:
		writeError(r.Context(), w, unknownIntent(intent))
	}
}

// Investors

func (s *Server) handleAdminListInvestors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	investors, err := s.investors.List(r.Context(), services.InvestorFilter{
		Status:           q.Get("status"),
		AccreditedStatus: q.Get("accreditedStatus"),
		Search:           q.Get("search"),
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusOK, investors)
}

func (s *Server) handleAdminGetInvestor(w http.ResponseWriter, r *http.Request) {
	inv, err := s.investors.Get(r.Context(), s.pathParam(r, "id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusOK, inv)
}

func (s *Server) handleAdminDownloadDocument(w http.ResponseWriter, r *http.Request) {
	doc, rc, err := s.investors.OpenDocument(r.Context(), s.pathParam(r, "id"), s.pathParam(r, "documentId"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+strings.ReplaceAll(doc.FileName, "\"", "")+"\"")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log.WithError(err).WithField("document_id", doc.ID).Warn("Document download interrupted")
	}
}

func (s *Server) handleAdminInvestorAction(w http.ResponseWriter, r *http.Request) {
	values, err := formValues(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	id, err := requireID(values)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	var result any
	switch intent := values.Get("intent"); intent {
	case "update-status":
		result, err = s.investors.UpdateStatus(r.Context(), id, values.Get("status"))
	case "update-accreditation":
		result, err = s.investors.UpdateAccreditedStatus(r.Context(), id, values.Get("status"))
	case "review-document":
		documentID := strings.TrimSpace(values.Get("documentId"))
		if documentID == "" {
			err = apperrors.Validation("missing documentId")
			break
		}
		result, err = s.investors.ReviewAccreditationDocument(r.Context(), id, documentID, values.Get("status"), values.Get("reviewerNotes"))
	default:
		err = unknownIntent(intent)
	}
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusOK, result)
}

// Letters of intent

func (s *Server) handleAdminListLOIs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lois, err := s.lois.ListAll(r.Context(), services.LOIFilter{
		Status:       q.Get("status"),
		ProspectusID: q.Get("prospectusId"),
		InvestorID:   q.Get("investorId"),
		Search:       q.Get("search"),
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusOK, lois)
}

func (s *Server) handleAdminGetLOI(w http.ResponseWriter, r *http.Request) {
	loi, err := s.lois.Get(r.Context(), s.pathParam(r, "id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusOK, loi)
}

func (s *Server) handleAdminLOIPDF(w http.ResponseWriter, r *http.Request) {
	loi, err := s.lois.Get(r.Context(), s.pathParam(r, "id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	s.writePDF(w, r, loi)
}

func (s *Server) handleAdminLOIAction(w http.ResponseWriter, r *http.Request) {
	values, err := formValues(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	id, err := requireID(values)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	ctx := r.Context()
	var result any
	switch intent := values.Get("intent"); intent {
	case "review":
		result, err = s.lois.BeginReview(ctx, id)
	case "approve":
		result, err = s.lois.Approve(ctx, id)
	case "reject":
		result, err = s.lois.Reject(ctx, id)
	case "convert":
		result, err = s.lois.Convert(ctx, id)
	case "update-status":
		result, err = s.lois.UpdateStatus(ctx, id, values.Get("status"), userFrom(ctx))
	case "notes":
		result, err = s.lois.UpdateNotes(ctx, id, values.Get("notes"))
	default:
		err = unknownIntent(intent)
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(ctx, w, http.StatusOK, result)
}

type countersignRequest struct {
	SignerName     string `json:"signerName"`
	SignerEmail    string `json:"signerEmail"`
	SignerTitle    string `json:"signerTitle"`
	SignatureImage string `json:"signatureImage"`
}

func (s *Server) handleAdminCountersign(w http.ResponseWriter, r *http.Request) {
	var body countersignRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	loi, err := s.lois.Countersign(r.Context(), s.pathParam(r, "id"), services.CountersignInput{
		SignerName:     body.SignerName,
		SignerEmail:    body.SignerEmail,
		SignerTitle:    body.SignerTitle,
		SignatureImage: body.SignatureImage,
		IPAddress:      s.clientIP(r),
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusOK, loi)
}

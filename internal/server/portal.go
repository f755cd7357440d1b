package server

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"realtyportal/internal/domain"
	"realtyportal/internal/services"
	apperrors "realtyportal/pkg/errors"
)

func (s *Server) handlePortalMe(w http.ResponseWriter, r *http.Request) {
	inv, err := s.investors.Get(r.Context(), investorFrom(r.Context()).ID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusOK, inv)
}

func (s *Server) handlePortalListLOIs(w http.ResponseWriter, r *http.Request) {
	lois, err := s.lois.ListForInvestor(r.Context(), investorFrom(r.Context()).ID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusOK, lois)
}

func (s *Server) handlePortalGetLOI(w http.ResponseWriter, r *http.Request) {
	loi, err := s.lois.GetForInvestor(r.Context(), investorFrom(r.Context()).ID, s.pathParam(r, "id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusOK, loi)
}

type submitLOIRequest struct {
	ProspectusID     string          `json:"prospectusId"`
	InvestmentAmount decimal.Decimal `json:"investmentAmount"`
	InvestorNotes    string          `json:"investorNotes"`
}

func (s *Server) handlePortalSubmitLOI(w http.ResponseWriter, r *http.Request) {
	var body submitLOIRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if strings.TrimSpace(body.ProspectusID) == "" {
		writeError(r.Context(), w, apperrors.Validation("prospectusId is required"))
		return
	}

	loi, err := s.lois.Submit(r.Context(), services.SubmitLOIInput{
		InvestorID:    investorFrom(r.Context()).ID,
		ProspectusID:  body.ProspectusID,
		Amount:        body.InvestmentAmount,
		InvestorNotes: body.InvestorNotes,
		IPAddress:     s.clientIP(r),
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusCreated, loi)
}

func (s *Server) handlePortalWithdrawLOI(w http.ResponseWriter, r *http.Request) {
	loi, err := s.lois.Withdraw(r.Context(), investorFrom(r.Context()).ID, s.pathParam(r, "id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusOK, loi)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handlePortalLOINotes(w http.ResponseWriter, r *http.Request) {
	var body notesRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	loi, err := s.lois.UpdateInvestorNotes(r.Context(), investorFrom(r.Context()).ID, s.pathParam(r, "id"), body.Notes)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusOK, loi)
}

func (s *Server) handlePortalLOIPDF(w http.ResponseWriter, r *http.Request) {
	loi, err := s.lois.GetForInvestor(r.Context(), investorFrom(r.Context()).ID, s.pathParam(r, "id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	s.writePDF(w, r, loi)
}

func (s *Server) writePDF(w http.ResponseWriter, r *http.Request, loi *domain.LetterOfIntent) {
	data, name, err := s.lois.RenderPDF(r.Context(), loi)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handlePortalUploadDocument takes a multipart upload with fields "file" and
// "documentType"
func (s *Server) handlePortalUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxDocumentSize+(1<<20))
	if err := r.ParseMultipartForm(services.MaxDocumentSize); err != nil {
		writeError(r.Context(), w, apperrors.Validation("expected a multipart upload of at most 10 MB"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(r.Context(), w, apperrors.Validation("file is required"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(header.Filename)))
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}

	doc, err := s.investors.UploadAccreditationDocument(r.Context(), investorFrom(r.Context()).ID, services.UploadDocumentInput{
		DocumentType: r.FormValue("documentType"),
		FileName:     header.Filename,
		ContentType:  contentType,
		Size:         header.Size,
		Body:         file,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeData(r.Context(), w, http.StatusCreated, doc)
}

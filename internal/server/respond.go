package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	goahttp "goa.design/goa/v3/http"
	goamiddleware "goa.design/goa/v3/middleware"

	apperrors "realtyportal/pkg/errors"
)

// maxJSONBody caps JSON request bodies. Signature images are the largest.
const maxJSONBody = 4 << 20

// writeJSON encodes v with the goa response encoder
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := goahttp.ResponseEncoder(ctx, w).Encode(v); err != nil {
		logrus.WithError(err).WithField("component", "http").Warn("Failed to encode response")
	}
}

// writeData writes the success envelope around data
func writeData(ctx context.Context, w http.ResponseWriter, status int, data any) {
	writeJSON(ctx, w, status, map[string]any{"success": true, "data": data})
}

// requestID returns the id assigned by the goa RequestID middleware
func requestID(ctx context.Context) string {
	id, _ := ctx.Value(goamiddleware.RequestIDKey).(string)
	return id
}

// writeError maps err to its HTTP status and writes {"error": message}.
// Internal errors are logged and replaced with a generic message.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		entry := logrus.WithError(err).WithField("component", "http")
		if id := requestID(ctx); id != "" {
			entry = entry.WithField("request_id", id)
		}
		entry.Error("Request failed")
	}
	writeJSON(ctx, w, status, map[string]string{"error": apperrors.PublicMessage(err)})
}

// decodeJSON decodes the request body into v with the goa request decoder
func decodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxJSONBody)
	if err := goahttp.RequestDecoder(r).Decode(v); err != nil {
		return apperrors.Validation("invalid request body")
	}
	return nil
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// formValues returns the submitted fields of a form post. JSON bodies with
// string values are accepted too.
func formValues(r *http.Request) (url.Values, error) {
	if isJSON(r) {
		var body map[string]any
		if err := decodeJSON(r, &body); err != nil {
			return nil, err
		}
		values := url.Values{}
		for k, v := range body {
			switch t := v.(type) {
			case string:
				values.Set(k, t)
			case nil:
			default:
				raw, _ := json.Marshal(t)
				values.Set(k, string(raw))
			}
		}
		return values, nil
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxJSONBody); err != nil {
			return nil, apperrors.Validation("invalid form body")
		}
		return r.Form, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, apperrors.Validation("invalid form body")
	}
	return r.Form, nil
}

// requireID reads the id field every action form must carry
func requireID(values url.Values) (string, error) {
	id := strings.TrimSpace(values.Get("id"))
	if id == "" {
		return "", apperrors.Validation("missing id")
	}
	return id, nil
}

func unknownIntent(intent string) error {
	if intent == "" {
		return apperrors.Validation("missing intent")
	}
	return apperrors.Validation("unknown intent %q", intent)
}

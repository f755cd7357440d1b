package services

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtyportal/internal/domain"
	"realtyportal/internal/util"
	apperrors "realtyportal/pkg/errors"
)

func uploadDoc(t *testing.T, env *testEnv, investorID string) *domain.AccreditationDocument {
	t.Helper()
	body := "%PDF-1.4 statement"
	doc, err := env.investors.UploadAccreditationDocument(context.Background(), investorID, UploadDocumentInput{
		DocumentType: "bank_statement",
		FileName:     "../../statement.pdf",
		ContentType:  "application/pdf",
		Size:         int64(len(body)),
		Body:         strings.NewReader(body),
	})
	require.NoError(t, err)
	return doc
}

func TestUploadAccreditationDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.investor(t, "Quinn Investor")

	doc := uploadDoc(t, env, inv.ID)
	assert.Equal(t, domain.DocumentPending, doc.Status)
	assert.Equal(t, "statement.pdf", doc.FileName)
	assert.True(t, doc.UploadedAt.Equal(env.now))

	got, rc, err := env.investors.OpenDocument(ctx, inv.ID, doc.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 statement", string(data))
	assert.Equal(t, doc.ID, got.ID)

	full, err := env.investors.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, full.Documents, 1)
}

func TestUploadAccreditationDocumentValidation(t *testing.T) {
	env := newTestEnv(t)
	inv := env.investor(t, "Rae Investor")

	tests := []struct {
		name string
		in   UploadDocumentInput
	}{
		{"missing type", UploadDocumentInput{ContentType: "application/pdf", Size: 10}},
		{"empty", UploadDocumentInput{DocumentType: "w2", ContentType: "application/pdf"}},
		{"too large", UploadDocumentInput{DocumentType: "w2", ContentType: "application/pdf", Size: MaxDocumentSize + 1}},
		{"wrong type", UploadDocumentInput{DocumentType: "w2", ContentType: "text/plain", Size: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Body = strings.NewReader("x")
			_, err := env.investors.UploadAccreditationDocument(context.Background(), inv.ID, tt.in)
			assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation), "got %v", err)
		})
	}
}

func TestReviewAccreditationApprovalVerifiesAndActivates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.investor(t, "Sol Investor")
	require.Equal(t, domain.InvestorStatusPending, inv.Status)
	first := uploadDoc(t, env, inv.ID)
	second := uploadDoc(t, env, inv.ID)

	reviewing, err := env.investors.ReviewAccreditationDocument(ctx, inv.ID, first.ID, domain.DocumentUnderReview, "")
	require.NoError(t, err)
	assert.Nil(t, reviewing.ReviewedAt)

	approved, err := env.investors.ReviewAccreditationDocument(ctx, inv.ID, first.ID, domain.DocumentApproved, "looks good")
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentApproved, approved.Status)
	assert.Equal(t, "looks good", approved.ReviewerNotes)
	require.NotNil(t, approved.ReviewedAt)

	after, err := env.investors.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccreditedVerified, after.AccreditedStatus)
	assert.Equal(t, domain.InvestorStatusActive, after.Status)

	// Rejecting another document never downgrades the investor.
	_, err = env.investors.ReviewAccreditationDocument(ctx, inv.ID, second.ID, domain.DocumentRejected, "blurry")
	require.NoError(t, err)
	after, err = env.investors.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccreditedVerified, after.AccreditedStatus)
	assert.Equal(t, domain.InvestorStatusActive, after.Status)

	_, err = env.investors.ReviewAccreditationDocument(ctx, inv.ID, first.ID, domain.DocumentRejected, "")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeStateConflict))
}

func TestReviewAccreditationKeepsSuspendedInvestorSuspended(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.investor(t, "Tia Investor")
	_, err := env.investors.UpdateStatus(ctx, inv.ID, domain.InvestorStatusSuspended)
	require.NoError(t, err)
	doc := uploadDoc(t, env, inv.ID)

	_, err = env.investors.ReviewAccreditationDocument(ctx, inv.ID, doc.ID, domain.DocumentApproved, "")
	require.NoError(t, err)

	after, err := env.investors.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccreditedVerified, after.AccreditedStatus)
	assert.Equal(t, domain.InvestorStatusSuspended, after.Status)
}

func TestReviewAccreditationScopedToInvestor(t *testing.T) {
	env := newTestEnv(t)
	owner := env.investor(t, "Uma Investor")
	other := env.investor(t, "Vic Investor")
	doc := uploadDoc(t, env, owner.ID)

	_, err := env.investors.ReviewAccreditationDocument(context.Background(), other.ID, doc.ID, domain.DocumentApproved, "")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = env.investors.ReviewAccreditationDocument(context.Background(), owner.ID, doc.ID, "maybe", "")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))
}

func identityEvent(t *testing.T, raw string) IdentityEvent {
	t.Helper()
	var ev IdentityEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	return ev
}

func TestHandleIdentityEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created := identityEvent(t, `{
		"type": "user.created",
		"data": {
			"id": "user_2abc",
			"first_name": "Wren",
			"last_name": "Investor",
			"primary_email_address_id": "idn_2",
			"email_addresses": [
				{"id": "idn_1", "email_address": "old@example.com"},
				{"id": "idn_2", "email_address": "Wren@Example.com"}
			]
		}
	}`)
	require.NoError(t, env.investors.HandleIdentityEvent(ctx, created))
	// Replays are harmless.
	require.NoError(t, env.investors.HandleIdentityEvent(ctx, created))

	inv, err := env.investors.ResolveIdentity(ctx, &util.IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user_2abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Wren Investor", inv.Name)
	assert.Equal(t, "wren@example.com", inv.Email)
	assert.Equal(t, domain.InvestorStatusPending, inv.Status)

	require.NoError(t, env.investors.HandleIdentityEvent(ctx, identityEvent(t, `{"type":"session.created","data":{"id":"user_2abc"}}`)))

	require.NoError(t, env.investors.HandleIdentityEvent(ctx, identityEvent(t, `{"type":"user.deleted","data":{"id":"user_2abc"}}`)))
	after, err := env.investors.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvestorStatusInactive, after.Status)

	// Deleting an unknown user is a no-op.
	assert.NoError(t, env.investors.HandleIdentityEvent(ctx, identityEvent(t, `{"type":"user.deleted","data":{"id":"user_zzz"}}`)))

	err = env.investors.HandleIdentityEvent(ctx, identityEvent(t, `{"type":"user.created","data":{}}`))
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))
}

func TestResolveIdentityRegistersOnFirstSight(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	claims := &util.IdentityClaims{
		Email:            "xan@example.com",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user_xan"},
	}

	first, err := env.investors.ResolveIdentity(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, "xan@example.com", first.Name)

	second, err := env.investors.ResolveIdentity(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestInvestorAdminUpdates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.investor(t, "Yara Investor")
	env.investor(t, "Zed Investor")

	_, err := env.investors.UpdateStatus(ctx, inv.ID, "banned")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))

	updated, err := env.investors.UpdateAccreditedStatus(ctx, inv.ID, domain.AccreditedExpired)
	require.NoError(t, err)
	assert.Equal(t, domain.AccreditedExpired, updated.AccreditedStatus)

	_, err = env.investors.UpdateStatus(ctx, "missing", domain.InvestorStatusActive)
	assert.True(t, apperrors.IsNotFound(err))

	expired, err := env.investors.List(ctx, InvestorFilter{AccreditedStatus: domain.AccreditedExpired})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, inv.ID, expired[0].ID)

	byName, err := env.investors.List(ctx, InvestorFilter{Search: "zed"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
}

package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtyportal/internal/domain"
	"realtyportal/internal/store"
	apperrors "realtyportal/pkg/errors"
)

func TestLOILifecycleEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.investor(t, "Alice Investor")
	p := env.openProspectus(t, 50000)

	loi := env.submit(t, inv, p, 60000)
	assert.Equal(t, domain.LOISubmitted, loi.Status)
	require.NotNil(t, loi.SubmittedAt)
	assert.True(t, loi.SubmittedAt.Equal(env.now))
	assert.True(t, loi.InvestorSignature.Signed)
	assert.Equal(t, "203.0.113.7", loi.InvestorSignature.IPAddress)
	assert.Nil(t, loi.ReviewedAt)

	approved, err := env.loi.Approve(ctx, loi.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LOIApproved, approved.Status)
	require.NotNil(t, approved.ReviewedAt)
	assert.True(t, approved.ReviewedAt.Equal(env.now))
	env.dispatch.Wait()

	signed, err := env.loi.Countersign(ctx, loi.ID, CountersignInput{
		SignerName:     "Jane Doe",
		SignerEmail:    "jane@company.example",
		SignerTitle:    "Managing Partner",
		SignatureImage: signaturePNG,
		IPAddress:      "198.51.100.1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LOICountersigned, signed.Status)
	assert.True(t, signed.CompanySignature.Signed)
	assert.Equal(t, "Jane Doe", signed.CompanySignature.SignerName)
	assert.Equal(t, "jane@company.example", signed.CompanySignature.SignerEmail)
	assert.NotEmpty(t, signed.CompanySignature.SignatureImageRef)
	assert.Equal(t, loi.InvestmentAmount.String(), signed.InvestmentAmount.String())

	env.dispatch.Wait()
	assert.Equal(t, []domain.NotificationEvent{
		domain.EventSubmitted, domain.EventApproved, domain.EventCountersigned,
	}, env.notifier.events())
}

func TestLOISubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.investor(t, "Bob Investor")
	p := env.openProspectus(t, 50000)

	tests := []struct {
		name   string
		amount int64
	}{
		{"zero", 0},
		{"negative", -10},
		{"below minimum", 49999},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.loi.Submit(ctx, SubmitLOIInput{
				InvestorID:   inv.ID,
				ProspectusID: p.ID,
				Amount:       decimal.NewFromInt(tt.amount),
			})
			assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation), "got %v", err)
		})
	}
}

func TestLOISubmitRequiresOpenProspectus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.investor(t, "Carol Investor")
	p, err := env.prospectus.Create(ctx, CreateProspectusInput{
		Title:             "Closed Fund",
		Status:            domain.ProspectusClosed,
		MinimumInvestment: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	_, err = env.loi.Submit(ctx, SubmitLOIInput{InvestorID: inv.ID, ProspectusID: p.ID, Amount: decimal.NewFromInt(5000)})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))
	assert.Contains(t, err.Error(), "not accepting investment")
}

func TestLOISubmitUnknownParties(t *testing.T) {
	env := newTestEnv(t)
	inv := env.investor(t, "Dan Investor")

	_, err := env.loi.Submit(context.Background(), SubmitLOIInput{
		InvestorID:   inv.ID,
		ProspectusID: "00000000-0000-0000-0000-000000000000",
		Amount:       decimal.NewFromInt(5000),
	})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestLOIDuplicateActiveSubmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.investor(t, "Erin Investor")
	p := env.openProspectus(t, 1000)

	first := env.submit(t, inv, p, 5000)

	_, err := env.loi.Submit(ctx, SubmitLOIInput{InvestorID: inv.ID, ProspectusID: p.ID, Amount: decimal.NewFromInt(7000)})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeDuplicateSubmission), "got %v", err)

	// A withdrawn LOI no longer blocks a new one.
	_, err = env.loi.Withdraw(ctx, inv.ID, first.ID)
	require.NoError(t, err)
	second := env.submit(t, inv, p, 7000)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestLOIConcurrentSubmissionsYieldOne(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.investor(t, "Fay Investor")
	p := env.openProspectus(t, 1000)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.loi.Submit(ctx, SubmitLOIInput{InvestorID: inv.ID, ProspectusID: p.ID, Amount: decimal.NewFromInt(2000)})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeDuplicateSubmission), "got %v", err)
	}
	assert.Equal(t, 1, ok)

	active, err := store.List[domain.LetterOfIntent](ctx, env.store, "investor_ref = ?", inv.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestLOICountersignRequiresApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	loi := env.submit(t, env.investor(t, "Gus Investor"), env.openProspectus(t, 1000), 5000)

	_, err := env.loi.Countersign(ctx, loi.ID, CountersignInput{
		SignerName:     "Jane Doe",
		SignerEmail:    "jane@company.example",
		SignatureImage: signaturePNG,
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeStateConflict))

	got, err := env.loi.Get(ctx, loi.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LOISubmitted, got.Status)
	assert.False(t, got.CompanySignature.Signed)
}

func TestLOICountersignValidatesSigner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	loi := env.submit(t, env.investor(t, "Hal Investor"), env.openProspectus(t, 1000), 5000)
	_, err := env.loi.Approve(ctx, loi.ID)
	require.NoError(t, err)

	_, err = env.loi.Countersign(ctx, loi.ID, CountersignInput{SignerEmail: "jane@company.example", SignatureImage: signaturePNG})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))

	_, err = env.loi.Countersign(ctx, loi.ID, CountersignInput{SignerName: "Jane", SignerEmail: "not-an-email", SignatureImage: signaturePNG})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))

	_, err = env.loi.Countersign(ctx, loi.ID, CountersignInput{SignerName: "Jane", SignerEmail: "jane@company.example", SignatureImage: "%%%"})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))
}

func TestLOIReviewThenReject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	loi := env.submit(t, env.investor(t, "Ivy Investor"), env.openProspectus(t, 1000), 5000)

	inReview, err := env.loi.BeginReview(ctx, loi.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LOIReview, inReview.Status)
	assert.Nil(t, inReview.ReviewedAt)

	rejected, err := env.loi.Reject(ctx, loi.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LOIRejected, rejected.Status)
	require.NotNil(t, rejected.ReviewedAt)

	_, err = env.loi.Approve(ctx, loi.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeStateConflict))

	env.dispatch.Wait()
	assert.Equal(t, []domain.NotificationEvent{domain.EventSubmitted, domain.EventRejected}, env.notifier.events())
}

func TestLOIWithdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.investor(t, "Jon Investor")
	other := env.investor(t, "Kim Investor")
	loi := env.submit(t, inv, env.openProspectus(t, 1000), 5000)

	_, err := env.loi.Withdraw(ctx, other.ID, loi.ID)
	assert.True(t, apperrors.IsNotFound(err))

	withdrawn, err := env.loi.Withdraw(ctx, inv.ID, loi.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LOIWithdrawn, withdrawn.Status)

	_, err = env.loi.Withdraw(ctx, inv.ID, loi.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeStateConflict))
}

func TestLOIWithdrawAfterCountersignIsRefused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.investor(t, "Lou Investor")
	loi := env.submit(t, inv, env.openProspectus(t, 1000), 5000)
	_, err := env.loi.Approve(ctx, loi.ID)
	require.NoError(t, err)
	_, err = env.loi.Countersign(ctx, loi.ID, CountersignInput{
		SignerName: "Jane Doe", SignerEmail: "jane@company.example", SignatureImage: signaturePNG,
	})
	require.NoError(t, err)

	_, err = env.loi.Withdraw(ctx, inv.ID, loi.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeStateConflict))

	converted, err := env.loi.Convert(ctx, loi.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LOIConverted, converted.Status)
}

func TestLOIUpdateStatusStrict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	loi := env.submit(t, env.investor(t, "Max Investor"), env.openProspectus(t, 1000), 5000)

	_, err := env.loi.UpdateStatus(ctx, loi.ID, domain.LOICountersigned, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeStateConflict))

	_, err = env.loi.UpdateStatus(ctx, loi.ID, domain.LOIConverted, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeStateConflict))

	_, err = env.loi.UpdateStatus(ctx, loi.ID, "bogus", nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))

	approved, err := env.loi.UpdateStatus(ctx, loi.ID, domain.LOIApproved, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.LOIApproved, approved.Status)
	require.NotNil(t, approved.ReviewedAt)

	env.dispatch.Wait()
	assert.Equal(t, []domain.NotificationEvent{domain.EventSubmitted, domain.EventApproved}, env.notifier.events())
}

func TestLOIUpdateStatusPermissive(t *testing.T) {
	env := newTestEnv(t)
	env.loi.strict = false
	ctx := context.Background()
	loi := env.submit(t, env.investor(t, "Ned Investor"), env.openProspectus(t, 1000), 5000)
	actor := &domain.User{Username: "ops", Email: "ops@company.example"}

	signed, err := env.loi.UpdateStatus(ctx, loi.ID, domain.LOICountersigned, actor)
	require.NoError(t, err)
	assert.Equal(t, domain.LOICountersigned, signed.Status)
	assert.True(t, signed.CompanySignature.Signed)
	assert.Equal(t, "ops@company.example", signed.CompanySignature.SignerEmail)

	back, err := env.loi.UpdateStatus(ctx, loi.ID, domain.LOISubmitted, actor)
	require.NoError(t, err)
	assert.Equal(t, domain.LOISubmitted, back.Status)

	env.dispatch.Wait()
	assert.Equal(t, []domain.NotificationEvent{domain.EventSubmitted, domain.EventCountersigned}, env.notifier.events())
}

func TestLOIUpdateStatusPermissiveKeepsCompanySignature(t *testing.T) {
	env := newTestEnv(t)
	env.loi.strict = false
	ctx := context.Background()
	loi := env.submit(t, env.investor(t, "Pat Investor"), env.openProspectus(t, 1000), 5000)
	_, err := env.loi.Approve(ctx, loi.ID)
	require.NoError(t, err)
	signed, err := env.loi.Countersign(ctx, loi.ID, CountersignInput{
		SignerName: "Jane Doe", SignerEmail: "jane@company.example", SignatureImage: signaturePNG,
	})
	require.NoError(t, err)
	require.NotNil(t, signed.CompanySignature.SignedAt)
	signedAt := *signed.CompanySignature.SignedAt

	actor := &domain.User{Username: "ops", Email: "ops@company.example"}
	env.now = env.now.Add(time.Hour)
	_, err = env.loi.UpdateStatus(ctx, loi.ID, domain.LOIApproved, actor)
	require.NoError(t, err)
	again, err := env.loi.UpdateStatus(ctx, loi.ID, domain.LOICountersigned, actor)
	require.NoError(t, err)

	assert.Equal(t, domain.LOICountersigned, again.Status)
	assert.Equal(t, "Jane Doe", again.CompanySignature.SignerName)
	assert.Equal(t, "jane@company.example", again.CompanySignature.SignerEmail)
	require.NotNil(t, again.CompanySignature.SignedAt)
	assert.True(t, again.CompanySignature.SignedAt.Equal(signedAt))
	assert.Equal(t, signed.CompanySignature.SignatureImageRef, again.CompanySignature.SignatureImageRef)
	env.dispatch.Wait()
}

func TestLOINotificationFailureDoesNotFailTransition(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = apperrors.Upstream("smtp down", nil)
	ctx := context.Background()
	loi := env.submit(t, env.investor(t, "Oli Investor"), env.openProspectus(t, 1000), 5000)

	approved, err := env.loi.Approve(ctx, loi.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LOIApproved, approved.Status)
	env.dispatch.Wait()
}

func TestLOIListAndNotes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.investor(t, "Alice Lister")
	bob := env.investor(t, "Bob Lister")
	p := env.openProspectus(t, 1000)
	a := env.submit(t, alice, p, 5000)
	env.submit(t, bob, p, 6000)

	mine, err := env.loi.ListForInvestor(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)
	require.NotNil(t, mine[0].Prospectus)

	found, err := env.loi.ListAll(ctx, LOIFilter{Search: "bob"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, bob.ID, found[0].InvestorRef)

	byStatus, err := env.loi.ListAll(ctx, LOIFilter{Status: domain.LOIApproved})
	require.NoError(t, err)
	assert.Empty(t, byStatus)

	noted, err := env.loi.UpdateNotes(ctx, a.ID, "  call back Friday ")
	require.NoError(t, err)
	assert.Equal(t, "call back Friday", noted.Notes)

	_, err = env.loi.UpdateInvestorNotes(ctx, bob.ID, a.ID, "hijack")
	assert.True(t, apperrors.IsNotFound(err))

	mineNoted, err := env.loi.UpdateInvestorNotes(ctx, alice.ID, a.ID, "wire in March")
	require.NoError(t, err)
	assert.Equal(t, "wire in March", mineNoted.InvestorNotes)
}

func TestLOIRenderPDFEmbedsSignature(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	loi := env.submit(t, env.investor(t, "Pat Investor"), env.openProspectus(t, 1000), 5000)
	_, err := env.loi.Approve(ctx, loi.ID)
	require.NoError(t, err)
	_, err = env.loi.Countersign(ctx, loi.ID, CountersignInput{
		SignerName: "Jane Doe", SignerEmail: "jane@company.example", SignatureImage: signaturePNG,
	})
	require.NoError(t, err)

	full, err := env.loi.Get(ctx, loi.ID)
	require.NoError(t, err)
	data, name, err := env.loi.RenderPDF(ctx, full)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Jane Doe")
	assert.Contains(t, string(data), "data:image/png;base64,")
	assert.Contains(t, name, ".pdf")
}

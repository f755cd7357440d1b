package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtyportal/internal/config"
	"realtyportal/internal/domain"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
	fail map[string]bool
}

func (r *recordingSender) Send(_ context.Context, msg Message) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[msg.To] {
		return Result{}, errors.New("mailbox unavailable")
	}
	r.sent = append(r.sent, msg)
	return Result{ID: "msg-1"}, nil
}

func fixtures() (*domain.LetterOfIntent, *domain.Investor, *domain.Prospectus) {
	loi := &domain.LetterOfIntent{ID: "loi-1", InvestmentAmount: decimal.NewFromInt(60000), Status: domain.LOISubmitted}
	inv := &domain.Investor{ID: "inv-1", Name: "Ada Investor", Email: "ada@example.com"}
	p := &domain.Prospectus{ID: "p-1", Title: "Harbor View Lofts"}
	return loi, inv, p
}

func TestNotifyLOISubmittedGoesToInvestorAndAdmin(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier(sender, "admin@example.com", "https://portal.example.com")
	loi, inv, p := fixtures()

	require.NoError(t, n.NotifyLOI(context.Background(), domain.EventSubmitted, loi, inv, p))

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "ada@example.com", sender.sent[0].To)
	assert.Equal(t, "admin@example.com", sender.sent[1].To)
	assert.Contains(t, sender.sent[0].Subject, "Harbor View Lofts")
	assert.Contains(t, sender.sent[0].HTML, "$60000.00")
	assert.Contains(t, sender.sent[0].HTML, "https://portal.example.com/portal/lois/loi-1")
}

func TestNotifyLOIApprovedGoesToInvestorOnly(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier(sender, "admin@example.com", "https://portal.example.com")
	loi, inv, p := fixtures()

	require.NoError(t, n.NotifyLOI(context.Background(), domain.EventApproved, loi, inv, p))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ada@example.com", sender.sent[0].To)
}

func TestNotifyLOITriesEveryRecipient(t *testing.T) {
	sender := &recordingSender{fail: map[string]bool{"ada@example.com": true}}
	n := NewNotifier(sender, "admin@example.com", "")
	loi, inv, p := fixtures()

	err := n.NotifyLOI(context.Background(), domain.EventSubmitted, loi, inv, p)
	assert.Error(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "admin@example.com", sender.sent[0].To)
}

func TestRenderLOIEscapesInput(t *testing.T) {
	_, html, err := RenderLOI(domain.EventCountersigned, LOIView{
		InvestorName:    "<script>alert(1)</script>",
		ProspectusTitle: "Lofts",
		SignerName:      "Jane Doe",
	})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "Jane Doe")
}

func TestRenderLOIUnknownEvent(t *testing.T) {
	_, _, err := RenderLOI(domain.EventNone, LOIView{})
	assert.Error(t, err)
}

func TestNotifyLead(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier(sender, "admin@example.com", "")
	phone := "555-0100"

	err := n.NotifyLead(context.Background(), &domain.Lead{ID: "l-1", Name: "Sam Seller", Email: "sam@example.com", Type: domain.LeadTypeSeller, Phone: &phone, Message: "Selling a duplex"})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "New seller lead: Sam Seller", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].HTML, "555-0100")
}

func TestSMTPSenderDisabledIsNoop(t *testing.T) {
	s := NewSMTPSender(&config.EmailConfig{Enabled: false})
	res, err := s.Send(context.Background(), Message{To: "a@example.com", Subject: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "noop", res.ID)
}

func TestSMTPSenderBuildsMultipartMessage(t *testing.T) {
	cfg := &config.EmailConfig{Enabled: true, SMTPHost: "smtp.example.com", SMTPPort: 587, Username: "u", Password: "p", FromEmail: "noreply@example.com", FromName: "Realty"}
	s := NewSMTPSender(cfg)

	var gotAddr string
	var gotBody []byte
	s.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotBody = msg
		return nil
	}

	res, err := s.Send(context.Background(), Message{To: "a@example.com", Subject: "Hello", HTML: "<p>hi</p>", Text: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "smtp.example.com:587", gotAddr)

	body := string(gotBody)
	assert.Contains(t, body, "From: Realty <noreply@example.com>")
	assert.Contains(t, body, "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(body, "--\r\n"))
}

func TestSMTPSenderMisconfigured(t *testing.T) {
	s := NewSMTPSender(&config.EmailConfig{Enabled: true})
	_, err := s.Send(context.Background(), Message{To: "a@example.com"})
	assert.Error(t, err)
}

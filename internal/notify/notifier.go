package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/sirupsen/logrus"

	"realtyportal/internal/domain"
	"realtyportal/internal/metrics"
)

// Notifier turns LOI transitions and new leads into emails.
type Notifier struct {
	sender     Sender
	adminEmail string
	publicURL  string
	log        *logrus.Entry
}

// NewNotifier creates a notifier that sends through sender. adminEmail
// receives submission and lead alerts; publicURL is used for portal links.
func NewNotifier(sender Sender, adminEmail, publicURL string) *Notifier {
	return &Notifier{
		sender:     sender,
		adminEmail: adminEmail,
		publicURL:  publicURL,
		log:        logrus.WithField("component", "notify"),
	}
}

// LOIView is the data rendered into LOI emails.
type LOIView struct {
	InvestorName    string
	ProspectusTitle string
	Amount          string
	Status          string
	SignerName      string
	PortalURL       string
	Year            int
}

var subjects = map[domain.NotificationEvent]string{
	domain.EventSubmitted:     "Letter of intent received: %s",
	domain.EventApproved:      "Your letter of intent for %s was approved",
	domain.EventRejected:      "Update on your letter of intent for %s",
	domain.EventCountersigned: "Your letter of intent for %s has been countersigned",
}

var loiTemplates = template.Must(template.New("layout").Parse(`{{define "layout"}}<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>{{.ProspectusTitle}}</title></head>
<body style="margin:0;padding:32px;background:#F8FAFC;font-family:Arial,sans-serif;color:#0D1A2D;">
<table role="presentation" width="600" style="margin:0 auto;background:#FFFFFF;border-radius:12px;padding:32px;">
<tr><td>{{template "body" .}}</td></tr>
<tr><td style="padding-top:24px;font-size:12px;color:#94A3B8;">This is an automated message. &copy; {{.Year}}</td></tr>
</table>
</body>
</html>{{end}}`))

var loiBodies = map[domain.NotificationEvent]string{
	domain.EventSubmitted: `{{define "body"}}<h2>Letter of intent received</h2>
<p>Hello {{.InvestorName}},</p>
<p>We received your letter of intent to invest <strong>{{.Amount}}</strong> in <strong>{{.ProspectusTitle}}</strong>. Our team will review it shortly.</p>
<p><a href="{{.PortalURL}}">View it in the investor portal</a></p>{{end}}`,
	domain.EventApproved: `{{define "body"}}<h2>Letter of intent approved</h2>
<p>Hello {{.InvestorName}},</p>
<p>Your letter of intent for <strong>{{.Amount}}</strong> in <strong>{{.ProspectusTitle}}</strong> has been approved. It will be countersigned by our team.</p>
<p><a href="{{.PortalURL}}">View it in the investor portal</a></p>{{end}}`,
	domain.EventRejected: `{{define "body"}}<h2>Letter of intent update</h2>
<p>Hello {{.InvestorName}},</p>
<p>After review we are unable to accept your letter of intent for <strong>{{.ProspectusTitle}}</strong> at this time. Please contact us with any questions.</p>{{end}}`,
	domain.EventCountersigned: `{{define "body"}}<h2>Letter of intent countersigned</h2>
<p>Hello {{.InvestorName}},</p>
<p>Your letter of intent for <strong>{{.Amount}}</strong> in <strong>{{.ProspectusTitle}}</strong> was countersigned by {{.SignerName}}. A signed copy is available in the portal.</p>
<p><a href="{{.PortalURL}}">Download the signed letter</a></p>{{end}}`,
}

var leadTemplate = template.Must(template.New("lead").Parse(`<!DOCTYPE html>
<html lang="en"><body style="font-family:Arial,sans-serif;">
<h2>New {{.Type}} lead</h2>
<table>
<tr><td><strong>Name</strong></td><td>{{.Name}}</td></tr>
<tr><td><strong>Email</strong></td><td>{{.Email}}</td></tr>
{{if .Phone}}<tr><td><strong>Phone</strong></td><td>{{.Phone}}</td></tr>{{end}}
{{if .PropertyAddress}}<tr><td><strong>Property</strong></td><td>{{.PropertyAddress}}</td></tr>{{end}}
</table>
<p>{{.Message}}</p>
</body></html>`))

// RenderLOI renders the email for event.
func RenderLOI(event domain.NotificationEvent, view LOIView) (subject, html string, err error) {
	body, ok := loiBodies[event]
	if !ok {
		return "", "", fmt.Errorf("no template for event %q", event)
	}
	tmpl, err := template.Must(loiTemplates.Clone()).Parse(body)
	if err != nil {
		return "", "", err
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", view); err != nil {
		return "", "", err
	}
	return fmt.Sprintf(subjects[event], view.ProspectusTitle), buf.String(), nil
}

// NotifyLOI emails the investor about event. Submissions are also sent to the
// admin address. The first send error is returned after every recipient was
// tried.
func (n *Notifier) NotifyLOI(ctx context.Context, event domain.NotificationEvent, loi *domain.LetterOfIntent, investor *domain.Investor, prospectus *domain.Prospectus) error {
	view := LOIView{
		InvestorName:    investor.Name,
		ProspectusTitle: prospectus.Title,
		Amount:          "$" + loi.InvestmentAmount.StringFixedBank(2),
		Status:          loi.Status,
		SignerName:      loi.CompanySignature.SignerName,
		PortalURL:       fmt.Sprintf("%s/portal/lois/%s", n.publicURL, loi.ID),
		Year:            time.Now().Year(),
	}
	subject, html, err := RenderLOI(event, view)
	if err != nil {
		return err
	}

	recipients := []string{investor.Email}
	if event == domain.EventSubmitted && n.adminEmail != "" {
		recipients = append(recipients, n.adminEmail)
	}

	var firstErr error
	for _, to := range recipients {
		res, err := n.sender.Send(ctx, Message{To: to, Subject: subject, HTML: html, Text: subject})
		metrics.RecordNotification(string(event), err)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		n.log.WithFields(logrus.Fields{"event": event, "loi_id": loi.ID, "message_id": res.ID}).Info("Notification sent")
	}
	return firstErr
}

// NotifyLead emails the admin address about a new lead.
func (n *Notifier) NotifyLead(ctx context.Context, lead *domain.Lead) error {
	if n.adminEmail == "" {
		return nil
	}
	var buf bytes.Buffer
	if err := leadTemplate.Execute(&buf, lead); err != nil {
		return err
	}
	subject := fmt.Sprintf("New %s lead: %s", lead.Type, lead.Name)
	text := fmt.Sprintf("Name: %s\nEmail: %s\n\n%s", lead.Name, lead.Email, lead.Message)

	res, err := n.sender.Send(ctx, Message{To: n.adminEmail, Subject: subject, HTML: buf.String(), Text: text})
	metrics.RecordNotification("lead", err)
	if err != nil {
		return err
	}
	n.log.WithFields(logrus.Fields{"lead_id": lead.ID, "message_id": res.ID}).Info("Lead notification sent")
	return nil
}

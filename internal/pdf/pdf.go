// Package pdf renders letters of intent as printable documents.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"realtyportal/internal/domain"
	apperrors "realtyportal/pkg/errors"
)

// View is the data printed on an LOI document.
type View struct {
	LOI        *domain.LetterOfIntent
	Investor   *domain.Investor
	Prospectus *domain.Prospectus
	// SignatureImage is an optional data URL of the company signature.
	SignatureImage template.URL
}

var documentTemplate = template.Must(template.New("loi").Funcs(template.FuncMap{
	"date": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.UTC().Format("January 2, 2006")
	},
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Letter of Intent</title>
<style>
@page { size: Letter; margin: 0.75in; }
body { font-family: Georgia, serif; color: #111; font-size: 12pt; }
h1 { font-size: 20pt; text-align: center; }
table.parties td { padding: 4px 12px 4px 0; vertical-align: top; }
.signatures { display: flex; justify-content: space-between; margin-top: 48px; }
.sig { width: 45%; border-top: 1px solid #111; padding-top: 8px; }
.sig img { max-height: 60px; }
.muted { color: #555; font-size: 10pt; }
</style>
</head>
<body>
<h1>Letter of Intent</h1>
<p class="muted">Reference {{.LOI.ID}} &middot; Status: {{.LOI.Status}}</p>
<table class="parties">
<tr><td><strong>Investor</strong></td><td>{{.Investor.Name}}{{if .Investor.Company}}, {{.Investor.Company}}{{end}}<br>{{.Investor.Email}}</td></tr>
<tr><td><strong>Offering</strong></td><td>{{.Prospectus.Title}}{{if .Prospectus.Location}}<br>{{.Prospectus.Location}}{{end}}</td></tr>
<tr><td><strong>Amount</strong></td><td>${{.LOI.InvestmentAmount.StringFixedBank 2}}</td></tr>
<tr><td><strong>Submitted</strong></td><td>{{date .LOI.SubmittedAt}}</td></tr>
</table>
<p>The investor named above states a non-binding intent to invest the amount shown in the offering named above,
subject to execution of definitive subscription documents and verification of accredited investor status.</p>
{{if .LOI.InvestorNotes}}<p><strong>Investor notes:</strong> {{.LOI.InvestorNotes}}</p>{{end}}
<div class="signatures">
<div class="sig">
{{if .LOI.InvestorSignature.Signed}}<p>Signed electronically by {{.Investor.Name}}</p>
<p class="muted">{{date .LOI.InvestorSignature.SignedAt}}{{if .LOI.InvestorSignature.IPAddress}} from {{.LOI.InvestorSignature.IPAddress}}{{end}}</p>{{else}}<p class="muted">Not signed</p>{{end}}
</div>
<div class="sig">
{{if .LOI.CompanySignature.Signed}}{{if .SignatureImage}}<img src="{{.SignatureImage}}" alt="signature">{{end}}
<p>{{.LOI.CompanySignature.SignerName}}{{if .LOI.CompanySignature.SignerTitle}}, {{.LOI.CompanySignature.SignerTitle}}{{end}}</p>
<p class="muted">{{date .LOI.CompanySignature.SignedAt}}</p>{{else}}<p class="muted">Awaiting countersignature</p>{{end}}
</div>
</div>
</body>
</html>`))

// RenderHTML renders the LOI document.
func RenderHTML(v View) (string, error) {
	if v.LOI == nil || v.Investor == nil || v.Prospectus == nil {
		return "", fmt.Errorf("pdf view is incomplete")
	}
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render letter of intent: %w", err)
	}
	return buf.String(), nil
}

// Renderer prints HTML documents to PDF with headless Chrome.
type Renderer struct {
	enabled bool
	timeout time.Duration
}

// NewRenderer creates a renderer. A disabled renderer fails every call with a
// configuration error.
func NewRenderer(enabled bool, timeout time.Duration) *Renderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Renderer{enabled: enabled, timeout: timeout}
}

// Render prints the LOI in v to PDF bytes.
func (r *Renderer) Render(ctx context.Context, v View) ([]byte, error) {
	if !r.enabled {
		return nil, apperrors.New(apperrors.ErrCodeConfiguration, "pdf rendering is disabled")
	}
	if !chromeInstalled() {
		return nil, apperrors.New(apperrors.ErrCodeConfiguration, "chromium is not installed")
	}

	html, err := RenderHTML(v)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Chrome options for headless mode in container
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var pdfData []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, apperrors.Upstream("pdf generation failed", err)
	}
	return pdfData, nil
}

func chromeInstalled() bool {
	for _, bin := range []string{"chromium-browser", "chromium", "google-chrome", "headless-shell"} {
		if _, err := exec.LookPath(bin); err == nil {
			return true
		}
	}
	return false
}

// Filename returns the download name for an LOI document.
func Filename(v View) string {
	var b strings.Builder
	for _, r := range strings.ToLower(v.Prospectus.Title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('-')
		}
	}
	name := b.String()
	if len(name) > 40 {
		name = name[:40]
	}
	if name == "" {
		name = "letter-of-intent"
	}
	return fmt.Sprintf("loi-%s-%s.pdf", name, shortID(v.LOI.ID))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

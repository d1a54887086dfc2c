package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"github.com/invoply/invoply-api/internal/renderer"
	"github.com/invoply/invoply-api/internal/store"
)

// EmailService sends transactional invoice emails through Resend. A nil
// client disables sending, which is the local-development default.
type EmailService struct {
	client   *resend.Client
	from     string
	fromName string
	log      *zap.Logger
}

// NewEmailService creates an email service. apiKey may be empty, in which
// case Send returns an error and the caller surfaces it to the user.
func NewEmailService(apiKey, from, fromName string, log *zap.Logger) *EmailService {
	var client *resend.Client
	if apiKey != "" {
		client = resend.NewClient(apiKey)
	}
	return &EmailService{client: client, from: from, fromName: fromName, log: log}
}

// Enabled reports whether outbound email is configured.
func (s *EmailService) Enabled() bool { return s.client != nil }

// SendInvoice emails an invoice summary to the given recipient.
func (s *EmailService) SendInvoice(ctx context.Context, to string, account *store.Account, inv *store.Invoice) error {
	if s.client == nil {
		return errors.New("email sending is not configured")
	}
	if to == "" {
		return errors.New("recipient email is empty")
	}

	subject := "Invoice from " + account.BusinessName
	if account.BusinessName == "" {
		subject = "Your invoice"
	}
	if inv.Number != "" {
		subject += " (" + inv.Number + ")"
	}

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", s.fromName, s.from),
		To:      []string{to},
		Subject: subject,
		Html:    invoiceHTML(account, inv),
	}
	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		s.log.Error("invoice email failed",
			zap.String("invoice_id", inv.ID.String()), zap.Error(err))
		return errors.Wrap(err, "send invoice email")
	}
	s.log.Info("invoice email sent",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("email_id", sent.Id))
	return nil
}

func invoiceHTML(account *store.Account, inv *store.Invoice) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family:sans-serif;max-width:600px">`)
	if account.BusinessName != "" {
		fmt.Fprintf(&b, "<h2>%s</h2>", htmlEscape(account.BusinessName))
	}
	title := "Invoice"
	if inv.Number != "" {
		title = "Invoice " + inv.Number
	}
	fmt.Fprintf(&b, "<h3>%s</h3>", htmlEscape(title))
	if inv.DueDate != nil {
		fmt.Fprintf(&b, "<p>Due %s</p>", inv.DueDate.UTC().Format("January 2, 2006"))
	}
	b.WriteString(`<table style="width:100%;border-collapse:collapse">`)
	for _, it := range inv.Items {
		fmt.Fprintf(&b,
			`<tr><td style="padding:4px 0">%s</td><td style="text-align:right">%s</td></tr>`,
			htmlEscape(it.Description), renderer.FormatCents(it.TotalCents))
	}
	fmt.Fprintf(&b,
		`<tr><td style="padding:8px 0;font-weight:bold">Total</td><td style="text-align:right;font-weight:bold">%s</td></tr>`,
		renderer.FormatCents(inv.TotalCents))
	b.WriteString("</table>")
	if inv.Paid {
		b.WriteString(`<p style="color:green;font-weight:bold">Paid, thank you.</p>`)
	}
	b.WriteString("</div>")
	return b.String()
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

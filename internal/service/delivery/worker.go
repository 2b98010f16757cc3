package delivery

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/mailer"
)

// Ledger records successful sends.
type Ledger interface {
	RecordSend(ctx context.Context, subscriberID, campaignID, subject string) error
}

// Tracker injects the open pixel and click redirects into a body.
type Tracker interface {
	OpenURL(campaignID, subscriberID string) string
	WrapLinks(body, campaignID, subscriberID string) string
}

// Options carries the sender defaults and public site address.
type Options struct {
	DefaultFromName  string
	DefaultFromEmail string
	SiteURL          string
	Brand            string
}

// Worker implements campaign.Deliverer and subscriber.VerificationSender.
type Worker struct {
	transport mailer.Sender
	ledger    Ledger
	renderer  *mailer.Renderer
	tracker   Tracker
	opts      Options
}

func NewWorker(transport mailer.Sender, ledger Ledger, renderer *mailer.Renderer, opts Options) *Worker {
	opts.SiteURL = strings.TrimRight(opts.SiteURL, "/")
	if opts.Brand == "" {
		opts.Brand = opts.DefaultFromName
	}
	if opts.Brand == "" {
		opts.Brand = "Newsletter"
	}
	return &Worker{transport: transport, ledger: ledger, renderer: renderer, opts: opts}
}

// SetTracker enables open and click tracking on campaign sends.
func (w *Worker) SetTracker(t Tracker) {
	w.tracker = t
}

// Deliver sends c to s. The outcome is a success only when the transport
// accepted the message and the email_sent entry was written.
func (w *Worker) Deliver(ctx context.Context, c *domain.Campaign, s *domain.Subscriber) domain.Outcome {
	out := domain.Outcome{SubscriberID: s.ID, Email: s.Email}

	msg, err := w.compose(c, s, w.tracker != nil)
	if err != nil {
		out.Reason = "render: " + err.Error()
		return out
	}

	id, err := w.transport.Send(ctx, msg)
	if err != nil {
		out.Reason = "transport: " + err.Error()
		return out
	}
	out.MessageID = id

	if err := w.ledger.RecordSend(ctx, s.ID, c.ID, msg.Subject); err != nil {
		out.Reason = "ledger: " + err.Error()
		return out
	}
	out.Success = true
	return out
}

// SendTest renders c for a stand-in "Test User" at address and sends it.
// Nothing is recorded and no tracking is injected.
func (w *Worker) SendTest(ctx context.Context, c *domain.Campaign, address string) error {
	stand := &domain.Subscriber{
		Email:     address,
		FirstName: "Test",
		LastName:  "User",
		Token:     "test",
	}
	msg, err := w.compose(c, stand, false)
	if err != nil {
		return fmt.Errorf("render test email: %w", err)
	}
	msg.CampaignID = ""
	if _, err := w.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("send test email: %w", err)
	}
	return nil
}

const verificationBody = `<p>Please confirm your subscription by clicking the link below.</p>
<p><a href="{{ confirm_url }}">Confirm my subscription</a></p>
<p>If you did not sign up, you can ignore this email.</p>`

// SendVerification sends the double opt-in confirmation link to s.
func (w *Worker) SendVerification(ctx context.Context, s *domain.Subscriber) error {
	body, err := w.renderer.Render(verificationBody, map[string]interface{}{
		"confirm_url": w.opts.SiteURL + "/newsletter/confirm/" + s.Token,
	})
	if err != nil {
		return fmt.Errorf("render verification: %w", err)
	}
	html, err := w.renderer.Wrap(mailer.Layout{
		Title:          "Confirm your subscription",
		Brand:          w.opts.Brand,
		Greeting:       s.FullName(),
		Body:           body,
		UnsubscribeURL: w.unsubscribeURL(s, ""),
		SiteURL:        w.opts.SiteURL,
	})
	if err != nil {
		return fmt.Errorf("render verification: %w", err)
	}

	msg := &domain.EmailMessage{
		SubscriberID: s.ID,
		To:           s.Email,
		FromName:     w.opts.DefaultFromName,
		FromEmail:    w.opts.DefaultFromEmail,
		Subject:      "Confirm your subscription to " + w.opts.Brand,
		HTMLContent:  html,
		TextContent:  mailer.StripHTML(html),
	}
	if _, err := w.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("send verification: %w", err)
	}
	return nil
}

func (w *Worker) compose(c *domain.Campaign, s *domain.Subscriber, track bool) (*domain.EmailMessage, error) {
	unsubscribeURL := w.unsubscribeURL(s, c.ID)
	vars := map[string]interface{}{
		"subscriber": map[string]interface{}{
			"first_name": s.FirstName,
			"last_name":  s.LastName,
			"full_name":  s.FullName(),
			"email":      s.Email,
		},
		"campaign": map[string]interface{}{
			"name":    c.Name,
			"subject": c.Subject,
		},
		"unsubscribe_url": unsubscribeURL,
		"site_url":        w.opts.SiteURL,
	}

	subject, err := w.renderer.Render(c.Subject, vars)
	if err != nil {
		return nil, fmt.Errorf("subject: %w", err)
	}
	body, err := w.renderer.Render(c.HTMLContent, vars)
	if err != nil {
		return nil, fmt.Errorf("html: %w", err)
	}

	layout := mailer.Layout{
		Title:          subject,
		Preheader:      c.Preheader,
		Brand:          w.opts.Brand,
		Greeting:       s.FullName(),
		Body:           body,
		UnsubscribeURL: unsubscribeURL,
		SiteURL:        w.opts.SiteURL,
	}
	if track {
		layout.Body = w.tracker.WrapLinks(body, c.ID, s.ID)
		layout.TrackingPixel = w.tracker.OpenURL(c.ID, s.ID)
	}
	html, err := w.renderer.Wrap(layout)
	if err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}

	var text string
	if c.PlainContent != "" {
		text, err = w.renderer.Render(c.PlainContent, vars)
		if err != nil {
			return nil, fmt.Errorf("plain: %w", err)
		}
	} else {
		text = mailer.StripHTML(html)
	}

	fromName, fromEmail := c.FromName, c.FromEmail
	if fromName == "" {
		fromName = w.opts.DefaultFromName
	}
	if fromEmail == "" {
		fromEmail = w.opts.DefaultFromEmail
	}

	return &domain.EmailMessage{
		CampaignID:   c.ID,
		SubscriberID: s.ID,
		To:           s.Email,
		FromName:     fromName,
		FromEmail:    fromEmail,
		ReplyTo:      c.ReplyTo,
		Subject:      subject,
		HTMLContent:  html,
		TextContent:  text,
		Headers: map[string]string{
			"List-Unsubscribe": "<" + unsubscribeURL + ">",
		},
	}, nil
}

func (w *Worker) unsubscribeURL(s *domain.Subscriber, campaignID string) string {
	u := w.opts.SiteURL + "/newsletter/unsubscribe/" + url.PathEscape(s.Token)
	if campaignID != "" {
		u += "?campaign=" + url.QueryEscape(campaignID)
	}
	return u
}

package domain

import "time"

// EmailMessage is the fully-resolved message ready for a mail transport.
// By the time a message reaches this struct, all template substitution,
// tracking injection, and header generation is complete.
type EmailMessage struct {
	CampaignID   string            `json:"campaign_id,omitempty"`
	SubscriberID string            `json:"subscriber_id,omitempty"`
	To           string            `json:"to"`
	FromName     string            `json:"from_name"`
	FromEmail    string            `json:"from_email"`
	ReplyTo      string            `json:"reply_to,omitempty"`
	Subject      string            `json:"subject"`
	HTMLContent  string            `json:"html_content"`
	TextContent  string            `json:"text_content"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// From formats the sender as "Name <address>" when a display name is set.
func (m *EmailMessage) From() string {
	if m.FromName == "" {
		return m.FromEmail
	}
	return m.FromName + " <" + m.FromEmail + ">"
}

// Outcome is the result of delivering one campaign email to one recipient.
type Outcome struct {
	SubscriberID string `json:"subscriber_id"`
	Email        string `json:"email"`
	Success      bool   `json:"success"`
	MessageID    string `json:"message_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// SendResult summarizes a completed campaign send.
type SendResult struct {
	CampaignID string    `json:"campaign_id"`
	Recipients int       `json:"recipients"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Failures   []Outcome `json:"failures,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

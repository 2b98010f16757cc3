package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCancelled CampaignStatus = "cancelled"
)

// CampaignType classifies the content of a campaign.
type CampaignType string

const (
	CampaignNewsletter   CampaignType = "newsletter"
	CampaignAnnouncement CampaignType = "announcement"
	CampaignBlogDigest   CampaignType = "blog_digest"
	CampaignWelcome      CampaignType = "welcome"
	CampaignPromotional  CampaignType = "promotional"
)

// Valid reports whether t is a known campaign type.
func (t CampaignType) Valid() bool {
	switch t {
	case CampaignNewsletter, CampaignAnnouncement, CampaignBlogDigest, CampaignWelcome, CampaignPromotional:
		return true
	}
	return false
}

// TargetRule is the declarative audience selection attached to a campaign.
// Modes are evaluated in order: SendToAll, then InterestTags, then
// SubscriberIDs. A rule with none of them set selects nobody.
type TargetRule struct {
	SendToAll     bool     `json:"send_to_all" db:"send_to_all"`
	InterestTags  []string `json:"interest_tags,omitempty" db:"target_interests"`
	SubscriberIDs []string `json:"subscriber_ids,omitempty" db:"target_subscribers"`
}

// Counters is the fixed set of per-campaign result counters. Once a send
// begins every field only grows.
type Counters struct {
	Recipients     int `json:"recipients" db:"total_recipients"`
	Sent           int `json:"sent" db:"total_sent"`
	Delivered      int `json:"delivered" db:"total_delivered"`
	Bounced        int `json:"bounced" db:"total_bounced"`
	Opened         int `json:"opened" db:"total_opened"`
	Clicked        int `json:"clicked" db:"total_clicked"`
	Unsubscribed   int `json:"unsubscribed" db:"total_unsubscribed"`
	SpamComplaints int `json:"spam_complaints" db:"total_spam_complaints"`
}

// CounterField names a single campaign counter that engagement events may
// increment. Recipients and Sent are written only by the dispatcher.
type CounterField string

const (
	CounterDelivered      CounterField = "total_delivered"
	CounterBounced        CounterField = "total_bounced"
	CounterOpened         CounterField = "total_opened"
	CounterClicked        CounterField = "total_clicked"
	CounterUnsubscribed   CounterField = "total_unsubscribed"
	CounterSpamComplaints CounterField = "total_spam_complaints"
)

// Increment adds one to the counter named by f. It reports false for an
// unknown field.
func (c *Counters) Increment(f CounterField) bool {
	switch f {
	case CounterDelivered:
		c.Delivered++
	case CounterBounced:
		c.Bounced++
	case CounterOpened:
		c.Opened++
	case CounterClicked:
		c.Clicked++
	case CounterUnsubscribed:
		c.Unsubscribed++
	case CounterSpamComplaints:
		c.SpamComplaints++
	default:
		return false
	}
	return true
}

// Campaign represents an email campaign with its content, targeting and results.
type Campaign struct {
	ID           string         `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	Type         CampaignType   `json:"campaign_type" db:"campaign_type"`
	Subject      string         `json:"subject" db:"subject"`
	Preheader    string         `json:"preheader" db:"preheader"`
	HTMLContent  string         `json:"html_content" db:"html_content"`
	PlainContent string         `json:"plain_text_content" db:"plain_text_content"`
	FromName     string         `json:"from_name" db:"from_name"`
	FromEmail    string         `json:"from_email" db:"from_email"`
	ReplyTo      string         `json:"reply_to_email" db:"reply_to_email"`
	Target       TargetRule     `json:"target"`
	Status       CampaignStatus `json:"status" db:"status"`
	ScheduledAt  *time.Time     `json:"scheduled_at" db:"scheduled_at"`
	SentAt       *time.Time     `json:"sent_at" db:"sent_at"`

	Counters

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignCancelled
}

// CanStartSend reports whether a send attempt may begin from the current state.
func (c *Campaign) CanStartSend() bool {
	return c.Status == CampaignDraft || c.Status == CampaignScheduled
}

// CanCancel reports whether an admin cancel is allowed from the current state.
// Once sending has begun the batch runs to completion.
func (c *Campaign) CanCancel() bool {
	return c.Status == CampaignDraft || c.Status == CampaignScheduled
}

// CampaignStats is the read model returned by the stats operation.
type CampaignStats struct {
	CampaignID      string         `json:"campaign_id"`
	Status          CampaignStatus `json:"status"`
	Counters        Counters       `json:"counters"`
	OpenRate        float64        `json:"open_rate"`
	ClickRate       float64        `json:"click_rate"`
	UnsubscribeRate float64        `json:"unsubscribe_rate"`
	DeliveryRate    float64        `json:"delivery_rate"`
	BounceRate      float64        `json:"bounce_rate"`
	SentAt          *time.Time     `json:"sent_at,omitempty"`
}

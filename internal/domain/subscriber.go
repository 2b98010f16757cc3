package domain

import (
	"strings"
	"time"
)

// SubscriberStatus enumerates the states a subscriber can be in.
type SubscriberStatus string

const (
	SubscriberActive        SubscriberStatus = "active"
	SubscriberUnsubscribed  SubscriberStatus = "unsubscribed"
	SubscriberBounced       SubscriberStatus = "bounced"
	SubscriberSpamComplaint SubscriberStatus = "spam_complaint"
)

// Valid reports whether s is a known subscriber status.
func (s SubscriberStatus) Valid() bool {
	switch s {
	case SubscriberActive, SubscriberUnsubscribed, SubscriberBounced, SubscriberSpamComplaint:
		return true
	}
	return false
}

// EngagementWindow is how recent the last engagement must be for a
// subscriber to count as engaged.
const EngagementWindow = 30 * 24 * time.Hour

// Subscriber is a single newsletter recipient.
type Subscriber struct {
	ID        string           `json:"id" db:"id"`
	Email     string           `json:"email" db:"email"`
	FirstName string           `json:"first_name" db:"first_name"`
	LastName  string           `json:"last_name" db:"last_name"`
	Status    SubscriberStatus `json:"status" db:"status"`
	Token     string           `json:"-" db:"subscription_token"`
	Interests []string         `json:"interests" db:"interests"`
	Source    string           `json:"source,omitempty" db:"referrer_url"`

	IsVerified         bool       `json:"is_verified" db:"is_verified"`
	VerificationSentAt *time.Time `json:"verification_sent_at,omitempty" db:"verification_sent_at"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty" db:"verified_at"`

	EmailsSent     int        `json:"emails_sent" db:"total_emails_sent"`
	EmailsOpened   int        `json:"emails_opened" db:"total_emails_opened"`
	LinksClicked   int        `json:"links_clicked" db:"total_links_clicked"`
	LastEngagement *time.Time `json:"last_engagement,omitempty" db:"last_engagement"`

	SubscribedAt   time.Time  `json:"subscribed_at" db:"subscribed_at"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty" db:"unsubscribed_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// FullName returns "First Last", the first name alone, or the local part
// of the email address, in that order of preference.
func (s *Subscriber) FullName() string {
	switch {
	case s.FirstName != "" && s.LastName != "":
		return s.FirstName + " " + s.LastName
	case s.FirstName != "":
		return s.FirstName
	}
	local, _, _ := strings.Cut(s.Email, "@")
	return local
}

// Eligible reports whether the subscriber may receive new campaign sends.
func (s *Subscriber) Eligible() bool {
	return s.Status == SubscriberActive && s.IsVerified
}

// IsEngaged reports whether the subscriber engaged within EngagementWindow of now.
func (s *Subscriber) IsEngaged(now time.Time) bool {
	if s.LastEngagement == nil {
		return false
	}
	return now.Sub(*s.LastEngagement) <= EngagementWindow
}

// HasInterest reports whether any of tags is among the subscriber's interests.
func (s *Subscriber) HasInterest(tags []string) bool {
	for _, want := range tags {
		for _, have := range s.Interests {
			if have == want {
				return true
			}
		}
	}
	return false
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

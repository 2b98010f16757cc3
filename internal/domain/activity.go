package domain

import "time"

// ActivityType enumerates the events recorded in the activity ledger.
type ActivityType string

const (
	ActivitySubscription     ActivityType = "subscription"
	ActivityUnsubscription   ActivityType = "unsubscription"
	ActivityEmailSent        ActivityType = "email_sent"
	ActivityEmailOpened      ActivityType = "email_opened"
	ActivityLinkClicked      ActivityType = "link_clicked"
	ActivityBounce           ActivityType = "bounce"
	ActivitySpamComplaint    ActivityType = "spam_complaint"
	ActivityVerificationSent ActivityType = "verification_sent"
	ActivityEmailVerified    ActivityType = "email_verified"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivitySubscription, ActivityUnsubscription, ActivityEmailSent,
		ActivityEmailOpened, ActivityLinkClicked, ActivityBounce,
		ActivitySpamComplaint, ActivityVerificationSent, ActivityEmailVerified:
		return true
	}
	return false
}

// Activity is an immutable ledger entry tied to a subscriber and
// optionally a campaign.
type Activity struct {
	ID           string       `json:"id" db:"id"`
	SubscriberID string       `json:"subscriber_id" db:"subscriber_id"`
	CampaignID   *string      `json:"campaign_id,omitempty" db:"campaign_id"`
	Type         ActivityType `json:"activity_type" db:"activity_type"`
	Description  string       `json:"description,omitempty" db:"description"`
	EmailSubject string       `json:"email_subject,omitempty" db:"email_subject"`
	ClickedURL   string       `json:"clicked_url,omitempty" db:"clicked_url"`
	IPAddress    string       `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent    string       `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}

// Package metrics derives campaign and subscriber rates from stored counters.
//
// Every function is pure: rates are never persisted and can always be
// recomputed from the counters alone. All rates are percentages rounded
// to one decimal place.
package metrics

import (
	"math"
	"time"

	"github.com/ignite/newsletter/internal/domain"
)

// Rate returns part/whole as a percentage rounded to one decimal, or 0
// when whole is not positive.
func Rate(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*1000) / 10
}

// OpenRate is opened / sent.
func OpenRate(c domain.Counters) float64 { return Rate(c.Opened, c.Sent) }

// ClickRate is clicked / sent.
func ClickRate(c domain.Counters) float64 { return Rate(c.Clicked, c.Sent) }

// UnsubscribeRate is unsubscribed / sent.
func UnsubscribeRate(c domain.Counters) float64 { return Rate(c.Unsubscribed, c.Sent) }

// BounceRate is bounced / sent.
func BounceRate(c domain.Counters) float64 { return Rate(c.Bounced, c.Sent) }

// DeliveryRate is delivered / recipients.
func DeliveryRate(c domain.Counters) float64 { return Rate(c.Delivered, c.Recipients) }

// CampaignStats builds the stats read model for a campaign.
func CampaignStats(c *domain.Campaign) domain.CampaignStats {
	return domain.CampaignStats{
		CampaignID:      c.ID,
		Status:          c.Status,
		Counters:        c.Counters,
		OpenRate:        OpenRate(c.Counters),
		ClickRate:       ClickRate(c.Counters),
		UnsubscribeRate: UnsubscribeRate(c.Counters),
		DeliveryRate:    DeliveryRate(c.Counters),
		BounceRate:      BounceRate(c.Counters),
		SentAt:          c.SentAt,
	}
}

// EngagementRate is a subscriber's opened / sent.
func EngagementRate(s *domain.Subscriber) float64 {
	return Rate(s.EmailsOpened, s.EmailsSent)
}

// SubscriberEngagement is the per-subscriber read model.
type SubscriberEngagement struct {
	SubscriberID   string  `json:"subscriber_id"`
	EmailsSent     int     `json:"emails_sent"`
	EmailsOpened   int     `json:"emails_opened"`
	LinksClicked   int     `json:"links_clicked"`
	EngagementRate float64 `json:"engagement_rate"`
	Engaged        bool    `json:"engaged"`
}

// Engagement summarizes a subscriber's engagement as of now.
func Engagement(s *domain.Subscriber, now time.Time) SubscriberEngagement {
	return SubscriberEngagement{
		SubscriberID:   s.ID,
		EmailsSent:     s.EmailsSent,
		EmailsOpened:   s.EmailsOpened,
		LinksClicked:   s.LinksClicked,
		EngagementRate: EngagementRate(s),
		Engaged:        s.IsEngaged(now),
	}
}

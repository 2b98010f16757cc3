package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/newsletter/internal/mailer"
)

var (
	ErrBadEncoding  = errors.New("invalid tracking encoding")
	ErrBadSignature = errors.New("invalid tracking signature")
	ErrBadFormat    = errors.New("invalid tracking data format")
)

// Link is the decoded payload of a tracking URL.
type Link struct {
	CampaignID   string
	SubscriberID string
	URL          string // click target; empty for opens
}

// Signer builds and verifies HMAC-signed tracking URLs.
type Signer struct {
	key     []byte
	baseURL string
}

func NewSigner(signingKey, baseURL string) *Signer {
	return &Signer{key: []byte(signingKey), baseURL: strings.TrimRight(baseURL, "/")}
}

// OpenURL returns the open-pixel URL for one recipient of a campaign.
func (s *Signer) OpenURL(campaignID, subscriberID string) string {
	return s.build("o", campaignID+"|"+subscriberID)
}

// ClickURL returns a redirect URL that records a click on target.
func (s *Signer) ClickURL(campaignID, subscriberID, target string) string {
	return s.build("c", campaignID+"|"+subscriberID+"|"+target)
}

// WrapLinks rewrites every absolute link in body through ClickURL.
func (s *Signer) WrapLinks(body, campaignID, subscriberID string) string {
	return mailer.RewriteLinks(body, func(target string) string {
		if strings.Contains(target, "/newsletter/unsubscribe/") {
			return target
		}
		return s.ClickURL(campaignID, subscriberID, target)
	})
}

// DecodeOpen verifies and decodes an open-pixel path.
func (s *Signer) DecodeOpen(encoded, sig string) (Link, error) {
	parts, err := s.decode(encoded, sig)
	if err != nil {
		return Link{}, err
	}
	if len(parts) != 2 {
		return Link{}, ErrBadFormat
	}
	return Link{CampaignID: parts[0], SubscriberID: parts[1]}, nil
}

// DecodeClick verifies and decodes a click-redirect path.
func (s *Signer) DecodeClick(encoded, sig string) (Link, error) {
	parts, err := s.decode(encoded, sig)
	if err != nil {
		return Link{}, err
	}
	// the target URL may itself contain '|'
	if len(parts) < 3 {
		return Link{}, ErrBadFormat
	}
	target := strings.Join(parts[2:], "|")
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return Link{}, ErrBadFormat
	}
	return Link{CampaignID: parts[0], SubscriberID: parts[1], URL: target}, nil
}

func (s *Signer) build(kind, data string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(data))
	return fmt.Sprintf("%s/t/%s/%s/%s", s.baseURL, kind, encoded, s.sign(data))
}

func (s *Signer) decode(encoded, sig string) ([]string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrBadEncoding
	}
	data := string(raw)
	if !hmac.Equal([]byte(s.sign(data)), []byte(sig)) {
		return nil, ErrBadSignature
	}
	return strings.Split(data, "|"), nil
}

func (s *Signer) sign(data string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

package campaign

import (
	"context"
	"fmt"

	"github.com/ignite/newsletter/internal/domain"
)

// Action is one of the admin operations on a campaign. The set is closed:
// StartSend, Cancel and SendTest.
type Action interface {
	Name() string
	isAction()
}

// StartSend begins a send of the campaign.
type StartSend struct {
	CampaignID string `json:"campaign_id"`
}

// Cancel cancels a draft or scheduled campaign.
type Cancel struct {
	CampaignID string `json:"campaign_id"`
}

// SendTest sends a preview of the campaign to one address.
type SendTest struct {
	CampaignID string `json:"campaign_id"`
	Address    string `json:"address"`
}

func (StartSend) Name() string { return "start_send" }
func (Cancel) Name() string    { return "cancel" }
func (SendTest) Name() string  { return "send_test" }

func (StartSend) isAction() {}
func (Cancel) isAction()    {}
func (SendTest) isAction()  {}

// ActionResult carries whatever the executed action produced.
type ActionResult struct {
	Action   string             `json:"action"`
	Send     *domain.SendResult `json:"send,omitempty"`
	Campaign *domain.Campaign   `json:"campaign,omitempty"`
}

// Execute runs an admin action.
func (s *Service) Execute(ctx context.Context, a Action) (*ActionResult, error) {
	res := &ActionResult{Action: a.Name()}
	switch act := a.(type) {
	case StartSend:
		out, err := s.StartSend(ctx, act.CampaignID)
		if err != nil {
			return nil, err
		}
		res.Send = out
	case Cancel:
		c, err := s.Cancel(ctx, act.CampaignID)
		if err != nil {
			return nil, err
		}
		res.Campaign = c
	case SendTest:
		if err := s.SendTest(ctx, act.CampaignID, act.Address); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported campaign action %T", a)
	}
	return res, nil
}

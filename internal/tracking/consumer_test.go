package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ignite/newsletter/internal/service/engagement"
)

type fakeSQS struct {
	mu       sync.Mutex
	sent     []string
	inbox    []types.Message
	deleted  []string
	received int
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received++
	msgs := f.inbox
	f.inbox = nil
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func message(handle, body string) types.Message {
	return types.Message{ReceiptHandle: aws.String(handle), Body: aws.String(body)}
}

const sesBounce = `{
  "eventType": "Bounce",
  "mail": {"messageId": "m1", "timestamp": "2026-03-01T10:00:00Z",
           "tags": {"campaign_id": ["c1"], "subscriber_id": ["s1"]}},
  "bounce": {"bounceType": "Permanent", "bounceSubType": "General", "timestamp": "2026-03-01T10:00:05Z"}
}`

func TestParseMessage_PublisherEvent(t *testing.T) {
	body, _ := json.Marshal(engagement.Event{Type: engagement.EventClick, CampaignID: "c1", SubscriberID: "s1", URL: "https://x.test"})
	events, err := ParseMessage(string(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 1 || events[0].Type != engagement.EventClick || events[0].URL != "https://x.test" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestParseMessage_SESBounceInSNSEnvelope(t *testing.T) {
	env, _ := json.Marshal(map[string]string{"Type": "Notification", "Message": sesBounce})
	events, err := ParseMessage(string(env))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Type != engagement.EventBounce || ev.CampaignID != "c1" || ev.SubscriberID != "s1" || ev.Detail != "General" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestParseMessage_SESVariants(t *testing.T) {
	tests := []struct {
		name string
		body string
		want engagement.EventType
	}{
		{"delivery", `{"notificationType":"Delivery","mail":{"tags":{"campaign_id":["c"],"subscriber_id":["s"]}},"delivery":{"timestamp":"2026-03-01T10:00:00Z"}}`, engagement.EventDelivered},
		{"complaint", `{"eventType":"Complaint","mail":{"tags":{"campaign_id":["c"],"subscriber_id":["s"]}},"complaint":{"complaintFeedbackType":"abuse","timestamp":"2026-03-01T10:00:00Z"}}`, engagement.EventComplaint},
		{"transient bounce", `{"eventType":"Bounce","mail":{"tags":{"campaign_id":["c"],"subscriber_id":["s"]}},"bounce":{"bounceType":"Transient"}}`, ""},
		{"untagged", `{"eventType":"Delivery","mail":{"tags":{}}}`, ""},
		{"send event", `{"eventType":"Send","mail":{"tags":{"campaign_id":["c"],"subscriber_id":["s"]}}}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := ParseMessage(tt.body)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if tt.want == "" {
				if len(events) != 0 {
					t.Fatalf("expected no events, got %+v", events)
				}
				return
			}
			if len(events) != 1 || events[0].Type != tt.want {
				t.Fatalf("got %+v, want type %s", events, tt.want)
			}
		})
	}
}

func TestParseMessage_Garbage(t *testing.T) {
	if _, err := ParseMessage("not json"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := ParseMessage(`{"campaign_id":"c"}`); err == nil {
		t.Fatal("expected error for message without type")
	}
}

func TestConsumer_PollOnce(t *testing.T) {
	open, _ := json.Marshal(engagement.Event{Type: engagement.EventOpen, CampaignID: "c1", SubscriberID: "s1"})
	q := &fakeSQS{inbox: []types.Message{
		message("h1", string(open)),
		message("h2", sesBounce),
		message("h3", "garbage"),
	}}
	rec := &memRecorder{}
	c := NewConsumer(q, "queue", rec)

	n, err := c.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 3 {
		t.Fatalf("received = %d, want 3", n)
	}
	if len(rec.events) != 2 {
		t.Fatalf("recorded = %d, want 2", len(rec.events))
	}
	if len(q.deleted) != 3 {
		t.Fatalf("deleted = %v, want all three", q.deleted)
	}
}

func TestConsumer_KeepsMessageOnRecordFailure(t *testing.T) {
	open, _ := json.Marshal(engagement.Event{Type: engagement.EventOpen, CampaignID: "c1", SubscriberID: "s1"})
	q := &fakeSQS{inbox: []types.Message{message("h1", string(open))}}
	c := NewConsumer(q, "queue", &memRecorder{err: errors.New("db down")})

	if _, err := c.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(q.deleted) != 0 {
		t.Fatal("failed message must stay on the queue")
	}
}

func TestConsumer_DropsInvalidEvents(t *testing.T) {
	click, _ := json.Marshal(engagement.Event{Type: engagement.EventClick, CampaignID: "c1", SubscriberID: "s1"})
	q := &fakeSQS{inbox: []types.Message{message("h1", string(click))}}
	c := NewConsumer(q, "queue", &memRecorder{err: engagement.ErrInvalidEvent})

	if _, err := c.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(q.deleted) != 1 {
		t.Fatal("invalid event should be acknowledged")
	}
}

func TestConsumer_StartStop(t *testing.T) {
	c := NewConsumer(&fakeSQS{}, "queue", &memRecorder{})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("second start should fail")
	}
	c.Stop()
	c.Stop()
}

func TestPublisher_SendsJSON(t *testing.T) {
	q := &fakeSQS{}
	p := NewPublisher(q, "queue")
	p.Publish(context.Background(), engagement.Event{Type: engagement.EventOpen, CampaignID: "c1", SubscriberID: "s1"})

	// Publish is asynchronous
	for i := 0; i < 100; i++ {
		q.mu.Lock()
		n := len(q.sent)
		q.mu.Unlock()
		if n > 0 {
			break
		}
		waitABit()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(q.sent))
	}
	var ev engagement.Event
	if err := json.Unmarshal([]byte(q.sent[0]), &ev); err != nil || ev.CampaignID != "c1" {
		t.Fatalf("bad body %q: %v", q.sent[0], err)
	}
}

package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"

	"github.com/ignite/newsletter/internal/pkg/logger"
	"github.com/ignite/newsletter/internal/service/engagement"
)

// Consumer drains the tracking queue. Messages are either events written by
// Publisher or SES notifications (raw or wrapped in an SNS envelope).
type Consumer struct {
	client   SQSAPI
	queueURL string
	rec      Recorder
	log      zerolog.Logger
	backoff  time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewConsumer(client SQSAPI, queueURL string, rec Recorder) *Consumer {
	return &Consumer{
		client:   client,
		queueURL: queueURL,
		rec:      rec,
		log:      logger.With("tracking-consumer"),
		backoff:  5 * time.Second,
	}
}

// Start begins polling in the background.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("consumer already running")
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.running = true

	c.log.Info().Str("queue", c.queueURL).Msg("tracking consumer started")
	go func() {
		defer close(c.done)
		c.poll(ctx)
	}()
	return nil
}

// Stop cancels polling and waits for the in-flight batch.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	done := c.done
	c.mu.Unlock()
	<-done
	c.log.Info().Msg("tracking consumer stopped")
}

func (c *Consumer) poll(ctx context.Context) {
	for ctx.Err() == nil {
		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error().Err(err).Msg("sqs receive failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}
		c.handleBatch(ctx, out.Messages)
	}
}

// PollOnce receives and handles a single batch. Used by the CLI drain command.
func (c *Consumer) PollOnce(ctx context.Context) (int, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     1,
	})
	if err != nil {
		return 0, err
	}
	c.handleBatch(ctx, out.Messages)
	return len(out.Messages), nil
}

func (c *Consumer) handleBatch(ctx context.Context, msgs []types.Message) {
	for _, msg := range msgs {
		events, err := ParseMessage(aws.ToString(msg.Body))
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping unparseable tracking message")
			c.deleteMessage(ctx, msg.ReceiptHandle)
			continue
		}

		failed := false
		for _, ev := range events {
			if _, err := c.rec.Record(ctx, ev); err != nil {
				if errors.Is(err, engagement.ErrInvalidEvent) {
					c.log.Warn().Err(err).Str("type", string(ev.Type)).Msg("dropping invalid event")
					continue
				}
				c.log.Error().Err(err).Str("type", string(ev.Type)).Str("campaign_id", ev.CampaignID).Msg("record event failed")
				failed = true
				break
			}
		}
		// leave failed messages for redelivery
		if !failed {
			c.deleteMessage(ctx, msg.ReceiptHandle)
		}
	}
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil && ctx.Err() == nil {
		c.log.Warn().Err(err).Msg("sqs delete failed")
	}
}

type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

type sesNotification struct {
	EventType        string `json:"eventType"`
	NotificationType string `json:"notificationType"`
	Mail             struct {
		MessageID string              `json:"messageId"`
		Timestamp time.Time           `json:"timestamp"`
		Tags      map[string][]string `json:"tags"`
	} `json:"mail"`
	Bounce *struct {
		BounceType    string    `json:"bounceType"`
		BounceSubType string    `json:"bounceSubType"`
		Timestamp     time.Time `json:"timestamp"`
	} `json:"bounce"`
	Complaint *struct {
		FeedbackType string    `json:"complaintFeedbackType"`
		Timestamp    time.Time `json:"timestamp"`
	} `json:"complaint"`
	Delivery *struct {
		Timestamp time.Time `json:"timestamp"`
	} `json:"delivery"`
}

// ParseMessage decodes one queue message body into engagement events.
// Transient bounces yield no events.
func ParseMessage(body string) ([]engagement.Event, error) {
	var env snsEnvelope
	if err := json.Unmarshal([]byte(body), &env); err == nil && env.Type == "Notification" && env.Message != "" {
		body = env.Message
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &probe); err != nil {
		return nil, err
	}
	if _, ok := probe["mail"]; ok {
		return parseSES(body)
	}

	var ev engagement.Event
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return nil, err
	}
	if ev.Type == "" {
		return nil, errors.New("message has no event type")
	}
	return []engagement.Event{ev}, nil
}

func parseSES(body string) ([]engagement.Event, error) {
	var n sesNotification
	if err := json.Unmarshal([]byte(body), &n); err != nil {
		return nil, err
	}
	kind := n.EventType
	if kind == "" {
		kind = n.NotificationType
	}

	ev := engagement.Event{
		CampaignID:   firstTag(n.Mail.Tags, "campaign_id"),
		SubscriberID: firstTag(n.Mail.Tags, "subscriber_id"),
		At:           n.Mail.Timestamp,
	}
	if ev.CampaignID == "" || ev.SubscriberID == "" {
		// test sends and verification mail carry no campaign tags
		return nil, nil
	}

	switch strings.ToLower(kind) {
	case "delivery":
		ev.Type = engagement.EventDelivered
		if n.Delivery != nil {
			ev.At = n.Delivery.Timestamp
		}
	case "bounce":
		if n.Bounce == nil || n.Bounce.BounceType != "Permanent" {
			return nil, nil
		}
		ev.Type = engagement.EventBounce
		ev.Detail = n.Bounce.BounceSubType
		ev.At = n.Bounce.Timestamp
	case "complaint":
		ev.Type = engagement.EventComplaint
		if n.Complaint != nil {
			ev.Detail = n.Complaint.FeedbackType
			ev.At = n.Complaint.Timestamp
		}
	default:
		return nil, nil
	}
	return []engagement.Event{ev}, nil
}

func firstTag(tags map[string][]string, key string) string {
	if v := tags[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

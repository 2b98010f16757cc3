package tracking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/newsletter/internal/pkg/logger"
	"github.com/ignite/newsletter/internal/service/engagement"
)

// Sink receives engagement events from the public tracking endpoints.
// Implementations must not block the HTTP response on slow backends.
type Sink interface {
	Publish(ctx context.Context, ev engagement.Event)
}

// SQSAPI is the subset of the SQS client used by the publisher and consumer.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Publisher forwards events to an SQS queue for the consumer to apply.
type Publisher struct {
	client   SQSAPI
	queueURL string
}

func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

// Publish enqueues ev in the background with its own timeout.
func (p *Publisher) Publish(_ context.Context, ev engagement.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		logger.Error("marshal engagement event", "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if err != nil {
			logger.Error("publish engagement event", "type", string(ev.Type), "campaign_id", ev.CampaignID, "error", err)
		}
	}()
}

// Recorder is the engagement service surface used by DirectSink.
type Recorder interface {
	Record(ctx context.Context, ev engagement.Event) (bool, error)
}

// DirectSink applies events in-process. Used when no queue is configured.
type DirectSink struct {
	rec Recorder
}

func NewDirectSink(rec Recorder) *DirectSink {
	return &DirectSink{rec: rec}
}

func (d *DirectSink) Publish(ctx context.Context, ev engagement.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := d.rec.Record(ctx, ev); err != nil {
		logger.Warn("record engagement event", "type", string(ev.Type), "campaign_id", ev.CampaignID, "error", err)
	}
}

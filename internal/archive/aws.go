package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/newsletter/internal/config"
	"github.com/ignite/newsletter/internal/domain"
)

// DynamoAPI is the subset of the DynamoDB client the backend uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// S3API is the subset of the S3 client the backend uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// AWSBackend stores snapshots in DynamoDB and ledger exports in S3.
type AWSBackend struct {
	dynamo DynamoAPI
	s3     S3API
	table  string
	bucket string
	now    func() time.Time
}

// snapshotItem is the DynamoDB row for one snapshot. Every archive run
// adds a row; the newest sort key wins on read.
type snapshotItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Data      string `dynamodbav:"Data"`
	Timestamp string `dynamodbav:"Timestamp"`
}

// NewAWSBackend loads AWS credentials the way the rest of the service
// does: an explicit profile when configured, the default chain otherwise.
func NewAWSBackend(ctx context.Context, cfg config.ArchiveConfig) (*AWSBackend, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if profile := cfg.GetAWSProfile(); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewAWSBackendWithClients(dynamodb.NewFromConfig(awsCfg), s3.NewFromConfig(awsCfg), cfg.DynamoDBTable, cfg.S3Bucket), nil
}

// NewAWSBackendWithClients wires pre-built clients.
func NewAWSBackendWithClients(dynamo DynamoAPI, s3c S3API, table, bucket string) *AWSBackend {
	return &AWSBackend{dynamo: dynamo, s3: s3c, table: table, bucket: bucket, now: time.Now}
}

func snapshotKey(campaignID string) string { return "campaign#" + campaignID }

func (b *AWSBackend) SaveSnapshot(ctx context.Context, s *Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	item := snapshotItem{
		PK:        snapshotKey(s.CampaignID),
		SK:        s.ArchivedAt.UTC().Format(time.RFC3339Nano),
		Data:      string(data),
		Timestamp: b.now().UTC().Format(time.RFC3339),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}
	if _, err := b.dynamo.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return nil
}

func (b *AWSBackend) LoadSnapshot(ctx context.Context, campaignID string) (*Snapshot, error) {
	out, err := b.dynamo.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(b.table),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: snapshotKey(campaignID)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("querying DynamoDB: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, ErrNotFound
	}
	var item snapshotItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return nil, fmt.Errorf("unmarshaling item: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal([]byte(item.Data), &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &s, nil
}

func (b *AWSBackend) ExportActivity(ctx context.Context, campaignID string, entries []domain.Activity) error {
	if entries == nil {
		entries = []domain.Activity{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling activity: %w", err)
	}
	key := fmt.Sprintf("campaigns/%s/activity-%s.json", campaignID, b.now().UTC().Format("20060102T150405Z"))
	if _, err := b.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("putting object to S3: %w", err)
	}
	return nil
}

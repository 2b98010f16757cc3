package archive_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/newsletter/internal/archive"
	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/service/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	entries []domain.Activity
	calls   int
}

func (f *fakeLedger) List(_ context.Context, lf ledger.ListFilter) ([]domain.Activity, error) {
	f.calls++
	var match []domain.Activity
	for _, a := range f.entries {
		if a.CampaignID != nil && *a.CampaignID == lf.CampaignID {
			match = append(match, a)
		}
	}
	if lf.Offset >= len(match) {
		return nil, nil
	}
	match = match[lf.Offset:]
	if lf.Limit > 0 && lf.Limit < len(match) {
		match = match[:lf.Limit]
	}
	return match, nil
}

func ledgerWith(campaignID string, n int) *fakeLedger {
	f := &fakeLedger{}
	for i := 0; i < n; i++ {
		cid := campaignID
		f.entries = append(f.entries, domain.Activity{
			ID:           fmt.Sprintf("a-%d", i),
			SubscriberID: fmt.Sprintf("s-%d", i),
			CampaignID:   &cid,
			Type:         domain.ActivityEmailSent,
		})
	}
	return f
}

func sentCampaign() *domain.Campaign {
	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	return &domain.Campaign{
		ID:      "c-1",
		Name:    "April",
		Subject: "News",
		Status:  domain.CampaignSent,
		SentAt:  &at,
		Counters: domain.Counters{
			Recipients: 4, Sent: 4, Opened: 2,
		},
	}
}

func TestLocalArchiveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	a := archive.NewArchiver(archive.NewLocalBackend(dir), ledgerWith("c-1", 4))

	require.NoError(t, a.ArchiveCampaign(context.Background(), sentCampaign()))

	snap, err := a.Snapshot(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "April", snap.Name)
	assert.Equal(t, 4, snap.Entries)
	assert.Equal(t, 50.0, snap.Stats.OpenRate)

	data, err := os.ReadFile(filepath.Join(dir, "campaigns", "c-1", "activity.json"))
	require.NoError(t, err)
	var entries []domain.Activity
	require.NoError(t, json.Unmarshal(data, &entries))
	assert.Len(t, entries, 4)
}

func TestLocalSnapshotMissing(t *testing.T) {
	b := archive.NewLocalBackend(t.TempDir())
	_, err := b.LoadSnapshot(context.Background(), "nope")
	assert.True(t, errors.Is(err, archive.ErrNotFound))
}

func TestLocalExportEmptyLedger(t *testing.T) {
	dir := t.TempDir()
	a := archive.NewArchiver(archive.NewLocalBackend(dir), &fakeLedger{})
	require.NoError(t, a.ArchiveCampaign(context.Background(), sentCampaign()))

	data, err := os.ReadFile(filepath.Join(dir, "campaigns", "c-1", "activity.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(data)))
}

func TestArchiverPagesThroughLedger(t *testing.T) {
	src := ledgerWith("c-1", 1200)
	a := archive.NewArchiver(archive.NewLocalBackend(t.TempDir()), src)
	require.NoError(t, a.ArchiveCampaign(context.Background(), sentCampaign()))

	snap, err := a.Snapshot(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, 1200, snap.Entries)
	assert.Equal(t, 3, src.calls)
}

type failingBackend struct{ archive.Backend }

func (failingBackend) ExportActivity(context.Context, string, []domain.Activity) error {
	return errors.New("disk full")
}

func TestArchiveSkipsSnapshotWhenExportFails(t *testing.T) {
	dir := t.TempDir()
	a := archive.NewArchiver(failingBackend{archive.NewLocalBackend(dir)}, ledgerWith("c-1", 1))

	err := a.ArchiveCampaign(context.Background(), sentCampaign())
	require.Error(t, err)

	_, err = archive.NewLocalBackend(dir).LoadSnapshot(context.Background(), "c-1")
	assert.True(t, errors.Is(err, archive.ErrNotFound))
}

type fakeDynamo struct {
	mu    sync.Mutex
	items []map[string]types.AttributeValue
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
	var newest map[string]types.AttributeValue
	var newestSK string
	for _, item := range f.items {
		if item["PK"].(*types.AttributeValueMemberS).Value != pk {
			continue
		}
		sk := item["SK"].(*types.AttributeValueMemberS).Value
		if newest == nil || sk > newestSK {
			newest, newestSK = item, sk
		}
	}
	out := &dynamodb.QueryOutput{}
	if newest != nil {
		out.Items = []map[string]types.AttributeValue{newest}
	}
	return out, nil
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[*in.Bucket+"/"+*in.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func TestAWSBackend(t *testing.T) {
	dyn := &fakeDynamo{}
	s3c := &fakeS3{}
	a := archive.NewArchiver(archive.NewAWSBackendWithClients(dyn, s3c, "newsletter-archive", "archive-bucket"), ledgerWith("c-1", 2))

	require.NoError(t, a.ArchiveCampaign(context.Background(), sentCampaign()))

	require.Len(t, dyn.items, 1)
	var item struct {
		PK string `dynamodbav:"PK"`
	}
	require.NoError(t, attributevalue.UnmarshalMap(dyn.items[0], &item))
	assert.Equal(t, "campaign#c-1", item.PK)

	require.Len(t, s3c.objects, 1)
	for key, body := range s3c.objects {
		assert.True(t, strings.HasPrefix(key, "archive-bucket/campaigns/c-1/activity-"), key)
		var entries []domain.Activity
		require.NoError(t, json.Unmarshal(body, &entries))
		assert.Len(t, entries, 2)
	}

	snap, err := a.Snapshot(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Entries)

	_, err = a.Snapshot(context.Background(), "other")
	assert.True(t, errors.Is(err, archive.ErrNotFound))
}

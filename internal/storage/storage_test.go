package storage

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/referral-tracker/internal/config"
	"github.com/ignite/referral-tracker/internal/domain"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func snapshot(offset time.Duration, total int) domain.StatsSnapshot {
	return domain.StatsSnapshot{
		Stats:   domain.Stats{TotalInvited: total, InvitationsSentCount: total, ConversionRate: 0},
		TakenAt: base.Add(offset),
	}
}

func TestNew_Disabled(t *testing.T) {
	a, err := New(context.Background(), config.SnapshotConfig{})
	require.NoError(t, err)
	assert.Nil(t, a)

	_, err = New(context.Background(), config.SnapshotConfig{Backend: "ftp"})
	assert.Error(t, err)
}

func TestNew_LocalBackend(t *testing.T) {
	a, err := New(context.Background(), config.SnapshotConfig{Backend: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalArchive{}, a)
}

func TestNew_DynamoRetention(t *testing.T) {
	// Keep the SDK away from any real profile on the machine.
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")

	a, err := New(context.Background(), config.SnapshotConfig{
		Backend:       "dynamodb",
		DynamoDBTable: "referral-analytics",
		Region:        "us-east-1",
		RetentionDays: 7,
	})
	require.NoError(t, err)
	dyn, ok := a.(*DynamoArchive)
	require.True(t, ok, "expected *DynamoArchive, got %T", a)
	assert.Equal(t, "referral-analytics", dyn.tableName)
	assert.Equal(t, 7*24*time.Hour, dyn.Retention)

	_, err = New(context.Background(), config.SnapshotConfig{Backend: "dynamodb"})
	assert.Error(t, err, "table name is required")
}

func TestLocalArchive(t *testing.T) {
	a, err := NewLocalArchive(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key, err := a.Save(ctx, snapshot(0, 1))
	require.NoError(t, err)
	assert.Equal(t, "analytics/20240501T120000.000000Z.json", key)
	_, err = a.Save(ctx, snapshot(time.Hour, 2))
	require.NoError(t, err)
	_, err = a.Save(ctx, snapshot(2*time.Hour, 3))
	require.NoError(t, err)

	got, err := a.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].TotalInvited)
	assert.Equal(t, 2, got[1].TotalInvited)
	assert.True(t, got[0].TakenAt.Equal(base.Add(2*time.Hour)))
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.objects[aws.ToString(in.Key)]))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for k := range f.objects {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestS3Archive(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	a := newS3Archive(fake, "bucket", "/reports/")
	ctx := context.Background()

	key, err := a.Save(ctx, snapshot(0, 1))
	require.NoError(t, err)
	assert.Equal(t, "reports/2024/05/01/20240501T120000.000000Z.json", key)
	_, err = a.Save(ctx, snapshot(24*time.Hour, 5))
	require.NoError(t, err)

	got, err := a.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 5, got[0].TotalInvited)
}

type fakeDynamo struct {
	items []map[string]types.AttributeValue
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	sk := func(i int) string { return f.items[i]["SK"].(*types.AttributeValueMemberS).Value }
	sort.Slice(f.items, func(i, j int) bool { return sk(i) > sk(j) })
	items := f.items
	if in.Limit != nil && int(*in.Limit) < len(items) {
		items = items[:*in.Limit]
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func TestDynamoArchive(t *testing.T) {
	fake := &fakeDynamo{}
	a := &DynamoArchive{client: fake, tableName: "snapshots", Retention: 24 * time.Hour}
	ctx := context.Background()

	key, err := a.Save(ctx, snapshot(0, 1))
	require.NoError(t, err)
	assert.Equal(t, "ANALYTICS#snapshot/20240501T120000.000000Z", key)
	_, err = a.Save(ctx, snapshot(time.Minute, 7))
	require.NoError(t, err)

	ttl := fake.items[0]["TTL"].(*types.AttributeValueMemberN).Value
	assert.Equal(t, "1714651200", ttl)

	got, err := a.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].TotalInvited)
}

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/referral-tracker/internal/domain"
)

func loadAWSConfig(ctx context.Context, region, profile string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// S3
// =============================================================================

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Archive stores each snapshot as a JSON object under
// <prefix>/YYYY/MM/DD/<timestamp>.json.
type S3Archive struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Archive creates an S3-backed archive.
func NewS3Archive(ctx context.Context, bucket, prefix, region, profile string) (*S3Archive, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 archive: bucket is required")
	}
	cfg, err := loadAWSConfig(ctx, region, profile)
	if err != nil {
		return nil, err
	}
	return newS3Archive(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func newS3Archive(client s3API, bucket, prefix string) *S3Archive {
	if prefix == "" {
		prefix = "analytics"
	}
	return &S3Archive{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (a *S3Archive) key(t time.Time) string {
	t = t.UTC()
	return path.Join(a.prefix, t.Format("2006/01/02"), t.Format(keyTimeFormat)+".json")
}

func (a *S3Archive) Save(ctx context.Context, snap domain.StatsSnapshot) (string, error) {
	jsonData, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling snapshot: %w", err)
	}

	key := a.key(snap.TakenAt)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(jsonData),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("putting object to S3: %w", err)
	}
	return key, nil
}

func (a *S3Archive) Recent(ctx context.Context, limit int) ([]domain.StatsSnapshot, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.prefix + "/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing S3 snapshots: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]domain.StatsSnapshot, 0, len(keys))
	for _, key := range keys {
		obj, err := a.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("getting S3 snapshot %s: %w", key, err)
		}
		var snap domain.StatsSnapshot
		err = json.NewDecoder(obj.Body).Decode(&snap)
		obj.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding S3 snapshot %s: %w", key, err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// =============================================================================
// DynamoDB
// =============================================================================

const snapshotPK = "ANALYTICS#snapshot"

type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoDBItem is the stored shape of one snapshot.
type DynamoDBItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Data      string `dynamodbav:"Data"`
	Timestamp string `dynamodbav:"Timestamp"`
	TTL       int64  `dynamodbav:"TTL,omitempty"`
}

// DynamoArchive stores snapshots as items in a single-table layout keyed by
// PK/SK, with SK the snapshot time.
type DynamoArchive struct {
	client    dynamoAPI
	tableName string
	// Retention sets the item TTL. Zero keeps items forever.
	Retention time.Duration
}

// NewDynamoArchive creates a DynamoDB-backed archive.
func NewDynamoArchive(ctx context.Context, tableName, region, profile string) (*DynamoArchive, error) {
	if tableName == "" {
		return nil, fmt.Errorf("dynamodb archive: table name is required")
	}
	cfg, err := loadAWSConfig(ctx, region, profile)
	if err != nil {
		return nil, err
	}
	return &DynamoArchive{client: dynamodb.NewFromConfig(cfg), tableName: tableName}, nil
}

func (a *DynamoArchive) Save(ctx context.Context, snap domain.StatsSnapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshaling snapshot: %w", err)
	}

	item := DynamoDBItem{
		PK:        snapshotPK,
		SK:        snap.TakenAt.UTC().Format(keyTimeFormat),
		Data:      string(data),
		Timestamp: snap.TakenAt.UTC().Format(time.RFC3339),
	}
	if a.Retention > 0 {
		item.TTL = snap.TakenAt.Add(a.Retention).Unix()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return "", fmt.Errorf("marshaling item: %w", err)
	}
	_, err = a.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.tableName),
		Item:      av,
	})
	if err != nil {
		return "", fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return item.PK + "/" + item.SK, nil
}

func (a *DynamoArchive) Recent(ctx context.Context, limit int) ([]domain.StatsSnapshot, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(a.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: snapshotPK},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	result, err := a.client.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("querying DynamoDB: %w", err)
	}

	out := make([]domain.StatsSnapshot, 0, len(result.Items))
	for _, item := range result.Items {
		var dbItem DynamoDBItem
		if err := attributevalue.UnmarshalMap(item, &dbItem); err != nil {
			return nil, fmt.Errorf("unmarshaling item: %w", err)
		}
		var snap domain.StatsSnapshot
		if err := json.Unmarshal([]byte(dbItem.Data), &snap); err != nil {
			return nil, fmt.Errorf("decoding snapshot %s: %w", dbItem.SK, err)
		}
		out = append(out, snap)
	}
	return out, nil
}

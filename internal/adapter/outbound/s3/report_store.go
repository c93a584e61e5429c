package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/leobar37/gymspace-sub006/internal/model"
	"github.com/leobar37/gymspace-sub006/internal/port/outbound"
)

// ObjectAPI is the subset of the S3 client used by the report store.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// reportStore implements outbound.ReportStorePort on S3-compatible storage.
type reportStore struct {
	client ObjectAPI
	bucket string
	prefix string
}

// NewReportStore creates a report store writing JSON objects under prefix.
func NewReportStore(client ObjectAPI, bucket, prefix string) outbound.ReportStorePort {
	return &reportStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// ReportKey returns the object key of a report:
// <prefix>/<currency>/<granularity>/<start>_<end>/<generated>.json
func ReportKey(prefix string, report *model.AnalyticsReport) string {
	const day = "2006-01-02"
	return path.Join(
		prefix,
		strings.ToLower(report.Currency),
		string(report.Granularity),
		report.Period.Start.UTC().Format(day)+"_"+report.Period.End.UTC().Format(day),
		report.GeneratedAt.UTC().Format("20060102T150405Z")+".json",
	)
}

func (s *reportStore) Save(ctx context.Context, report *model.AnalyticsReport) (string, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	key := ReportKey(s.prefix, report)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}

// Compile-time check
var (
	_ outbound.ReportStorePort = (*reportStore)(nil)
	_ ObjectAPI                = (*s3.Client)(nil)
)

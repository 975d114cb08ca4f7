// utils/archive.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var archiveClient *s3.Client
var archiveBucket string

// InitArchiveStore configures the S3-compatible object store used for audit
// archive retention.
func InitArchiveStore() error {
	endpoint := os.Getenv("ARCHIVE_ENDPOINT")
	accessKeyID := os.Getenv("ARCHIVE_ACCESS_KEY_ID")
	accessKeySecret := os.Getenv("ARCHIVE_ACCESS_KEY_SECRET")
	archiveBucket = os.Getenv("ARCHIVE_BUCKET_NAME")
	region := os.Getenv("ARCHIVE_REGION")
	if region == "" {
		region = "auto"
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{URL: endpoint}, nil
			}),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to load archive store config: %w", err)
	}

	archiveClient = s3.NewFromConfig(cfg)
	return nil
}

// UploadAuditArchive uploads one audit batch and returns its object URL. The
// caller picks a deterministic key so re-runs overwrite rather than
// duplicate.
func UploadAuditArchive(key string, data []byte) (string, error) {
	if archiveClient == nil {
		return "", fmt.Errorf("archive store not initialized")
	}
	_, err := archiveClient.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket:      aws.String(archiveBucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload audit archive: %w", err)
	}
	return fmt.Sprintf("%s/%s", archiveBucket, key), nil
}

package archive

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"cowsay-gateway/internal/cache"
)

// ObjectAPI is the subset of the S3 client the archiver uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type Config struct {
	Endpoint    string
	Region      string
	Bucket      string
	AccessKeyID string
	SecretKey   string
	Prefix      string
}

// Archiver stores rendered output in an S3-compatible bucket.
type Archiver struct {
	client ObjectAPI
	bucket string
	prefix string
}

func NewArchiver(config Config) *Archiver {
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	awsConfig := aws.Config{
		Region:      config.Region,
		Credentials: credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretKey, ""),
	}

	// S3-compatible services (R2, MinIO) need a custom endpoint and path-style addressing
	if config.Endpoint != "" {
		awsConfig.BaseEndpoint = aws.String(config.Endpoint)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.UsePathStyle = config.Endpoint != ""
	})

	return newArchiver(client, config)
}

func newArchiver(client ObjectAPI, config Config) *Archiver {
	prefix := config.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Archiver{
		client: client,
		bucket: config.Bucket,
		prefix: prefix,
	}
}

// Key is the object key a rendering of text is stored under.
func (a *Archiver) Key(text string) string {
	return a.prefix + "renders/" + cache.Key(text) + ".txt"
}

// Store uploads output and returns its object key.
func (a *Archiver) Store(ctx context.Context, text, output string) (string, error) {
	key := a.Key(text)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(output),
		ContentType: aws.String("text/plain; charset=utf-8"),
		Metadata: map[string]string{
			"text-length": strconv.Itoa(utf8.RuneCountInString(text)),
		},
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to archive %s: %v", key, err)
	}

	return key, nil
}

// CheckHealth verifies the bucket is reachable with the configured credentials.
func (a *Archiver) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		return fmt.Errorf("archive bucket %s unreachable: %v", a.bucket, err)
	}
	return nil
}

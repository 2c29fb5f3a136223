package journal

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/ulid/v2"

	"github.com/vango-dev/vtree/pkg/protocol"
)

// ContentType is the media type of a stored journal.
const ContentType = "application/vnd.vtree.journal"

// PutObjectAPI is the part of *s3.Client the S3 sink uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink buffers each session's journal in memory and uploads it as one
// object when the session closes. Keys are
// <prefix><session id>/<ulid>.vtj, so a resumed session that closes twice
// gets two objects that sort by upload time.
type S3Sink struct {
	buffers

	client PutObjectAPI
	bucket string
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

var _ Sink = (*S3Sink)(nil)

// NewS3Sink returns a sink uploading to bucket under prefix.
func NewS3Sink(client PutObjectAPI, bucket, prefix string, logger *slog.Logger) *S3Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Sink{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}
}

// Append buffers a frame.
func (s *S3Sink) Append(_ context.Context, sessionID string, f *protocol.Frame) error {
	return s.append(sessionID, f)
}

// Close uploads the session's journal. A session that never appended
// anything uploads nothing.
func (s *S3Sink) Close(ctx context.Context, sessionID string) error {
	data := s.take(sessionID)
	if data == nil {
		return nil
	}

	now := s.now()
	key := s.prefix + sessionID + "/" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String() + ".vtj"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ContentType),
		Metadata: map[string]string{
			"session-id": sessionID,
			"closed-at":  now.UTC().Format(time.RFC3339),
			"size":       strconv.Itoa(len(data)),
		},
	})
	if err != nil {
		return fmt.Errorf("journal: upload %s: %w", key, err)
	}
	s.logger.Debug("journal uploaded", "session_id", sessionID, "key", key, "bytes", len(data))
	return nil
}

// S3Options configures NewS3Client.
type S3Options struct {
	Region          string
	Endpoint        string // Optional, for S3-compatible stores
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	UsePathStyle    bool
}

// NewS3Client builds an S3 client with static credentials. Leave the keys
// empty to send unsigned requests, which only S3-compatible stores accept.
func NewS3Client(opts S3Options) *s3.Client {
	o := s3.Options{
		Region:       opts.Region,
		UsePathStyle: opts.UsePathStyle,
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(opts.Endpoint)
	}
	if opts.AccessKeyID != "" {
		creds := aws.Credentials{
			AccessKeyID:     opts.AccessKeyID,
			SecretAccessKey: opts.SecretAccessKey,
			SessionToken:    opts.SessionToken,
			Source:          "vtree",
		}
		o.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) { return creds, nil },
		))
	}
	return s3.New(o)
}

// Package s3 implements remote.Transport over an S3-compatible bucket.
//
// A namespace is a key prefix. Each created entry lives at
// <namespace>/<uuid>/<name> and that full key is its identifier, so a listing
// by prefix recovers both the id and the logical name.
package s3

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/logger"
	"github.com/teranos/savesync/remote"
)

// S3API is the subset of *s3.Client the transport uses
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Options configures NewClient
type Options struct {
	Region         string
	Endpoint       string // custom endpoint for MinIO-compatible stores
	ForcePathStyle bool
}

// NewClient builds an *s3.Client from the default credential chain
func NewClient(ctx context.Context, opts Options) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	if opts.Region != "" {
		cfg.Region = opts.Region
	} else if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.ForcePathStyle
	}), nil
}

// Transport stores entries as objects in one bucket
type Transport struct {
	client S3API
	bucket string
	logger *zap.SugaredLogger
}

var _ remote.Transport = (*Transport)(nil)

// New creates a transport over bucket
func New(client S3API, bucket string, log *zap.SugaredLogger) *Transport {
	return &Transport{client: client, bucket: bucket, logger: log}
}

// List returns objects under namespace/ whose final key segment equals name
func (t *Transport) List(ctx context.Context, name, namespace string) ([]remote.File, error) {
	var out []remote.File
	var token *string

	for {
		resp, err := t.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(t.bucket),
			Prefix:            aws.String(namespace + "/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, t.mapError(err, "list", namespace+"/")
		}

		for _, obj := range resp.Contents {
			key := aws.ToString(obj.Key)
			if path.Base(key) == name {
				out = append(out, remote.File{ID: key, Name: name})
			}
		}

		if !aws.ToBool(resp.IsTruncated) || resp.NextContinuationToken == nil {
			break
		}
		token = resp.NextContinuationToken
	}

	logger.FromContext(ctx, t.logger).Debugw("S3 list",
		logger.FieldFilename, name,
		logger.FieldNamespace, namespace,
		logger.FieldCount, len(out),
	)
	return out, nil
}

// Create puts an empty object at a fresh key and returns the key
func (t *Transport) Create(ctx context.Context, name, namespace string) (string, error) {
	key := namespace + "/" + uuid.NewString() + "/" + name

	if err := t.put(ctx, key, ""); err != nil {
		return "", t.mapError(err, "create", key)
	}

	logger.FromContext(ctx, t.logger).Debugw("S3 object created",
		logger.FieldFilename, name,
		logger.FieldHandle, key,
	)
	return key, nil
}

// Get returns the object body
func (t *Transport) Get(ctx context.Context, id string) (string, error) {
	resp, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return "", t.mapError(err, "get", id)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read s3://%s/%s", t.bucket, id)
	}
	return string(data), nil
}

// Patch overwrites the object body
func (t *Transport) Patch(ctx context.Context, id, content string) error {
	if err := t.put(ctx, id, content); err != nil {
		return t.mapError(err, "patch", id)
	}
	return nil
}

func (t *Transport) put(ctx context.Context, key, content string) error {
	_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(key),
		Body:          strings.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String("application/json"),
	})
	return err
}

// mapError marks S3 failures with the errors sentinels
func (t *Transport) mapError(err error, op, key string) error {
	wrapped := errors.Wrapf(err, "s3 %s s3://%s/%s", op, t.bucket, key)

	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Mark(wrapped, errors.ErrTimeout)
	}

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return errors.Mark(wrapped, errors.ErrNotFound)
	}
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return errors.WithHint(errors.Mark(wrapped, errors.ErrNotFound), "check remote.s3.bucket")
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return errors.Mark(wrapped, errors.ErrUnauthorized)
		case "SlowDown", "ServiceUnavailable", "InternalError", "RequestTimeout":
			return errors.Mark(wrapped, errors.ErrServiceUnavailable)
		case "NotFound":
			return errors.Mark(wrapped, errors.ErrNotFound)
		}
	}
	return wrapped
}

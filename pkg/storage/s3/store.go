// Package s3 stores session profiles as JSON documents in an S3 (or
// S3-compatible) bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/entrhq/buildscan/pkg/config"
	"github.com/entrhq/buildscan/pkg/profile"
	"github.com/entrhq/buildscan/pkg/storage"
)

const contentType = "application/json"

// ObjectAPI is the subset of the S3 client used by the store.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// NewClient builds an S3 client from the default AWS credential chain and cfg.
func NewClient(ctx context.Context, cfg config.S3Config) (*awss3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	} else if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}

	var opts []func(*awss3.Options)
	if cfg.ForcePathStyle {
		opts = append(opts, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		opts = append(opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	return awss3.NewFromConfig(awsCfg, opts...), nil
}

// Store writes one session profile to a single object, overwriting it on every
// checkpoint.
type Store struct {
	client  ObjectAPI
	bucket  string
	key     string
	session *profile.Session

	mu          sync.Mutex
	opened      bool
	closed      bool
	checkpoints int
}

// NewStore creates a store writing session to bucket under prefix.
func NewStore(client ObjectAPI, bucket, prefix string, session *profile.Session) *Store {
	return &Store{
		client:  client,
		bucket:  bucket,
		key:     ObjectKey(prefix, session),
		session: session,
	}
}

// Factory returns a storage.Factory creating stores that share client.
func Factory(client ObjectAPI, bucket, prefix string) storage.Factory {
	return func(session *profile.Session) (storage.Storage, error) {
		if bucket == "" {
			return nil, errors.New("s3 bucket is required")
		}
		return NewStore(client, bucket, prefix, session), nil
	}
}

// ObjectKey returns the key of a session's document below prefix.
func ObjectKey(prefix string, session *profile.Session) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return storage.DocumentKey(session)
	}
	return path.Join(prefix, storage.DocumentKey(session))
}

// Key returns the object key the session is written to.
func (s *Store) Key() string {
	return s.key
}

func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	if err := s.put(ctx, false); err != nil {
		return err
	}
	s.opened = true
	return nil
}

func (s *Store) Checkpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	if !s.opened {
		return storage.ErrNotOpen
	}

	s.checkpoints++
	return s.put(ctx, false)
}

func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if !s.opened {
		return storage.ErrNotOpen
	}

	s.closed = true
	return s.put(ctx, true)
}

func (s *Store) put(ctx context.Context, final bool) error {
	data, err := storage.MarshalDocument(s.session, s.checkpoints, final)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

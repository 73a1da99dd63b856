// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
)

// S3Config locates an S3-compatible bucket (AWS S3 or MinIO).
type S3Config struct {
	Bucket string
	Prefix string
	// Region defaults to us-east-1.
	Region string
	// Endpoint overrides the service endpoint, e.g. for MinIO.
	Endpoint  string
	PathStyle bool
	// Options are applied to the loaded AWS config, e.g. static credentials.
	Options []func(*config.LoadOptions) error
	// ClientOptions are applied to the S3 client, e.g. a custom HTTP client.
	ClientOptions []func(*s3.Options)
}

// S3Store stores assets in an S3 bucket under an optional prefix.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store creates an S3Store, taking credentials from the default chain
// unless cfg.Options says otherwise.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := append([]func(*config.LoadOptions) error{config.WithRegion(region)}, cfg.Options...)
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		for _, opt := range cfg.ClientOptions {
			opt(o)
		}
	})
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (s *S3Store) key(a Asset) string {
	return path.Join(s.prefix, assetPath(a))
}

// Reader returns a reader for the given asset.
func (s *S3Store) Reader(ctx context.Context, a Asset) (io.ReadCloser, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	key := s.key(a)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		var nsk *types.NoSuchKey
		var re *awshttp.ResponseError
		if errors.As(err, &nsk) || (errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound) {
			err = stderrors.Join(err, ErrNotFound)
		}
		return nil, errors.Wrapf(err, "getting s3 object %s", key)
	}
	return out.Body, nil
}

// s3Writer buffers an object and uploads it on Close.
type s3Writer struct {
	bytes.Buffer
	ctx    context.Context
	store  *S3Store
	key    string
	ctype  string
	closed bool
}

func (w *s3Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := w.store.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:      &w.store.bucket,
		Key:         &w.key,
		Body:        bytes.NewReader(w.Bytes()),
		ContentType: &w.ctype,
	})
	return errors.Wrapf(err, "putting s3 object %s", w.key)
}

// Writer returns a writer for the given asset. The object is uploaded when
// the writer is closed.
func (s *S3Store) Writer(ctx context.Context, a Asset) (io.WriteCloser, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	ctype := "application/json"
	if a.Kind == ImageKind {
		ctype = "image/svg+xml"
	}
	return &s3Writer{ctx: ctx, store: s, key: s.key(a), ctype: ctype}, nil
}

// List returns every asset under the store's prefix.
func (s *S3Store) List(ctx context.Context) ([]Asset, error) {
	prefix := ""
	if s.prefix != "" {
		prefix = s.prefix + "/"
	}
	var assets []Asset
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &prefix})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "listing s3 objects")
		}
		for _, obj := range out.Contents {
			if a, ok := parseAssetPath(strings.TrimPrefix(aws.ToString(obj.Key), prefix)); ok {
				assets = append(assets, a)
			}
		}
	}
	return assets, nil
}

var _ ListableStore = &S3Store{}

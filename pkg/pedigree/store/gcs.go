// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	stderrors "errors"
	"io"
	"net/url"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore stores assets in a GCS bucket under an optional prefix.
type GCSStore struct {
	gcsClient *gcs.Client
	bucket    string
	prefix    string
}

// NewGCSStore creates a new GCSStore for "bucket/prefix".
func NewGCSStore(ctx context.Context, location string, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create GCS client")
	}
	s := &GCSStore{gcsClient: client}
	s.bucket, s.prefix, _ = strings.Cut(strings.TrimPrefix(location, "gs://"), "/")
	s.prefix = strings.Trim(s.prefix, "/")
	return s, nil
}

// URL returns the gs:// location of an asset.
func (s *GCSStore) URL(a Asset) *url.URL {
	return &url.URL{Scheme: "gs", Host: s.bucket, Path: "/" + s.resourcePath(a)}
}

func (s *GCSStore) resourcePath(a Asset) string {
	return path.Join(s.prefix, assetPath(a))
}

// Reader returns a reader for the given asset.
func (s *GCSStore) Reader(ctx context.Context, a Asset) (io.ReadCloser, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	p := s.resourcePath(a)
	r, err := s.gcsClient.Bucket(s.bucket).Object(p).NewReader(ctx)
	if err != nil {
		if err == gcs.ErrObjectNotExist {
			err = stderrors.Join(err, ErrNotFound)
		}
		return nil, errors.Wrapf(err, "creating GCS reader for %s", p)
	}
	return r, nil
}

// Writer returns a writer for the given asset.
func (s *GCSStore) Writer(ctx context.Context, a Asset) (io.WriteCloser, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	w := s.gcsClient.Bucket(s.bucket).Object(s.resourcePath(a)).NewWriter(ctx)
	if a.Kind == ImageKind {
		w.ContentType = "image/svg+xml"
	} else {
		w.ContentType = "application/json"
	}
	return w, nil
}

// List returns every asset under the store's prefix.
func (s *GCSStore) List(ctx context.Context) ([]Asset, error) {
	q := &gcs.Query{}
	if s.prefix != "" {
		q.Prefix = s.prefix + "/"
	}
	it := s.gcsClient.Bucket(s.bucket).Objects(ctx, q)
	var assets []Asset
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "listing objects")
		}
		if a, ok := parseAssetPath(strings.TrimPrefix(attrs.Name, q.Prefix)); ok {
			assets = append(assets, a)
		}
	}
	return assets, nil
}

var _ ListableStore = &GCSStore{}

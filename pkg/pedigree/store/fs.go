// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	stderrors "errors"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pkg/errors"
)

// FilesystemStore stores assets in a billy.Filesystem as <subject>/<kind>.
type FilesystemStore struct {
	fs billy.Filesystem
}

// NewFilesystemStore creates a new FilesystemStore.
func NewFilesystemStore(fs billy.Filesystem) *FilesystemStore {
	return &FilesystemStore{fs: fs}
}

// Reader returns a reader for the given asset.
func (s *FilesystemStore) Reader(ctx context.Context, a Asset) (io.ReadCloser, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(assetPath(a))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = stderrors.Join(err, ErrNotFound)
		}
		return nil, errors.Wrapf(err, "creating reader for %v", a)
	}
	return f, nil
}

// Writer returns a writer for the given asset.
func (s *FilesystemStore) Writer(ctx context.Context, a Asset) (io.WriteCloser, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.fs.MkdirAll(a.Subject, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating directory for %v", a)
	}
	f, err := s.fs.Create(assetPath(a))
	if err != nil {
		return nil, errors.Wrapf(err, "creating writer for %v", a)
	}
	return f, nil
}

// List returns every asset in the store.
func (s *FilesystemStore) List(ctx context.Context) ([]Asset, error) {
	var assets []Asset
	err := util.Walk(s.fs, "/", func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if a, ok := parseAssetPath(filepath.ToSlash(p)); ok {
			assets = append(assets, a)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return assets, errors.Wrap(err, "walking store")
}

var _ ListableStore = &FilesystemStore{}

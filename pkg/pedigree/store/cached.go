// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// CachedStore is a pull-through cache: the backline is only read when the
// asset is missing from the frontline. Writes go to both.
type CachedStore struct {
	frontline Store
	backline  Store
}

func NewCachedStore(frontline, backline Store) *CachedStore {
	return &CachedStore{frontline: frontline, backline: backline}
}

type cachedReader struct {
	tee        io.Reader
	writeClose func() error
	readClose  func() error
}

func (cr *cachedReader) Read(p []byte) (int, error) {
	return cr.tee.Read(p)
}

func (cr *cachedReader) Close() error {
	// Drain so the frontline copy is complete.
	_, flushErr := io.ReadAll(cr.tee)
	writeErr := cr.writeClose()
	readErr := cr.readClose()
	if flushErr != nil {
		return flushErr
	}
	if writeErr != nil {
		return writeErr
	}
	return readErr
}

// Reader reads from the frontline, unless the frontline returns ErrNotFound.
func (s *CachedStore) Reader(ctx context.Context, a Asset) (io.ReadCloser, error) {
	if r, err := s.frontline.Reader(ctx, a); !errors.Is(err, ErrNotFound) {
		return r, err
	}
	br, err := s.backline.Reader(ctx, a)
	if err != nil {
		return nil, err
	}
	fw, err := s.frontline.Writer(ctx, a)
	if err != nil {
		br.Close()
		return nil, err
	}
	return &cachedReader{
		tee:        io.TeeReader(br, fw),
		writeClose: fw.Close,
		readClose:  br.Close,
	}, nil
}

type multiWriteCloser struct {
	io.Writer
	closers []io.Closer
}

func (m *multiWriteCloser) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Writer writes to both the frontline and the backline.
func (s *CachedStore) Writer(ctx context.Context, a Asset) (io.WriteCloser, error) {
	bw, err := s.backline.Writer(ctx, a)
	if err != nil {
		return nil, err
	}
	fw, err := s.frontline.Writer(ctx, a)
	if err != nil {
		bw.Close()
		return nil, err
	}
	return &multiWriteCloser{Writer: io.MultiWriter(bw, fw), closers: []io.Closer{bw, fw}}, nil
}

var _ Store = &CachedStore{}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
)

// exerciseStore runs the behaviour every ListableStore must share.
func exerciseStore(t *testing.T, s ListableStore) {
	t.Helper()
	ctx := context.Background()
	doc := DocumentKind.For("P0000001")
	img := ImageKind.For("P0000001")
	fam := DocumentKind.For("FAM0001")

	if _, err := s.Reader(ctx, doc); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Reader() on empty store = %v, want ErrNotFound", err)
	}
	if err := WriteAll(ctx, s, doc, []byte(`{"GG":[]}`)); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	if err := WriteAll(ctx, s, img, []byte("<svg/>")); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	if err := WriteAll(ctx, s, fam, []byte(`{}`)); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	// Overwrite replaces the previous contents.
	if err := WriteAll(ctx, s, doc, []byte(`{"GG":[{"id":0}]}`)); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	got, err := ReadAll(ctx, s, doc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if diff := cmp.Diff(`{"GG":[{"id":0}]}`, string(got)); diff != "" {
		t.Errorf("ReadAll() mismatch (-want +got):\n%s", diff)
	}
	assets, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []Asset{fam, doc, img}
	sortAssets := cmpopts.SortSlices(func(a, b Asset) bool { return a.String() < b.String() })
	if diff := cmp.Diff(want, assets, sortAssets); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.Writer(ctx, DocumentKind.For("../escape")); err == nil {
		t.Error("Writer() accepted a path-escaping subject")
	}
}

func TestFilesystemStore(t *testing.T) {
	exerciseStore(t, NewFilesystemStore(memfs.New()))
}

func TestSQLStore(t *testing.T) {
	s, err := OpenSQLStore(context.Background(), DialectSQLite, ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLStore() error = %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestS3Store(t *testing.T) {
	exerciseStore(t, newMockS3Store(t, "pedigrees"))
}

func TestS3StoreRequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), S3Config{}); err == nil {
		t.Error("NewS3Store() without bucket succeeded")
	}
}

func TestAssetValidate(t *testing.T) {
	for _, tc := range []struct {
		asset Asset
		ok    bool
	}{
		{DocumentKind.For("P0000001"), true},
		{ImageKind.For("FAM_01.a"), true},
		{Asset{Kind: "pedigree.txt", Subject: "P1"}, false},
		{DocumentKind.For(""), false},
		{DocumentKind.For(".."), false},
		{DocumentKind.For("a/b"), false},
	} {
		t.Run(tc.asset.String(), func(t *testing.T) {
			if err := tc.asset.Validate(); (err == nil) != tc.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

type countingStore struct {
	Store
	reads int
}

func (c *countingStore) Reader(ctx context.Context, a Asset) (io.ReadCloser, error) {
	c.reads++
	return c.Store.Reader(ctx, a)
}

func TestCachedStore(t *testing.T) {
	ctx := context.Background()
	front := NewFilesystemStore(memfs.New())
	back := &countingStore{Store: NewFilesystemStore(memfs.New())}
	a := DocumentKind.For("P1")
	if err := WriteAll(ctx, back, a, []byte("stored")); err != nil {
		t.Fatal(err)
	}
	c := NewCachedStore(front, back)
	for i := range 2 {
		got, err := ReadAll(ctx, c, a)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if string(got) != "stored" {
			t.Errorf("read %d = %q, want stored", i, got)
		}
	}
	if back.reads != 1 {
		t.Errorf("backline reads = %d, want 1", back.reads)
	}
	b := ImageKind.For("P1")
	if err := WriteAll(ctx, c, b, []byte("<svg/>")); err != nil {
		t.Fatal(err)
	}
	for name, s := range map[string]Store{"front": front, "back": back} {
		if got, err := ReadAll(ctx, s, b); err != nil || string(got) != "<svg/>" {
			t.Errorf("%s = %q, %v; want written image", name, got, err)
		}
	}
	if _, err := ReadAll(ctx, c, DocumentKind.For("P2")); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing asset error = %v, want ErrNotFound", err)
	}
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	from := NewFilesystemStore(memfs.New())
	to := NewFilesystemStore(memfs.New())
	a := DocumentKind.For("P1")
	if err := WriteAll(ctx, from, a, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := Copy(ctx, to, from, a); err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if got, _ := ReadAll(ctx, to, a); string(got) != "x" {
		t.Errorf("copied = %q, want x", got)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for _, uri := range []string{
		"file://" + filepath.Join(dir, "files"),
		"sqlite://" + filepath.Join(dir, "db", "pedigree.db"),
	} {
		t.Run(uri, func(t *testing.T) {
			s, err := Open(ctx, uri)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			a := DocumentKind.For("P1")
			if err := WriteAll(ctx, s, a, []byte("{}")); err != nil {
				t.Fatalf("WriteAll() error = %v", err)
			}
			assets, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if diff := cmp.Diff([]Asset{a}, assets); diff != "" {
				t.Errorf("List() mismatch (-want +got):\n%s", diff)
			}
		})
	}
	if _, err := Open(ctx, "ftp://host/x"); err == nil {
		t.Error("Open(ftp) succeeded")
	}
}

func ExampleKind_For() {
	fmt.Println(DocumentKind.For("P0000001"))
	// Output: P0000001/pedigree.json
}

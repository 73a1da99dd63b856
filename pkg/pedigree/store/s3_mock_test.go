// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// mockS3 is an in-memory path-style S3 endpoint covering Get, Put and ListObjectsV2.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMockS3Store(t *testing.T, bucket string) *S3Store {
	t.Helper()
	rt := &mockS3{objects: map[string][]byte{}}
	s, err := NewS3Store(context.Background(), S3Config{
		Bucket:    bucket,
		Prefix:    "pedigrees",
		Endpoint:  "http://mock.s3.local",
		PathStyle: true,
		Options: []func(*config.LoadOptions) error{
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
		},
		ClientOptions: []func(*s3.Options){
			func(o *s3.Options) { o.HTTPClient = &http.Client{Transport: rt} },
		},
	})
	if err != nil {
		t.Fatalf("NewS3Store() error = %v", err)
	}
	return s
}

func xmlResponse(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": {"application/xml"}},
	}
}

func (m *mockS3) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")
	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range m.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size></Contents>", k, len(m.objects[k]))
		}
		b.WriteString("</ListBucketResult>")
		return xmlResponse(http.StatusOK, b.String()), nil
	case req.Method == http.MethodGet:
		body, ok := m.objects[key]
		if !ok {
			return xmlResponse(http.StatusNotFound, `<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`), nil
		}
		return &http.Response{
			StatusCode:    http.StatusOK,
			Body:          io.NopCloser(bytes.NewReader(body)),
			ContentLength: int64(len(body)),
			Header:        http.Header{"Content-Length": {fmt.Sprint(len(body))}},
		}, nil
	case req.Method == http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if req.Header.Get("Content-Encoding") == "aws-chunked" {
			body = decodeChunked(body)
		}
		m.objects[key] = body
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{"ETag": {`"etag"`}}}, nil
	}
	return xmlResponse(http.StatusNotImplemented, ""), nil
}

// decodeChunked decodes a single-chunk aws-chunked payload: <hex>\r\n<body>\r\n0\r\n...
func decodeChunked(b []byte) []byte {
	parts := strings.SplitN(string(b), "\r\n", 3)
	if len(parts) < 3 {
		return b
	}
	var size int
	if _, err := fmt.Sscanf(parts[0], "%x", &size); err != nil || size > len(parts[1]) {
		return b
	}
	return []byte(parts[1][:size])
}

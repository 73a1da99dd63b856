// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package httpxtest provides a scripted httpx.BasicClient for tests.
package httpxtest

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type Call struct {
	Method   string
	URL      string
	Response *http.Response
	Error    error
	// Wait, when set, blocks the call until it is closed or the request is canceled.
	Wait <-chan struct{}
}

// Request is a request observed by MockClient, with its body read out.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

type MockClient struct {
	Calls             []Call
	URLValidator      func(expected, actual string)
	SkipURLValidation bool

	mu        sync.Mutex
	callCount int
	requests  []Request
}

func (m *MockClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	if m.callCount >= len(m.Calls) {
		m.mu.Unlock()
		panic("unexpected request")
	}
	call := m.Calls[m.callCount]
	m.callCount++
	r := Request{Method: req.Method, URL: req.URL.String(), Header: req.Header.Clone()}
	if req.Body != nil {
		r.Body, _ = io.ReadAll(req.Body)
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(r.Body))
	}
	m.requests = append(m.requests, r)
	m.mu.Unlock()

	if !m.SkipURLValidation && (m.URLValidator == nil) {
		panic("URL validation requested but not configured")
	} else if m.SkipURLValidation && (m.URLValidator != nil) {
		panic("URL validation disabled but configured")
	}
	if m.URLValidator != nil {
		if call.Method != "" {
			m.URLValidator(call.Method+" "+call.URL, req.Method+" "+req.URL.String())
		} else {
			m.URLValidator(call.URL, req.URL.String())
		}
	}
	if call.Wait != nil {
		select {
		case <-call.Wait:
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}
	return call.Response, call.Error
}

func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Requests returns the requests observed so far.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func NewURLValidator(t *testing.T) func(string, string) {
	return func(expected, actual string) {
		t.Helper()
		if diff := cmp.Diff(expected, actual); diff != "" {
			t.Errorf("URL mismatch (-want +got):\n%s", diff)
		}
	}
}

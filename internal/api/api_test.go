// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type echoRequest struct {
	Name  string `form:"name,required"`
	Count int    `form:"count"`
}

func (r echoRequest) Validate() error {
	if r.Count < 0 {
		return errors.New("negative count")
	}
	return nil
}

type echoResponse struct {
	Greeting string `json:"greeting"`
}

type echoDeps struct {
	fail error
}

func echo(_ context.Context, req echoRequest, deps *echoDeps) (*echoResponse, error) {
	if deps.fail != nil {
		return nil, deps.fail
	}
	switch req.Name {
	case "nobody":
		return nil, nil
	case "slow":
		return nil, AsStatus(codes.Unavailable, errors.New("try later"), RetryAfter(30*time.Second))
	}
	return &echoResponse{Greeting: "hello " + req.Name}, nil
}

func TestHandler(t *testing.T) {
	for _, tc := range []struct {
		name       string
		method     string
		target     string
		body       string
		deps       *echoDeps
		depsErr    error
		wantStatus int
		wantBody   string
		wantHeader http.Header
	}{
		{
			name:       "post form",
			method:     http.MethodPost,
			target:     "/echo",
			body:       "name=ann&count=2",
			wantStatus: http.StatusOK,
			wantBody:   `{"greeting":"hello ann"}` + "\n",
		},
		{
			name:       "query",
			method:     http.MethodGet,
			target:     "/echo?name=bob",
			wantStatus: http.StatusOK,
			wantBody:   `{"greeting":"hello bob"}` + "\n",
		},
		{
			name:       "missing required",
			method:     http.MethodGet,
			target:     "/echo?count=1",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid",
			method:     http.MethodGet,
			target:     "/echo?name=x&count=-1",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no content",
			method:     http.MethodGet,
			target:     "/echo?name=nobody",
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "status error",
			method:     http.MethodGet,
			target:     "/echo?name=x",
			deps:       &echoDeps{fail: AsStatus(codes.NotFound, errors.New("no such subject"))},
			wantStatus: http.StatusNotFound,
			wantBody:   "no such subject\n",
		},
		{
			name:       "retry after",
			method:     http.MethodGet,
			target:     "/echo?name=slow",
			wantStatus: http.StatusServiceUnavailable,
			wantHeader: http.Header{"Retry-After": {"30"}},
		},
		{
			name:       "plain error",
			method:     http.MethodGet,
			target:     "/echo?name=x",
			deps:       &echoDeps{fail: errors.New("disk on fire")},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "deps error",
			method:     http.MethodGet,
			target:     "/echo?name=x",
			depsErr:    errors.New("no deps"),
			wantStatus: http.StatusInternalServerError,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			deps := tc.deps
			if deps == nil {
				deps = &echoDeps{}
			}
			initDeps := func(context.Context) (*echoDeps, error) { return deps, tc.depsErr }
			req := httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body))
			if tc.method == http.MethodPost {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
			rec := httptest.NewRecorder()
			Handler(initDeps, echo).ServeHTTP(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if tc.wantBody != "" {
				if diff := cmp.Diff(tc.wantBody, rec.Body.String()); diff != "" {
					t.Errorf("body mismatch (-want +got):\n%s", diff)
				}
			}
			for k := range tc.wantHeader {
				if diff := cmp.Diff(tc.wantHeader.Get(k), rec.Header().Get(k)); diff != "" {
					t.Errorf("header %s mismatch (-want +got):\n%s", k, diff)
				}
			}
		})
	}
}

func TestStubs(t *testing.T) {
	srv := httptest.NewServer(Handler(DepsOf(&echoDeps{}), echo))
	defer srv.Close()
	u, _ := url.Parse(srv.URL)
	ctx := context.Background()

	got, err := Stub[echoRequest, echoResponse](srv.Client(), u)(ctx, echoRequest{Name: "ann"})
	if err != nil {
		t.Fatalf("Stub() error = %v", err)
	}
	if diff := cmp.Diff(&echoResponse{Greeting: "hello ann"}, got); diff != "" {
		t.Errorf("Stub() mismatch (-want +got):\n%s", diff)
	}
	got, err = GetStub[echoRequest, echoResponse](srv.Client(), u)(ctx, echoRequest{Name: "bob", Count: 1})
	if err != nil {
		t.Fatalf("GetStub() error = %v", err)
	}
	if diff := cmp.Diff(&echoResponse{Greeting: "hello bob"}, got); diff != "" {
		t.Errorf("GetStub() mismatch (-want +got):\n%s", diff)
	}
	if _, err := Stub[echoRequest, echoResponse](srv.Client(), u)(ctx, echoRequest{Name: "slow"}); status.Code(err) != codes.Unavailable {
		t.Errorf("Stub(slow) error = %v, want Unavailable", err)
	}
	if _, err := Stub[echoRequest, echoResponse](srv.Client(), u)(ctx, echoRequest{Name: "x", Count: -1}); err == nil {
		t.Error("Stub(invalid) error = nil, want validation error")
	}
}

func TestStubNotOK(t *testing.T) {
	srv := httptest.NewServer(Handler(DepsOf(&echoDeps{fail: AsStatus(codes.NotFound, errors.New("gone"))}), echo))
	defer srv.Close()
	u, _ := url.Parse(srv.URL)
	_, err := Stub[echoRequest, echoResponse](srv.Client(), u)(context.Background(), echoRequest{Name: "x"})
	if !errors.Is(err, ErrNotOK) {
		t.Fatalf("Stub() error = %v, want ErrNotOK", err)
	}
	if !strings.Contains(err.Error(), "gone") {
		t.Errorf("Stub() error = %q, want server message", err)
	}
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package api provides the request/response plumbing shared by the pedigree
// service handlers and their clients.
//
// Requests are form-encoded structs (see schema/form) and responses are JSON.
// Handlers report failures as gRPC status errors which are mapped to HTTP
// status codes on the wire.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pedigreekit/pedigree/internal/httpx"
	"github.com/pedigreekit/pedigree/pkg/pedigree/schema/form"
	"github.com/pkg/errors"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/durationpb"
)

// Message is a validated request type.
type Message interface {
	Validate() error
}

// Deps is a marker type for dependency containers.
type Deps any

type InitDeps[D Deps] func(context.Context) (D, error)
type HandlerFunc[I Message, O any, D Deps] func(context.Context, I, D) (*O, error)
type StubFunc[I Message, O any] func(context.Context, I) (*O, error)

// NoDeps is a zero-value dependency container.
type NoDeps struct{}

// NoDepsInit is an InitDeps that returns NoDeps.
func NoDepsInit(context.Context) (*NoDeps, error) { return &NoDeps{}, nil }

// DepsOf returns an InitDeps that always provides the same dependencies.
func DepsOf[D Deps](d D) InitDeps[D] {
	return func(context.Context) (D, error) { return d, nil }
}

var (
	ErrNotOK       = errors.New("non-OK response")
	ErrExhausted   = status.New(codes.ResourceExhausted, "resource exhausted").Err()
	ErrUnavailable = status.New(codes.Unavailable, "service unavailable").Err()
)

// Stub returns a client for a handler that accepts form-encoded POSTs.
func Stub[I Message, O any](client httpx.BasicClient, u *url.URL) StubFunc[I, O] {
	return stub[I, O](client, u, http.MethodPost)
}

// GetStub returns a client for a handler that reads its request from the query string.
func GetStub[I Message, O any](client httpx.BasicClient, u *url.URL) StubFunc[I, O] {
	return stub[I, O](client, u, http.MethodGet)
}

func stub[I Message, O any](client httpx.BasicClient, u *url.URL, method string) StubFunc[I, O] {
	return func(ctx context.Context, i I) (*O, error) {
		if err := i.Validate(); err != nil {
			return nil, errors.Wrap(err, "validating request")
		}
		values, err := form.Marshal(i)
		if err != nil {
			return nil, errors.Wrap(err, "serializing request")
		}
		resp, err := Do(ctx, client, method, u, values)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if err := CheckStatus(resp); err != nil {
			return nil, err
		}
		var o O
		if err := json.NewDecoder(resp.Body).Decode(&o); err != nil {
			return nil, errors.Wrap(err, "decoding response")
		}
		return &o, nil
	}
}

// Do sends form values to u, in the query string for GET and in the body otherwise.
func Do(ctx context.Context, client httpx.BasicClient, method string, u *url.URL, values url.Values) (*http.Response, error) {
	var req *http.Request
	var err error
	if method == http.MethodGet {
		withQuery := *u
		withQuery.RawQuery = values.Encode()
		req, err = http.NewRequestWithContext(ctx, method, withQuery.String(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "building http request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "making http request")
	}
	return resp, nil
}

// CheckStatus converts a non-OK response into an error, consuming its body.
func CheckStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent: // Success: Skip error generation
		return nil
	case http.StatusServiceUnavailable:
		if retryAfterStr := resp.Header.Get("Retry-After"); retryAfterStr != "" {
			if seconds, err := strconv.Atoi(retryAfterStr); err == nil && seconds > 0 {
				d := time.Duration(seconds) * time.Second
				return AsStatus(codes.Unavailable, ErrUnavailable, RetryAfter(d))
			}
		}
		return ErrUnavailable
	case http.StatusTooManyRequests:
		return ErrExhausted
	default:
		b, _ := io.ReadAll(resp.Body)
		return errors.Wrap(errors.Wrap(ErrNotOK, resp.Status), strings.TrimSpace(string(b)))
	}
}

// AsStatus creates a gRPC status with the given code and error message.
// Optionally accepts status details to attach to the error.
func AsStatus(code codes.Code, err error, details ...proto.Message) error {
	s := status.New(code, err.Error())
	if len(details) == 0 {
		return s.Err()
	}
	p := s.Proto()
	for _, detail := range details {
		m, err := anypb.New(detail)
		if err != nil {
			log.Printf("Skipping detail which failed to convert: detail=%v,err=%v", detail, err)
			continue
		}
		p.Details = append(p.Details, m)
	}
	return status.FromProto(p).Err()
}

// RetryAfter is a convenience function for creating a detail proto for retry information.
// NOTE: For HTTP, should be limited to use with Unavailable and ResourceExhausted codes.
func RetryAfter(after time.Duration) proto.Message {
	return &errdetails.RetryInfo{
		RetryDelay: durationpb.New(after),
	}
}

var grpcToHTTP = map[codes.Code]int{
	codes.OK:                 http.StatusOK,
	codes.Canceled:           499, // Client Closed Request
	codes.Unknown:            http.StatusInternalServerError,
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.DeadlineExceeded:   http.StatusGatewayTimeout,
	codes.NotFound:           http.StatusNotFound,
	codes.AlreadyExists:      http.StatusConflict,
	codes.PermissionDenied:   http.StatusForbidden,
	codes.ResourceExhausted:  http.StatusTooManyRequests,
	codes.FailedPrecondition: http.StatusBadRequest,
	codes.Aborted:            http.StatusConflict,
	codes.OutOfRange:         http.StatusBadRequest,
	codes.Unimplemented:      http.StatusNotImplemented,
	codes.Internal:           http.StatusInternalServerError,
	codes.Unavailable:        http.StatusServiceUnavailable,
	codes.DataLoss:           http.StatusInternalServerError,
	codes.Unauthenticated:    http.StatusUnauthorized,
}

// HTTPStatus returns the HTTP status code a gRPC code is served with.
func HTTPStatus(c codes.Code) int {
	if s, ok := grpcToHTTP[c]; ok {
		return s
	}
	log.Printf("unknown error code: %s", c)
	return http.StatusInternalServerError
}

// Handler adapts a HandlerFunc to net/http. A nil output is served as 204 No Content.
func Handler[I Message, O any, D Deps](initDeps InitDeps[D], handler HandlerFunc[I, O, D]) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := r.ParseForm(); err != nil {
			log.Println(errors.Wrap(err, "parsing form"))
			http.Error(rw, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		var req I
		if err := form.Unmarshal(r.Form, &req); err != nil {
			log.Println(errors.Wrap(err, "parsing request"))
			http.Error(rw, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		log.Printf("received %s request: %s", r.Method, summarize(req))
		if err := req.Validate(); err != nil {
			log.Println(errors.Wrap(err, "validating request"))
			http.Error(rw, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		deps, err := initDeps(ctx)
		if err != nil {
			log.Println(errors.Wrap(err, "initializing dependencies"))
			http.Error(rw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		o, err := handler(ctx, req, deps)
		s := status.Convert(err)
		for _, detail := range s.Details() {
			switch d := detail.(type) {
			case *errdetails.RetryInfo:
				if d.RetryDelay != nil {
					if seconds := int(d.RetryDelay.Seconds); seconds > 0 {
						rw.Header().Set("Retry-After", strconv.Itoa(seconds))
					}
				}
			}
		}
		httpStatus := HTTPStatus(s.Code())
		if httpStatus != http.StatusOK {
			log.Println(s.Err())
			// NOTE: Use s.Message() as the body, instead of err.Error() This is
			// in case err was already a grpc status, then calling err.Error()
			// would be a verbose grpc error message.
			http.Error(rw, s.Message(), httpStatus)
			return
		}
		if o == nil {
			rw.WriteHeader(http.StatusNoContent)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(rw).Encode(o); err != nil {
			log.Println(errors.Wrap(err, "encoding response"))
			http.Error(rw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

// summarize renders a request for the log, eliding large form values such as
// serialized documents and images.
func summarize(req any) string {
	values, err := form.Marshal(req)
	if err != nil {
		return "<unprintable>"
	}
	var parts []string
	for k, vs := range values {
		v := strings.Join(vs, ",")
		if len(v) > 64 {
			v = strconv.Itoa(len(v)) + " bytes"
		}
		parts = append(parts, k+"="+v)
	}
	slices.Sort(parts)
	return strings.Join(parts, " ")
}

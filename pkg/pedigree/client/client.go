// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package client talks to the pedigree document service.
package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/pedigreekit/pedigree/internal/api"
	"github.com/pedigreekit/pedigree/internal/httpx"
	"github.com/pedigreekit/pedigree/pkg/pedigree/schema"
	"github.com/pedigreekit/pedigree/pkg/pedigree/schema/form"
	"github.com/pkg/errors"
)

// Routes served by the document service, relative to its base URL.
const (
	PedigreePath = "pedigree"
	PatientPath  = "patient"
)

// Client is a client for the document service.
type Client struct {
	client  httpx.BasicClient
	base    *url.URL
	save    api.StubFunc[schema.SaveRequest, schema.StatusResponse]
	patient api.StubFunc[schema.PatientRequest, schema.Patient]
}

// Option configures a Client.
type Option func(httpx.BasicClient) httpx.BasicClient

// WithSession sends the host application's session headers, such as its
// cookie, with every request.
func WithSession(h http.Header) Option {
	return func(c httpx.BasicClient) httpx.BasicClient {
		return &httpx.WithHeaders{BasicClient: c, Header: h.Clone()}
	}
}

// New returns a Client for the service rooted at base.
func New(client httpx.BasicClient, base *url.URL, opts ...Option) *Client {
	for _, opt := range opts {
		client = opt(client)
	}
	return &Client{
		client:  client,
		base:    base,
		save:    api.Stub[schema.SaveRequest, schema.StatusResponse](client, base.JoinPath(PedigreePath)),
		patient: api.GetStub[schema.PatientRequest, schema.Patient](client, base.JoinPath(PatientPath)),
	}
}

// FetchDocument returns the stored pedigree of the subject, or
// schema.ErrNoDocument when none has been saved.
func (c *Client) FetchDocument(ctx context.Context, subjectID string) ([]byte, error) {
	req := schema.LoadRequest{ID: subjectID}
	if err := req.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating request")
	}
	values, err := form.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "serializing request")
	}
	resp, err := api.Do(ctx, c.client, http.MethodGet, c.base.JoinPath(PedigreePath), values)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := api.CheckStatus(resp); err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, schema.ErrNoDocument
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response")
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, schema.ErrNoDocument
	}
	return b, nil
}

// SaveDocument stores a pedigree. Server-side rejections are reported in the
// returned StatusResponse, not as an error.
func (c *Client) SaveDocument(ctx context.Context, req schema.SaveRequest) (*schema.StatusResponse, error) {
	return c.save(ctx, req)
}

// FetchPatient returns the patient record of the subject.
func (c *Client) FetchPatient(ctx context.Context, id string) (*schema.Patient, error) {
	return c.patient(ctx, schema.PatientRequest{ID: id})
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package httpxtest

import (
	"bytes"
	"io"
	"net/http"
)

func Body(b string) io.ReadCloser {
	return io.NopCloser(bytes.NewReader([]byte(b)))
}

// JSONResponse returns a 200 response carrying the given JSON body.
func JSONResponse(body string) *http.Response {
	return &http.Response{
		Status:     "200 OK",
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       Body(body),
	}
}

// StatusResponse returns an empty response with the given status code.
func StatusResponse(code int) *http.Response {
	return &http.Response{
		Status:     http.StatusText(code),
		StatusCode: code,
		Header:     http.Header{},
		Body:       Body(""),
	}
}

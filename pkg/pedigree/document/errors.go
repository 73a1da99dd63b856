// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package document

import "fmt"

// ParseError reports input that is not well-formed JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing pedigree document: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StructuralError reports a well-formed document that violates the pedigree shape.
type StructuralError struct {
	Field  string
	Reason string
}

func (e *StructuralError) Error() string {
	if e.Field == "" {
		return "invalid pedigree document: " + e.Reason
	}
	return fmt.Sprintf("invalid pedigree document: %s: %s", e.Field, e.Reason)
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package editor

import (
	"fmt"

	"github.com/pedigreekit/pedigree/pkg/pedigree/schema"
	"github.com/pkg/errors"
)

var (
	// ErrSaveInProgress is returned by Save while another save is in flight.
	ErrSaveInProgress = errors.New("save already in progress")
	// ErrLoadInProgress is returned by the load operations while another load is running.
	ErrLoadInProgress = errors.New("load already in progress")
)

// CategoryTransport is the ServiceError category for network failures and
// replies that could not be understood.
const CategoryTransport = "transport"

// ServiceError is a failed exchange with the document service.
type ServiceError struct {
	// Category is the errorType reported by the service, or CategoryTransport.
	Category string
	Message  string
	Err      error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("document service (%s): %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("document service (%s): %s", e.Category, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ConsistencyWarning is a non-fatal problem found while loading. Loading
// continues with a default value.
type ConsistencyWarning struct {
	Message string
}

func (w *ConsistencyWarning) Error() string { return w.Message }

var errorHints = map[string]string{
	schema.ErrorTypePedigreeConflict: " (for now it is only possible to add persons without an already existing pedigree to a family)",
	schema.ErrorTypePermissions:      " (you need to have edit permissions for the patient to be able to add it to a family)",
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package editor

import (
	"context"
	"log"
	"sync"

	"github.com/pedigreekit/pedigree/pkg/pedigree/schema"
	"github.com/pkg/errors"
)

// ProbandLoader fetches the subject's patient record before a load is applied.
type ProbandLoader struct {
	fetcher   PatientFetcher
	subjectID string
	family    bool
	logger    *log.Logger

	mu   sync.Mutex
	data *schema.Patient
}

// NewProbandLoader creates a loader for subjectID. Family subjects have no
// patient record and always load an empty one.
func NewProbandLoader(fetcher PatientFetcher, subjectID string, family bool, logger *log.Logger) *ProbandLoader {
	if logger == nil {
		logger = log.Default()
	}
	return &ProbandLoader{fetcher: fetcher, subjectID: subjectID, family: family, logger: logger}
}

// Load fetches the patient record. The returned record is never nil: on
// failure the error is logged and returned alongside an empty record so the
// caller can carry on.
func (l *ProbandLoader) Load(ctx context.Context) (*schema.Patient, error) {
	p := &schema.Patient{ID: l.subjectID}
	var err error
	if l.fetcher != nil && !l.family {
		var fetched *schema.Patient
		fetched, err = l.fetcher.FetchPatient(ctx, l.subjectID)
		if err != nil {
			err = errors.Wrapf(err, "fetching proband %s", l.subjectID)
			l.logger.Printf("ERROR: %v", err)
		} else if fetched != nil {
			p = fetched
			l.logger.Printf("Proband data: %+v", *p)
		}
	}
	l.mu.Lock()
	l.data = p
	l.mu.Unlock()
	return p, err
}

// Data returns the record from the last Load, or nil before the first one.
func (l *ProbandLoader) Data() *schema.Patient {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.data
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"github.com/pedigreekit/pedigree/pkg/pedigree/document"
	"github.com/pkg/errors"
)

// Apply brings a serialized document up to date.
//
// When no update applies the input is returned unchanged.
func Apply(data []byte, env Env) ([]byte, error) {
	doc, err := document.Parse(data)
	if err != nil {
		return nil, err
	}
	doc, applied, err := ApplyDocument(doc, env)
	if err != nil {
		return nil, err
	}
	if len(applied) == 0 {
		return data, nil
	}
	return doc.Marshal()
}

// ApplyDocument runs All against a decoded document and returns the updated
// document along with the comments of the updates that applied.
func ApplyDocument(doc document.Document, env Env) (document.Document, []string, error) {
	return Run(All, doc, env)
}

// Run applies the given updates in order. Each update works on a copy so a
// failing update leaves the running document as it was.
func Run(ms []Migration, doc document.Document, env Env) (document.Document, []string, error) {
	var applied []string
	for i, m := range ms {
		work := doc.Clone()
		err := m.Transform(work, env)
		if errors.Is(err, ErrSkip) {
			continue
		} else if err != nil {
			return nil, applied, errors.Wrapf(err, "performing %s update", m.Comment)
		}
		env.logger().Printf("[update #%d] [updating to %s version] - performing %s update", i, m.Introduced, m.Comment)
		env.Metrics.RecordMigration(m.Comment)
		doc = work
		applied = append(applied, m.Comment)
	}
	return doc, applied, nil
}

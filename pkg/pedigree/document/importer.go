// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ErrUnknownFormat is returned when no importer is registered for a format.
var ErrUnknownFormat = errors.New("unknown import format")

// ImportOptions tune how third-party records are mapped onto nodes.
type ImportOptions struct {
	// MarkEvaluated records imported individuals as evaluated.
	MarkEvaluated bool
	// ExternalIDMark stores the source identifier of each individual as its external id.
	ExternalIDMark bool
}

// Importer converts a third-party pedigree representation into a document.
type Importer interface {
	Import(raw []byte, opts ImportOptions) (*Pedigree, error)
}

// ImporterFunc adapts a function to the Importer interface.
type ImporterFunc func(raw []byte, opts ImportOptions) (*Pedigree, error)

func (f ImporterFunc) Import(raw []byte, opts ImportOptions) (*Pedigree, error) {
	return f(raw, opts)
}

var (
	importersMu sync.RWMutex
	importers   = map[string]Importer{
		"ped": ImporterFunc(importPED),
	}
)

// RegisterImporter makes an importer available under the given format tag.
// Registering a tag twice replaces the earlier importer.
func RegisterImporter(format string, imp Importer) {
	importersMu.Lock()
	defer importersMu.Unlock()
	importers[strings.ToLower(format)] = imp
}

// Formats lists the registered format tags.
func Formats() []string {
	importersMu.RLock()
	defer importersMu.RUnlock()
	var fs []string
	for f := range importers {
		fs = append(fs, f)
	}
	sort.Strings(fs)
	return fs
}

// Import converts raw input of the given format into a pedigree.
func Import(raw []byte, format string, opts ImportOptions) (*Pedigree, error) {
	importersMu.RLock()
	imp, ok := importers[strings.ToLower(format)]
	importersMu.RUnlock()
	if !ok {
		return nil, errors.Wrap(ErrUnknownFormat, format)
	}
	p, err := imp.Import(raw, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "importing %s", format)
	}
	if err := validate.Struct(p); err != nil {
		return nil, &StructuralError{Reason: err.Error()}
	}
	return p, nil
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package migrations upgrades stored pedigree documents to the current format.
package migrations

import (
	"log"

	"github.com/pedigreekit/pedigree/internal/metrics"
	"github.com/pedigreekit/pedigree/pkg/pedigree/document"
	"github.com/pkg/errors"
)

// ErrSkip is returned by a Transform when the document already satisfies it.
var ErrSkip = errors.New("skip")

// Env is the context a migration runs in.
type Env struct {
	// SubjectID is the patient or family the document belongs to.
	SubjectID string
	// FamilyContext is set when SubjectID names a family.
	FamilyContext bool
	// Warn surfaces consistency problems to the user. May be nil.
	Warn func(string)
	// Logger receives progress lines. Defaults to log.Default().
	Logger *log.Logger
	// Metrics counts applied updates. May be nil.
	Metrics *metrics.Registry
}

func (e Env) warn(msg string) {
	e.logger().Printf("WARNING: %s", msg)
	if e.Warn != nil {
		e.Warn(msg)
	}
}

func (e Env) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// Migration is a single forward update of the document format.
type Migration struct {
	// Comment names the update in logs.
	Comment string
	// Introduced is the format revision the update brings documents to.
	Introduced string
	// Transform edits the document in place, or returns ErrSkip without
	// touching it when it does not apply.
	Transform func(doc document.Document, env Env) error
}

// All is the ordered list of updates. Never reorder it: each update assumes
// the ones before it have run.
var All = []Migration{
	{
		Comment:    "group node comments",
		Introduced: "May2014",
		Transform:  groupNodeComments,
	},
	{
		Comment:    "adopted status",
		Introduced: "Nov2014",
		Transform:  adoptedStatus,
	},
	{
		Comment:    "proband link",
		Introduced: "Mar2015",
		Transform:  probandLink,
	},
	{
		Comment:    "version stamp",
		Introduced: document.CurrentVersion,
		Transform:  versionStamp,
	},
}

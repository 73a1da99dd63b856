// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package editor

import (
	"context"

	"github.com/pedigreekit/pedigree/pkg/pedigree/document"
	"github.com/pedigreekit/pedigree/pkg/pedigree/schema"
)

// Graph is the in-memory pedigree graph.
type Graph interface {
	document.GraphSource
	// FromDocument computes the edits that turn the graph into p.
	FromDocument(p *document.Pedigree) (*document.ChangeSet, error)
	// ApplyChangeSet applies the edits and reports whether the layout changed.
	ApplyChangeSet(cs *document.ChangeSet, suppressAnimation bool) bool
	ProbandID() int
	// SetProbandData copies patient metadata onto the proband node. It returns
	// false when the patient's sex is incompatible with the node, in which
	// case the node's sex is set to unknown.
	SetProbandData(p *schema.Patient) bool
	Clear()
}

// View holds the user's view preferences.
type View interface {
	document.SettingsSource
	LoadSettings(settings map[string]any)
}

type Viewport interface {
	AdjustSizeToScreen()
	CenterAroundNode(id int)
}

type Renderer interface {
	// RenderSVG returns the current drawing as an SVG document.
	RenderSVG() (string, error)
}

// Notifier shows progress and results to the user.
type Notifier interface {
	Progress(msg string)
	Success(msg string)
	Warning(msg string)
	Error(title, msg string)
}

// History is the undo stack.
type History interface {
	PushState(before, after []byte)
	MarkSaved()
}

// Affordances are the controls that must be disabled while a save is in flight.
type Affordances interface {
	SetSaveEnabled(enabled bool)
}

// TemplateSelector offers starting templates when the subject has no pedigree.
type TemplateSelector interface {
	SelectTemplate()
}

// DocumentService stores and retrieves serialized pedigrees.
type DocumentService interface {
	FetchDocument(ctx context.Context, subjectID string) ([]byte, error)
	SaveDocument(ctx context.Context, req schema.SaveRequest) (*schema.StatusResponse, error)
}

type PatientFetcher interface {
	FetchPatient(ctx context.Context, id string) (*schema.Patient, error)
}

type nopViewport struct{}

func (nopViewport) AdjustSizeToScreen()  {}
func (nopViewport) CenterAroundNode(int) {}

type nopRenderer struct{}

func (nopRenderer) RenderSVG() (string, error) { return "", nil }

type nopNotifier struct{}

func (nopNotifier) Progress(string)      {}
func (nopNotifier) Success(string)       {}
func (nopNotifier) Warning(string)       {}
func (nopNotifier) Error(string, string) {}

type nopHistory struct{}

func (nopHistory) PushState([]byte, []byte) {}
func (nopHistory) MarkSaved()               {}

type nopAffordances struct{}

func (nopAffordances) SetSaveEnabled(bool) {}

type nopTemplates struct{}

func (nopTemplates) SelectTemplate() {}

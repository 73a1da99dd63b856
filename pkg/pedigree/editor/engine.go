// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package editor drives loading, importing and saving a pedigree against
// the editor's graph and the document service.
package editor

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pedigreekit/pedigree/internal/metrics"
	"github.com/pedigreekit/pedigree/pkg/pedigree/document"
	"github.com/pedigreekit/pedigree/pkg/pedigree/migrations"
	"github.com/pedigreekit/pedigree/pkg/pedigree/schema"
	"github.com/pkg/errors"
)

// State is the engine's current activity.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateApplying
	StateSaving
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateApplying:
		return "applying"
	case StateSaving:
		return "saving"
	case StateError:
		return "error"
	}
	return "unknown"
}

const (
	loadErrorTitle     = "Error loading the graph"
	importErrorTitle   = "Error importing pedigree"
	saveErrorTitle     = "Pedigree was not saved"
	saveReplyIncorrect = "Save attempt failed: server reply is incorrect"
	incompatibleSex    = "Proband gender defined in Phenotips is incompatible with this pedigree. Setting proband gender to 'Unknown'"
)

// Config identifies the subject being edited.
type Config struct {
	SubjectID string
	// FamilyContext is set when SubjectID names a family rather than a patient.
	FamilyContext bool
	// AfterSave runs after each successful save.
	AfterSave func()
	Logger    *log.Logger
	Metrics   *metrics.Registry
}

// Deps are the engine's collaborators. Graph, View and Documents are required.
type Deps struct {
	Graph       Graph
	View        View
	Viewport    Viewport
	Renderer    Renderer
	Notifier    Notifier
	History     History
	Affordances Affordances
	Templates   TemplateSelector
	Documents   DocumentService
	Patients    PatientFetcher
	Events      *Bus
}

// LoadOptions control how a document is applied to the graph.
type LoadOptions struct {
	// NoUndo skips the proband fetch and leaves the undo history untouched.
	NoUndo bool
	// CenterAroundProband scrolls the viewport to the proband after loading.
	CenterAroundProband bool
}

// Engine loads documents into the graph and saves the graph back.
type Engine struct {
	cfg     Config
	deps    Deps
	logger  *log.Logger
	proband *ProbandLoader

	saving atomic.Bool
	// graphMu guards graph and view mutation against save snapshots.
	graphMu sync.Mutex

	mu    sync.Mutex
	state State
	dirty bool
}

func New(cfg Config, deps Deps) (*Engine, error) {
	switch {
	case deps.Graph == nil:
		return nil, errors.New("graph is required")
	case deps.View == nil:
		return nil, errors.New("view is required")
	case deps.Documents == nil:
		return nil, errors.New("document service is required")
	}
	if err := schema.ValidateSubject(cfg.SubjectID); err != nil {
		return nil, errors.Wrap(err, "invalid subject")
	}
	if deps.Viewport == nil {
		deps.Viewport = nopViewport{}
	}
	if deps.Renderer == nil {
		deps.Renderer = nopRenderer{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.History == nil {
		deps.History = nopHistory{}
	}
	if deps.Affordances == nil {
		deps.Affordances = nopAffordances{}
	}
	if deps.Templates == nil {
		deps.Templates = nopTemplates{}
	}
	if deps.Events == nil {
		deps.Events = NewBus()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		proband: NewProbandLoader(deps.Patients, cfg.SubjectID, cfg.FamilyContext, logger),
	}, nil
}

// Events returns the bus the engine publishes on.
func (e *Engine) Events() *Bus { return e.deps.Events }

// Proband returns the patient record fetched by the last undoable load.
func (e *Engine) Proband() *schema.Patient { return e.proband.Data() }

// State reports the engine's activity. A save in flight reports StateSaving
// unless a load is also running.
func (e *Engine) State() State {
	e.mu.Lock()
	s := e.state
	e.mu.Unlock()
	if (s == StateIdle || s == StateError) && e.saving.Load() {
		return StateSaving
	}
	return s
}

// Dirty reports whether the graph has changes the service has not acknowledged.
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// MarkChanged records a user edit.
func (e *Engine) MarkChanged() { e.setDirty(true) }

func (e *Engine) setDirty(d bool) {
	e.mu.Lock()
	e.dirty = d
	e.mu.Unlock()
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// begin moves into a loading state unless a load is already running.
func (e *Engine) begin(s State) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateLoading || e.state == StateApplying {
		return false
	}
	e.state = s
	return true
}

// end closes a load started with begin. It is the only place load-finish is published.
func (e *Engine) end(s State, outcome string) {
	e.setState(s)
	e.cfg.Metrics.RecordLoad(outcome)
	e.deps.Events.Publish(Message{Event: EventLoadFinish})
}

func (e *Engine) warn(w *ConsistencyWarning) {
	e.logger.Printf("WARNING: %s", w.Message)
	e.deps.Notifier.Warning(w.Message)
}

func (e *Engine) migrationEnv() migrations.Env {
	return migrations.Env{
		SubjectID:     e.cfg.SubjectID,
		FamilyContext: e.cfg.FamilyContext,
		Warn:          func(msg string) { e.warn(&ConsistencyWarning{Message: msg}) },
		Logger:        e.logger,
		Metrics:       e.cfg.Metrics,
	}
}

// Load fetches the subject's stored pedigree and applies it to the graph.
// A subject without a pedigree is offered the template selector instead.
func (e *Engine) Load(ctx context.Context) error {
	if !e.begin(StateLoading) {
		e.cfg.Metrics.RecordLoad(metrics.OutcomeRejected)
		return ErrLoadInProgress
	}
	e.deps.Events.Publish(Message{Event: EventLoadStart})
	e.logger.Printf("Loading pedigree for %s", e.cfg.SubjectID)
	data, err := e.deps.Documents.FetchDocument(ctx, e.cfg.SubjectID)
	switch {
	case errors.Is(err, schema.ErrNoDocument):
		e.logger.Printf("No stored pedigree for %s", e.cfg.SubjectID)
		e.deps.Templates.SelectTemplate()
		e.end(StateIdle, metrics.OutcomeEmpty)
		return nil
	case err != nil:
		e.logger.Printf("ERROR: fetching pedigree for %s: %v", e.cfg.SubjectID, err)
		e.deps.Notifier.Error(loadErrorTitle, "Unable to retrieve the pedigree from the server")
		e.end(StateError, metrics.OutcomeError)
		return &ServiceError{Category: CategoryTransport, Message: "fetching pedigree", Err: err}
	}
	if err := e.applySerialized(ctx, data, LoadOptions{CenterAroundProband: true}, true); err != nil {
		return err
	}
	e.deps.History.MarkSaved()
	e.setDirty(false)
	return nil
}

// LoadSerialized applies a serialized document, such as an undo step or a
// template, to the graph.
func (e *Engine) LoadSerialized(ctx context.Context, data []byte, opts LoadOptions) error {
	if !e.begin(StateApplying) {
		return ErrLoadInProgress
	}
	e.deps.Events.Publish(Message{Event: EventLoadStart})
	return e.applySerialized(ctx, data, opts, false)
}

// Import converts a third-party pedigree and applies it to the graph as an
// undoable step.
func (e *Engine) Import(ctx context.Context, raw []byte, format string, iopts document.ImportOptions, opts LoadOptions) error {
	if !e.begin(StateApplying) {
		return ErrLoadInProgress
	}
	e.deps.Events.Publish(Message{Event: EventLoadStart})
	p, err := document.Import(raw, format, iopts)
	if err != nil {
		// The current graph is left as it was.
		e.logger.Printf("ERROR: importing %s pedigree: %v", format, err)
		e.deps.Notifier.Error(importErrorTitle, err.Error())
		e.end(StateIdle, metrics.OutcomeError)
		return err
	}
	if err := e.applyPedigree(ctx, p, opts, false); err != nil {
		return err
	}
	e.setDirty(true)
	return nil
}

func (e *Engine) applySerialized(ctx context.Context, data []byte, opts LoadOptions, baseline bool) error {
	e.setState(StateApplying)
	migrated, err := migrations.Apply(data, e.migrationEnv())
	if err != nil {
		return e.fail(err)
	}
	p, err := document.Deserialize(migrated)
	if err != nil {
		return e.fail(err)
	}
	return e.applyPedigree(ctx, p, opts, baseline)
}

// applyPedigree replaces the graph with p. A baseline load leaves nothing to
// undo; otherwise the graph before the load is the undo target.
func (e *Engine) applyPedigree(ctx context.Context, p *document.Pedigree, opts LoadOptions, baseline bool) error {
	var patient *schema.Patient
	if !opts.NoUndo {
		patient, _ = e.proband.Load(ctx)
	}
	before, after, err := e.rebuild(p, patient, opts, baseline)
	if err != nil {
		return e.fail(err)
	}
	if !opts.NoUndo && after != nil {
		e.deps.History.PushState(before, after)
	}
	e.end(StateIdle, metrics.OutcomeSuccess)
	return nil
}

func (e *Engine) rebuild(p *document.Pedigree, patient *schema.Patient, opts LoadOptions, baseline bool) (before, after []byte, err error) {
	e.graphMu.Lock()
	defer e.graphMu.Unlock()
	if !opts.NoUndo && !baseline {
		if before, err = document.Serialize(e.deps.Graph, e.deps.View); err != nil {
			return nil, nil, errors.Wrap(err, "snapshotting graph")
		}
	}
	cs, err := e.deps.Graph.FromDocument(p)
	if err != nil {
		return nil, nil, errors.Wrap(err, "building graph")
	}
	if p.Settings != nil {
		e.deps.View.LoadSettings(p.Settings)
	}
	if patient != nil && !e.deps.Graph.SetProbandData(patient) {
		e.warn(&ConsistencyWarning{Message: incompatibleSex})
	}
	if e.deps.Graph.ApplyChangeSet(cs, false) {
		e.deps.Viewport.AdjustSizeToScreen()
	}
	if opts.CenterAroundProband {
		if id := e.deps.Graph.ProbandID(); id != document.NoProband {
			e.deps.Viewport.CenterAroundNode(id)
		}
	}
	if !opts.NoUndo {
		if after, err = document.Serialize(e.deps.Graph, e.deps.View); err != nil {
			e.logger.Printf("ERROR: snapshotting loaded graph: %v", err)
			return before, nil, nil
		}
	}
	return before, after, nil
}

// fail clears the graph after a load that could not be applied.
func (e *Engine) fail(err error) error {
	e.logger.Printf("ERROR: loading pedigree for %s: %v", e.cfg.SubjectID, err)
	e.deps.Events.Publish(Message{Event: EventGraphClear})
	e.graphMu.Lock()
	e.deps.Graph.Clear()
	e.graphMu.Unlock()
	e.deps.Notifier.Error(loadErrorTitle, err.Error())
	e.end(StateError, metrics.OutcomeError)
	return err
}

// Save serializes the graph and stores it with the document service. Only
// one save may be in flight; a concurrent call returns ErrSaveInProgress
// without contacting the service.
func (e *Engine) Save(ctx context.Context) error {
	if !e.saving.CompareAndSwap(false, true) {
		e.cfg.Metrics.RecordSave(metrics.OutcomeRejected, 0)
		return ErrSaveInProgress
	}
	start := time.Now()
	err := e.save(ctx)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	e.cfg.Metrics.RecordSave(outcome, time.Since(start))
	if err == nil && e.cfg.AfterSave != nil {
		e.cfg.AfterSave()
	}
	return err
}

func (e *Engine) save(ctx context.Context) error {
	defer e.saving.Store(false)
	data, image, err := e.snapshot()
	if err != nil {
		e.logger.Printf("ERROR: %v", err)
		e.deps.Notifier.Error(saveErrorTitle, err.Error())
		return err
	}
	e.deps.Notifier.Progress("Saving")
	e.deps.Affordances.SetSaveEnabled(false)
	defer e.deps.Affordances.SetSaveEnabled(true)
	resp, err := e.deps.Documents.SaveDocument(ctx, schema.SaveRequest{
		Proband: e.cfg.SubjectID,
		JSON:    string(data),
		Image:   image,
	})
	if err == nil && resp == nil {
		err = errors.New("empty reply")
	}
	if err != nil {
		e.logger.Printf("ERROR: saving pedigree for %s: %v", e.cfg.SubjectID, err)
		e.deps.Notifier.Error(saveErrorTitle, saveReplyIncorrect)
		return &ServiceError{Category: CategoryTransport, Message: saveReplyIncorrect, Err: err}
	}
	if resp.Error {
		msg := resp.ErrorMessage
		if msg == "" {
			msg = "unknown problem"
		}
		e.logger.Printf("Save rejected for %s (%s): %s", e.cfg.SubjectID, resp.ErrorType, msg)
		e.deps.Notifier.Error(saveErrorTitle, "Unable to save pedigree: "+msg+errorHints[resp.ErrorType])
		return &ServiceError{Category: resp.ErrorType, Message: msg}
	}
	e.setDirty(false)
	e.deps.History.MarkSaved()
	e.deps.Notifier.Success("Successfully saved")
	e.logger.Printf("Saved pedigree for %s (revision %s)", e.cfg.SubjectID, resp.Revision)
	return nil
}

func (e *Engine) snapshot() (data []byte, image string, err error) {
	e.graphMu.Lock()
	defer e.graphMu.Unlock()
	if data, err = document.Serialize(e.deps.Graph, e.deps.View); err != nil {
		return nil, "", errors.Wrap(err, "serializing pedigree")
	}
	if image, err = e.deps.Renderer.RenderSVG(); err != nil {
		return nil, "", errors.Wrap(err, "rendering pedigree")
	}
	return data, image, nil
}

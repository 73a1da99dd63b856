// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package history keeps the undo/redo stack of serialized pedigree states.
package history

import "sync"

// State is a single undoable step.
type State struct {
	// Before is the serialized pedigree to restore on undo. Nil for the baseline.
	Before []byte
	// After is the serialized pedigree to restore on redo.
	After []byte
}

// Stack is an undo/redo stack with a saved marker.
//
// The zero value is an empty stack with no saved state.
type Stack struct {
	mu     sync.Mutex
	states []State
	// pos is the number of states currently applied.
	pos int
	// saved is the value of pos at the last save, or -1 if the current branch
	// never matched the saved state.
	saved int
}

// New returns an empty stack whose empty state counts as saved.
func New() *Stack {
	return &Stack{}
}

// PushState records a new step, discarding any redoable steps.
func (s *Stack) PushState(before, after []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved > s.pos {
		s.saved = -1
	}
	s.states = append(s.states[:s.pos], State{Before: before, After: after})
	s.pos++
}

// MarkSaved records the current state as the saved one.
func (s *Stack) MarkSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = s.pos
}

// HasUnsavedChanges reports whether the current state differs from the saved one.
func (s *Stack) HasUnsavedChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos != s.saved
}

// CanUndo reports whether Undo would return a state.
func (s *Stack) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos > 0 && s.states[s.pos-1].Before != nil
}

// CanRedo reports whether Redo would return a state.
func (s *Stack) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos < len(s.states)
}

// Undo steps back and returns the serialized state to restore.
func (s *Stack) Undo() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos == 0 || s.states[s.pos-1].Before == nil {
		return nil, false
	}
	s.pos--
	return s.states[s.pos].Before, true
}

// Redo steps forward and returns the serialized state to restore.
func (s *Stack) Redo() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos == len(s.states) {
		return nil, false
	}
	s.pos++
	return s.states[s.pos-1].After, true
}

// Current returns the serialized state at the top of the applied steps.
func (s *Stack) Current() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos == 0 {
		return nil
	}
	return s.states[s.pos-1].After
}

// Len returns the number of recorded steps.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

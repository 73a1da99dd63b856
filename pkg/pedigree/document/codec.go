// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"reflect"
	"slices"

	"github.com/pkg/errors"
)

// GraphSource exports the current graph in document form.
type GraphSource interface {
	ToDocument() (*Pedigree, error)
}

// SettingsSource exports the current view preferences.
type SettingsSource interface {
	Settings() map[string]any
}

// Serialize writes the graph and view settings as a current-version document.
func Serialize(g GraphSource, v SettingsSource) ([]byte, error) {
	p, err := g.ToDocument()
	if err != nil {
		return nil, errors.Wrap(err, "exporting graph")
	}
	d := p.Document()
	if s := v.Settings(); s != nil {
		d[SettingsKey] = cloneValue(s)
	} else {
		delete(d, SettingsKey)
	}
	d[VersionKey] = CurrentVersion
	return d.Marshal()
}

// ChangeSet is the set of edits that brings one graph to another.
type ChangeSet struct {
	Added   []Node
	Removed []int
	Updated []Node
	// ProbandID is the target proband.
	ProbandID int
	// Settings is the target view settings, nil when unchanged.
	Settings map[string]any

	probandChanged bool
}

// Empty reports whether applying the change set would change nothing.
func (c *ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Updated) == 0 && c.Settings == nil && !c.probandChanged
}

// Diff computes the change set from current to target.
func Diff(current, target *Pedigree) *ChangeSet {
	cs := &ChangeSet{ProbandID: target.ProbandID, probandChanged: current.ProbandID != target.ProbandID}
	have := make(map[int]Node, len(current.Nodes))
	for _, n := range current.Nodes {
		have[n.ID] = n
	}
	want := make(map[int]bool, len(target.Nodes))
	for _, n := range target.Nodes {
		want[n.ID] = true
		old, ok := have[n.ID]
		switch {
		case !ok:
			cs.Added = append(cs.Added, n)
		case !reflect.DeepEqual(old.object(), n.object()):
			cs.Updated = append(cs.Updated, n)
		}
	}
	for _, n := range current.Nodes {
		if !want[n.ID] {
			cs.Removed = append(cs.Removed, n.ID)
		}
	}
	slices.Sort(cs.Removed)
	if !reflect.DeepEqual(current.Settings, target.Settings) {
		cs.Settings = target.Settings
		if cs.Settings == nil {
			cs.Settings = map[string]any{}
		}
	}
	return cs
}

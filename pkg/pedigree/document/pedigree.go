// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Node is a single pedigree graph node.
type Node struct {
	ID   int `validate:"gte=0"`
	Prop map[string]any
	// Extra holds the remaining node fields (edges, node kind markers) verbatim.
	Extra map[string]any
}

// PatientLink returns the patient record linked to the node, if any.
func (n Node) PatientLink() string {
	s, _ := n.Prop[PatientLinkProp].(string)
	return s
}

func (n Node) object() map[string]any {
	o := make(map[string]any, len(n.Extra)+2)
	for k, v := range n.Extra {
		o[k] = cloneValue(v)
	}
	o[IDKey] = n.ID
	if n.Prop != nil {
		o[PropKey] = cloneValue(n.Prop)
	}
	return o
}

// Pedigree is the typed view of a migrated document.
type Pedigree struct {
	Nodes     []Node `validate:"dive"`
	ProbandID int    `validate:"gte=-1"`
	Version   string
	Settings  map[string]any
	// Extra holds unknown top-level fields verbatim.
	Extra map[string]any
}

// Node returns the node with the given id.
func (p *Pedigree) Node(id int) (Node, bool) {
	for _, n := range p.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// PatientLinks returns the non-empty patient links in node order.
func (p *Pedigree) PatientLinks() []string {
	var links []string
	for _, n := range p.Nodes {
		if l := n.PatientLink(); l != "" {
			links = append(links, l)
		}
	}
	return links
}

// Document converts the pedigree back into its generic document form.
func (p *Pedigree) Document() Document {
	d := Document{}
	for k, v := range p.Extra {
		d[k] = cloneValue(v)
	}
	nodes := make([]any, len(p.Nodes))
	for i, n := range p.Nodes {
		nodes[i] = n.object()
	}
	d[NodesKey] = nodes
	d[ProbandKey] = p.ProbandID
	if p.Version != "" {
		d[VersionKey] = p.Version
	}
	if p.Settings != nil {
		d[SettingsKey] = cloneValue(p.Settings)
	}
	return d
}

// FromDocument builds the typed view of a document, checking its structure.
func FromDocument(d Document) (*Pedigree, error) {
	objs, err := d.Nodes()
	if err != nil {
		return nil, err
	}
	p := &Pedigree{ProbandID: NoProband, Extra: map[string]any{}}
	seen := make(map[int]bool, len(objs))
	for i, o := range objs {
		field := fmt.Sprintf("%s[%d]", NodesKey, i)
		id, ok := NodeID(o)
		if !ok {
			return nil, &StructuralError{Field: field + "." + IDKey, Reason: "missing or non-integer id"}
		}
		if seen[id] {
			return nil, &StructuralError{Field: field + "." + IDKey, Reason: fmt.Sprintf("duplicate id %d", id)}
		}
		seen[id] = true
		n := Node{ID: id}
		if _, present := o[PropKey]; present {
			prop, ok := Props(o, false)
			if !ok {
				return nil, &StructuralError{Field: field + "." + PropKey, Reason: "prop is not an object"}
			}
			n.Prop = cloneValue(prop).(map[string]any)
		}
		for k, v := range o {
			if k == IDKey || k == PropKey {
				continue
			}
			if n.Extra == nil {
				n.Extra = map[string]any{}
			}
			n.Extra[k] = cloneValue(v)
		}
		p.Nodes = append(p.Nodes, n)
	}
	if id, ok, err := d.ProbandID(); err != nil {
		return nil, err
	} else if ok {
		if id != NoProband && !seen[id] {
			return nil, &StructuralError{Field: ProbandKey, Reason: fmt.Sprintf("no node with id %d", id)}
		}
		p.ProbandID = id
	}
	p.Version, _ = d.Version()
	if v, ok := d[SettingsKey]; ok {
		s, ok := v.(map[string]any)
		if !ok {
			return nil, &StructuralError{Field: SettingsKey, Reason: "settings is not an object"}
		}
		p.Settings = cloneValue(s).(map[string]any)
	}
	_, canonical := d[NodesKey]
	for k, v := range d {
		switch k {
		case NodesKey, ProbandKey, VersionKey, SettingsKey:
			continue
		case nodesAlias:
			if !canonical {
				continue
			}
		}
		p.Extra[k] = cloneValue(v)
	}
	if err := validate.Struct(p); err != nil {
		return nil, &StructuralError{Reason: err.Error()}
	}
	return p, nil
}

// Deserialize parses and checks a migrated document.
func Deserialize(data []byte) (*Pedigree, error) {
	d, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return FromDocument(d)
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/pkg/errors"
)

// Node kind markers and edge list used by the graph for non-person nodes.
const (
	relationshipMarker = "rel"
	childhubMarker     = "chhub"
	outedgesKey        = "outedges"
)

// pedRecord is one line of a LINKAGE pedigree file:
//
//	family individual father mother sex phenotype
type pedRecord struct {
	family, id, father, mother, sex, phenotype string
}

const pedUnknownParent = "0"

func parsePED(raw []byte) ([]pedRecord, error) {
	var recs []pedRecord
	seen := map[string]bool{}
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		f := strings.Fields(text)
		if len(f) < 6 {
			return nil, &ParseError{Err: errors.Errorf("line %d: expected 6 fields, got %d", line, len(f))}
		}
		r := pedRecord{family: f[0], id: f[1], father: f[2], mother: f[3], sex: f[4], phenotype: f[5]}
		if len(recs) > 0 && r.family != recs[0].family {
			return nil, &ParseError{Err: errors.Errorf("line %d: multiple families (%s, %s)", line, recs[0].family, r.family)}
		}
		if seen[r.id] {
			return nil, &ParseError{Err: errors.Errorf("line %d: duplicate individual %s", line, r.id)}
		}
		seen[r.id] = true
		recs = append(recs, r)
	}
	if err := sc.Err(); err != nil {
		return nil, &ParseError{Err: err}
	}
	if len(recs) == 0 {
		return nil, &ParseError{Err: errors.New("no individuals")}
	}
	return recs, nil
}

func pedGender(sex string) string {
	switch sex {
	case "1":
		return "M"
	case "2":
		return "F"
	default:
		return "U"
	}
}

type pedBuilder struct {
	nodes []Node
	// partnerships maps "father|mother" to the index of its relationship node.
	partnerships map[string]int
}

func (b *pedBuilder) add(n Node) int {
	n.ID = len(b.nodes)
	b.nodes = append(b.nodes, n)
	return n.ID
}

func (b *pedBuilder) link(from, to int) {
	n := &b.nodes[from]
	if n.Extra == nil {
		n.Extra = map[string]any{}
	}
	edges, _ := n.Extra[outedgesKey].([]any)
	n.Extra[outedgesKey] = append(edges, map[string]any{"to": to})
}

// importPED reads a LINKAGE pedigree file. The first individual becomes the proband.
func importPED(raw []byte, opts ImportOptions) (*Pedigree, error) {
	recs, err := parsePED(raw)
	if err != nil {
		return nil, err
	}
	b := &pedBuilder{partnerships: map[string]int{}}
	ids := make(map[string]int, len(recs))
	for _, r := range recs {
		prop := map[string]any{"gender": pedGender(r.sex)}
		if opts.ExternalIDMark {
			prop["externalID"] = r.id
		}
		if r.phenotype == "2" {
			prop["carrierStatus"] = "affected"
		}
		if opts.MarkEvaluated {
			prop["evaluated"] = true
		}
		ids[r.id] = b.add(Node{Prop: prop})
	}
	for _, r := range recs {
		if r.father == pedUnknownParent && r.mother == pedUnknownParent {
			continue
		}
		key := r.father + "|" + r.mother
		rel, ok := b.partnerships[key]
		if !ok {
			father, err := b.parent(ids, r.father, "M")
			if err != nil {
				return nil, err
			}
			mother, err := b.parent(ids, r.mother, "F")
			if err != nil {
				return nil, err
			}
			rel = b.add(Node{Extra: map[string]any{relationshipMarker: true}})
			hub := b.add(Node{Extra: map[string]any{childhubMarker: true}})
			b.link(father, rel)
			b.link(mother, rel)
			b.link(rel, hub)
			b.partnerships[key] = rel
		}
		// The childhub is always created right after its relationship.
		b.link(rel+1, ids[r.id])
	}
	return &Pedigree{Nodes: b.nodes, ProbandID: 0}, nil
}

// parent resolves a parent reference, creating a placeholder for an unknown parent.
func (b *pedBuilder) parent(ids map[string]int, ref, gender string) (int, error) {
	if ref == pedUnknownParent {
		return b.add(Node{Prop: map[string]any{"gender": gender}}), nil
	}
	id, ok := ids[ref]
	if !ok {
		return 0, &ParseError{Err: errors.Errorf("unknown parent %s", ref)}
	}
	return id, nil
}

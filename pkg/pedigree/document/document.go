// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package document defines the persisted pedigree JSON document and the codec
// between it and the in-memory graph.
package document

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// CurrentVersion is the JSON_version written into every new document.
const CurrentVersion = "1.0"

// Top-level document keys.
const (
	NodesKey    = "GG"
	ProbandKey  = "probandNodeID"
	VersionKey  = "JSON_version"
	SettingsKey = "settings"

	// nodesAlias is accepted on read only.
	nodesAlias = "graph"
)

// Node keys.
const (
	IDKey   = "id"
	PropKey = "prop"

	// PatientLinkProp links a node to a patient record.
	PatientLinkProp = "phenotipsId"
)

// NoProband is the probandNodeID of a family document with no determinable proband.
const NoProband = -1

// Document is a decoded pedigree document.
//
// Numbers are kept as json.Number so that re-encoding preserves them exactly.
// Unknown fields are carried through untouched.
type Document map[string]any

// Parse decodes a pedigree document.
func Parse(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &ParseError{Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ParseError{Err: errors.New("unexpected data after document")}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &StructuralError{Reason: "document is not a JSON object"}
	}
	return Document(obj), nil
}

// Marshal encodes the document.
func (d Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any(d)); err != nil {
		return nil, errors.Wrap(err, "encoding document")
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	return Document(cloneValue(map[string]any(d)).(map[string]any))
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// Nodes returns the node objects of the document, reading the legacy alias
// when the canonical key is absent.
func (d Document) Nodes() ([]map[string]any, error) {
	raw, ok := d[NodesKey]
	key := NodesKey
	if !ok {
		raw, ok = d[nodesAlias]
		key = nodesAlias
	}
	if !ok {
		return nil, &StructuralError{Field: NodesKey, Reason: "missing node array"}
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, &StructuralError{Field: key, Reason: "node array is not an array"}
	}
	nodes := make([]map[string]any, len(arr))
	for i, e := range arr {
		n, ok := e.(map[string]any)
		if !ok {
			return nil, &StructuralError{Field: key + "[" + strconv.Itoa(i) + "]", Reason: "node is not an object"}
		}
		nodes[i] = n
	}
	return nodes, nil
}

// Version returns the JSON_version of the document, if present.
func (d Document) Version() (string, bool) {
	v, ok := d[VersionKey]
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}

// ProbandID returns the recorded probandNodeID, if present.
func (d Document) ProbandID() (int, bool, error) {
	v, ok := d[ProbandKey]
	if !ok {
		return 0, false, nil
	}
	id, ok := AsInt(v)
	if !ok {
		return 0, true, &StructuralError{Field: ProbandKey, Reason: "not an integer"}
	}
	return id, true, nil
}

// NodeID returns the id of a node object.
func NodeID(n map[string]any) (int, bool) {
	v, ok := n[IDKey]
	if !ok {
		return 0, false
	}
	return AsInt(v)
}

// Props returns the prop map of a node object, creating it when create is set.
func Props(n map[string]any, create bool) (map[string]any, bool) {
	v, ok := n[PropKey]
	if !ok {
		if !create {
			return nil, false
		}
		p := map[string]any{}
		n[PropKey] = p
		return p, true
	}
	p, ok := v.(map[string]any)
	return p, ok
}

// AsInt interprets a decoded JSON value as an integer.
func AsInt(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		i, err := strconv.Atoi(t.String())
		return i, err == nil
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	default:
		return 0, false
	}
}

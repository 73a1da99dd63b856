// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pedigreekit/pedigree/pkg/pedigree/document"
	"github.com/pkg/errors"
)

var quiet = log.New(io.Discard, "", 0)

func decode(t *testing.T, b []byte) any {
	t.Helper()
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("json.Unmarshal(%s): %v", b, err)
	}
	return v
}

func TestApply(t *testing.T) {
	for _, tc := range []struct {
		name     string
		family   bool
		subject  string
		input    string
		want     string
		wantWarn []string
	}{
		{
			name:   "group node name moves to comments",
			family: true,
			input:  `{"GG":[{"id":0,"prop":{"numPersons":2,"fName":"twins"}}]}`,
			want:   `{"GG":[{"id":0,"prop":{"numPersons":2,"comments":"twins"}}],"probandNodeID":-1,"JSON_version":"1.0"}`,
		},
		{
			name:   "group node name merges into existing comments",
			family: true,
			input:  `{"GG":[{"id":0,"prop":{"numPersons":2,"fName":"twins","comments":"older"}}],"probandNodeID":-1}`,
			want:   `{"GG":[{"id":0,"prop":{"numPersons":2,"comments":"older\ntwins"}}],"probandNodeID":-1,"JSON_version":"1.0"}`,
		},
		{
			name:   "empty group node name is dropped",
			family: true,
			input:  `{"GG":[{"id":0,"prop":{"numPersons":2,"fName":""}}],"probandNodeID":-1}`,
			want:   `{"GG":[{"id":0,"prop":{"numPersons":2}}],"probandNodeID":-1,"JSON_version":"1.0"}`,
		},
		{
			name:   "person name is not a group name",
			family: true,
			input:  `{"GG":[{"id":0,"prop":{"fName":"Ann"}}],"probandNodeID":-1}`,
			want:   `{"GG":[{"id":0,"prop":{"fName":"Ann"}}],"probandNodeID":-1,"JSON_version":"1.0"}`,
		},
		{
			name:   "adopted flag becomes status",
			family: true,
			input:  `{"GG":[{"id":0,"prop":{"isAdopted":true}},{"id":1,"prop":{"isAdopted":false}}],"probandNodeID":-1}`,
			want:   `{"GG":[{"id":0,"prop":{"adoptedStatus":"adoptedIn"}},{"id":1,"prop":{}}],"probandNodeID":-1,"JSON_version":"1.0"}`,
		},
		{
			name:   "family document gains no-proband marker",
			family: true,
			input:  `{"GG":[{"id":0,"prop":{"gender":"M"}}]}`,
			want:   `{"GG":[{"id":0,"prop":{"gender":"M"}}],"probandNodeID":-1,"JSON_version":"1.0"}`,
		},
		{
			name:   "family document keeps recorded proband",
			family: true,
			input:  `{"GG":[{"id":3}],"probandNodeID":3}`,
			want:   `{"GG":[{"id":3}],"probandNodeID":3,"JSON_version":"1.0"}`,
		},
		{
			name:    "subject link attached to node 0",
			subject: "P0000001",
			input:   `{"GG":[{"id":0,"prop":{"gender":"F"}},{"id":1}]}`,
			want:    `{"GG":[{"id":0,"prop":{"gender":"F","phenotipsId":"P0000001"}},{"id":1}],"probandNodeID":0,"JSON_version":"1.0"}`,
		},
		{
			name:    "subject link creates prop",
			subject: "P0000001",
			input:   `{"GG":[{"id":0}]}`,
			want:    `{"GG":[{"id":0,"prop":{"phenotipsId":"P0000001"}}],"probandNodeID":0,"JSON_version":"1.0"}`,
		},
		{
			name:    "subject link attached to recorded proband",
			subject: "P0000001",
			input:   `{"GG":[{"id":0},{"id":4,"prop":{}}],"probandNodeID":4}`,
			want:    `{"GG":[{"id":0},{"id":4,"prop":{"phenotipsId":"P0000001"}}],"probandNodeID":4,"JSON_version":"1.0"}`,
		},
		{
			name:    "no-proband marker in patient document links node 0",
			subject: "P0000001",
			input:   `{"GG":[{"id":0,"prop":{"gender":"F"}},{"id":1}],"probandNodeID":-1}`,
			want:    `{"GG":[{"id":0,"prop":{"gender":"F","phenotipsId":"P0000001"}},{"id":1}],"probandNodeID":0,"JSON_version":"1.0"}`,
		},
		{
			name:    "no-proband marker replaced by linked node",
			subject: "P0000001",
			input:   `{"GG":[{"id":0},{"id":2,"prop":{"phenotipsId":"P0000001"}}],"probandNodeID":-1}`,
			want:    `{"GG":[{"id":0},{"id":2,"prop":{"phenotipsId":"P0000001"}}],"probandNodeID":2,"JSON_version":"1.0"}`,
		},
		{
			name:    "linked node becomes proband",
			subject: "P0000001",
			input:   `{"GG":[{"id":0},{"id":2,"prop":{"phenotipsId":"P0000001"}}]}`,
			want:    `{"GG":[{"id":0},{"id":2,"prop":{"phenotipsId":"P0000001"}}],"probandNodeID":2,"JSON_version":"1.0"}`,
		},
		{
			name:    "linked node with recorded proband",
			subject: "P0000001",
			input:   `{"GG":[{"id":0},{"id":2,"prop":{"phenotipsId":"P0000001"}}],"probandNodeID":2}`,
			want:    `{"GG":[{"id":0},{"id":2,"prop":{"phenotipsId":"P0000001"}}],"probandNodeID":2,"JSON_version":"1.0"}`,
		},
		{
			name:     "assumed proband linked elsewhere",
			subject:  "P0000001",
			input:    `{"GG":[{"id":0,"prop":{"phenotipsId":"P0000009"}}]}`,
			want:     `{"GG":[{"id":0,"prop":{"phenotipsId":"P0000009"}}],"JSON_version":"1.0"}`,
			wantWarn: []string{InconsistentProband},
		},
		{
			name:     "recorded proband missing",
			subject:  "P0000001",
			input:    `{"GG":[{"id":0}],"probandNodeID":7}`,
			want:     `{"GG":[{"id":0}],"probandNodeID":7,"JSON_version":"1.0"}`,
			wantWarn: []string{"Loaded pedigree has no node 7 to link to patient P0000001"},
		},
		{
			name:  "no subject",
			input: `{"GG":[{"id":0}]}`,
			want:  `{"GG":[{"id":0}],"JSON_version":"1.0"}`,
		},
		{
			name:    "alias node array",
			subject: "P0000001",
			input:   `{"graph":[{"id":0}]}`,
			want:    `{"graph":[{"id":0,"prop":{"phenotipsId":"P0000001"}}],"probandNodeID":0,"JSON_version":"1.0"}`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var warnings []string
			env := Env{
				SubjectID:     tc.subject,
				FamilyContext: tc.family,
				Warn:          func(msg string) { warnings = append(warnings, msg) },
				Logger:        quiet,
			}
			got, err := Apply([]byte(tc.input), env)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if diff := cmp.Diff(decode(t, []byte(tc.want)), decode(t, got)); diff != "" {
				t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tc.wantWarn, warnings); diff != "" {
				t.Errorf("warnings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyVersionedIsIdentity(t *testing.T) {
	input := []byte(`{ "JSON_version" : "1.0", "GG" : [ {"id": 0, "prop": {"isAdopted": true, "numPersons": 2, "fName": "x"}} ] }`)
	got, err := Apply(input, Env{SubjectID: "P1", Logger: quiet})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !bytes.Equal(input, got) {
		t.Errorf("Apply() = %s, want input unchanged", got)
	}
}

func TestApplyErrors(t *testing.T) {
	var pe *document.ParseError
	if _, err := Apply([]byte(`{"GG":[`), Env{Logger: quiet}); !errors.As(err, &pe) {
		t.Errorf("Apply(malformed) error = %v, want ParseError", err)
	}
	var se *document.StructuralError
	if _, err := Apply([]byte(`{"nodes":[]}`), Env{Logger: quiet}); !errors.As(err, &se) {
		t.Errorf("Apply(no nodes) error = %v, want StructuralError", err)
	}
	if _, err := Apply([]byte(`{"GG":[]}`), Env{Logger: quiet}); err != nil {
		t.Errorf("Apply(empty graph) error = %v", err)
	}
}

func TestRun(t *testing.T) {
	boom := errors.New("boom")
	ms := []Migration{
		{Comment: "first", Introduced: "A", Transform: func(doc document.Document, env Env) error {
			doc["a"] = true
			return nil
		}},
		{Comment: "skipped", Introduced: "B", Transform: func(doc document.Document, env Env) error {
			doc["b"] = true
			return ErrSkip
		}},
		{Comment: "third", Introduced: "C", Transform: func(doc document.Document, env Env) error {
			doc["c"] = true
			return nil
		}},
	}
	var buf bytes.Buffer
	doc, applied, err := Run(ms, document.Document{}, Env{Logger: log.New(&buf, "", 0)})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if diff := cmp.Diff([]string{"first", "third"}, applied); diff != "" {
		t.Errorf("applied mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(document.Document{"a": true, "c": true}, doc); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
	wantLog := "[update #0] [updating to A version] - performing first update\n" +
		"[update #2] [updating to C version] - performing third update\n"
	if diff := cmp.Diff(wantLog, buf.String()); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}

	failing := append([]Migration{}, ms[0], Migration{Comment: "bad", Transform: func(doc document.Document, env Env) error {
		doc["partial"] = true
		return boom
	}})
	input := document.Document{"x": "y"}
	_, applied, err = Run(failing, input, Env{Logger: quiet})
	if !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want %v", err, boom)
	}
	if !strings.Contains(err.Error(), "performing bad update") {
		t.Errorf("Run() error = %q, want update name", err)
	}
	if diff := cmp.Diff([]string{"first"}, applied); diff != "" {
		t.Errorf("applied mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(document.Document{"x": "y"}, input); diff != "" {
		t.Errorf("input mutated (-want +got):\n%s", diff)
	}
}

func TestAllOrder(t *testing.T) {
	var got []string
	for _, m := range All {
		got = append(got, m.Introduced)
	}
	want := []string{"May2014", "Nov2014", "Mar2015", document.CurrentVersion}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("All order mismatch (-want +got):\n%s", diff)
	}
}

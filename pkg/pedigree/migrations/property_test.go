// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/pedigreekit/pedigree/pkg/pedigree/document"
)

const propertySubject = "P0000042"

// legacyDoc builds a document with one node per name. Nodes get ids 0, 2, 4, ...
// Adoption flags and group names are attached to the leading nodes when given.
func legacyDoc(names []string, adopted []bool, groups []string) map[string]any {
	var nodes []any
	for i, name := range names {
		p := map[string]any{"name": name}
		if i < len(adopted) {
			p["isAdopted"] = adopted[i]
		}
		if i < len(groups) {
			p["numPersons"] = i + 2
			p["fName"] = groups[i]
		}
		nodes = append(nodes, map[string]any{"id": 2 * i, "prop": p})
	}
	if nodes == nil {
		nodes = []any{}
	}
	return map[string]any{"GG": nodes, "settings": map[string]any{"zoom": 1}}
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func decodeAny(b []byte) any {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return v
}

func TestMigrationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("versioned documents are returned unchanged", prop.ForAll(
		func(names []string, adopted []bool, groups []string) bool {
			doc := legacyDoc(names, adopted, groups)
			doc[document.VersionKey] = "1.0"
			input := mustMarshal(doc)
			out, err := Apply(input, Env{SubjectID: propertySubject, Logger: quiet})
			return err == nil && bytes.Equal(input, out)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.Bool()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("clean legacy documents only gain a version", prop.ForAll(
		func(names []string, linked int, family bool) bool {
			doc := legacyDoc(names, nil, nil)
			if family {
				doc[document.ProbandKey] = document.NoProband
			} else {
				k := linked % len(names)
				node := doc["GG"].([]any)[k].(map[string]any)
				node["prop"].(map[string]any)[document.PatientLinkProp] = propertySubject
				doc[document.ProbandKey] = 2 * k
			}
			input := mustMarshal(doc)
			out, err := Apply(input, Env{SubjectID: propertySubject, FamilyContext: family, Logger: quiet})
			if err != nil {
				return false
			}
			got, ok := decodeAny(out).(map[string]any)
			if !ok || got[document.VersionKey] != document.CurrentVersion {
				return false
			}
			delete(got, document.VersionKey)
			return cmp.Equal(decodeAny(input), any(got))
		},
		gen.SliceOf(gen.AlphaString()).SuchThat(func(v []string) bool { return len(v) > 0 }),
		gen.IntRange(0, 1000),
		gen.Bool(),
	))

	properties.Property("migration is idempotent", prop.ForAll(
		func(names []string, adopted []bool, groups []string, family bool) bool {
			input := mustMarshal(legacyDoc(names, adopted, groups))
			env := Env{SubjectID: propertySubject, FamilyContext: family, Logger: quiet}
			once, err := Apply(input, env)
			if err != nil {
				return false
			}
			twice, err := Apply(once, env)
			return err == nil && bytes.Equal(once, twice)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.Bool()),
		gen.SliceOf(gen.AlphaString()),
		gen.Bool(),
	))

	properties.Property("no node keeps a deprecated property", prop.ForAll(
		func(names []string, adopted []bool, groups []string) bool {
			out, err := Apply(mustMarshal(legacyDoc(names, adopted, groups)), Env{FamilyContext: true, Logger: quiet})
			if err != nil {
				return false
			}
			d, err := document.Parse(out)
			if err != nil {
				return false
			}
			nodes, err := d.Nodes()
			if err != nil {
				return false
			}
			for _, n := range nodes {
				p, _ := document.Props(n, false)
				if _, ok := p[isAdoptedProp]; ok {
					return false
				}
				if _, group := p[numPersonsProp]; group {
					if _, ok := p[fNameProp]; ok {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.Bool()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"fmt"

	"github.com/pedigreekit/pedigree/pkg/pedigree/document"
)

// InconsistentProband is the warning raised when the node assumed to be the
// proband is already linked to another patient.
const InconsistentProband = "Loaded pedigree is inconsistent - assumed proband node is linked to a different patient"

// Legacy and current node properties.
const (
	numPersonsProp    = "numPersons"
	fNameProp         = "fName"
	commentsProp      = "comments"
	isAdoptedProp     = "isAdopted"
	adoptedStatusProp = "adoptedStatus"
	adoptedIn         = "adoptedIn"
)

// versioned documents were written after every update in All existed.
func versioned(doc document.Document) bool {
	_, ok := doc.Version()
	return ok
}

// groupNodeComments moves the free-text name of group nodes into their comments.
func groupNodeComments(doc document.Document, env Env) error {
	if versioned(doc) {
		return ErrSkip
	}
	nodes, err := doc.Nodes()
	if err != nil {
		return err
	}
	var changed bool
	for _, n := range nodes {
		prop, ok := document.Props(n, false)
		if !ok {
			continue
		}
		if _, group := prop[numPersonsProp]; !group {
			continue
		}
		name, ok := prop[fNameProp]
		if !ok {
			continue
		}
		comments, hasComments := prop[commentsProp]
		switch {
		case name == "":
		case !hasComments:
			prop[commentsProp] = name
		case fmt.Sprint(comments) != fmt.Sprint(name):
			prop[commentsProp] = fmt.Sprintf("%v\n%v", comments, name)
		}
		delete(prop, fNameProp)
		changed = true
	}
	if !changed {
		return ErrSkip
	}
	return nil
}

// adoptedStatus replaces the boolean adoption flag with the adoption status.
func adoptedStatus(doc document.Document, env Env) error {
	if versioned(doc) {
		return ErrSkip
	}
	nodes, err := doc.Nodes()
	if err != nil {
		return err
	}
	var changed bool
	for _, n := range nodes {
		prop, ok := document.Props(n, false)
		if !ok {
			continue
		}
		v, ok := prop[isAdoptedProp]
		if !ok {
			continue
		}
		if adopted, _ := v.(bool); adopted {
			prop[adoptedStatusProp] = adoptedIn
		}
		delete(prop, isAdoptedProp)
		changed = true
	}
	if !changed {
		return ErrSkip
	}
	return nil
}

// probandLink records which node is the proband and links it to the subject.
func probandLink(doc document.Document, env Env) error {
	if versioned(doc) {
		return ErrSkip
	}
	recorded, hasRecorded, err := doc.ProbandID()
	if err != nil {
		return err
	}
	if env.FamilyContext {
		if hasRecorded {
			return ErrSkip
		}
		doc[document.ProbandKey] = document.NoProband
		return nil
	}
	if env.SubjectID == "" {
		return ErrSkip
	}
	// The no-proband marker only has meaning for families.
	if recorded == document.NoProband {
		hasRecorded = false
	}
	nodes, err := doc.Nodes()
	if err != nil {
		return err
	}
	for _, n := range nodes {
		prop, ok := document.Props(n, false)
		if !ok {
			continue
		}
		if link, _ := prop[document.PatientLinkProp].(string); link != env.SubjectID {
			continue
		}
		if hasRecorded {
			return ErrSkip
		}
		id, ok := document.NodeID(n)
		if !ok {
			return &document.StructuralError{Field: document.NodesKey, Reason: "linked node has no integer id"}
		}
		doc[document.ProbandKey] = id
		return nil
	}
	target := 0
	if hasRecorded {
		target = recorded
	}
	var node map[string]any
	for _, n := range nodes {
		if id, ok := document.NodeID(n); ok && id == target {
			node = n
			break
		}
	}
	if node == nil {
		env.warn(fmt.Sprintf("Loaded pedigree has no node %d to link to patient %s", target, env.SubjectID))
		return ErrSkip
	}
	prop, ok := document.Props(node, true)
	if !ok {
		return &document.StructuralError{Field: fmt.Sprintf("%s[id=%d].%s", document.NodesKey, target, document.PropKey), Reason: "prop is not an object"}
	}
	if link, _ := prop[document.PatientLinkProp].(string); link != "" {
		env.warn(InconsistentProband)
		return ErrSkip
	}
	prop[document.PatientLinkProp] = env.SubjectID
	doc[document.ProbandKey] = target
	return nil
}

// versionStamp marks the document as current. It must stay last.
func versionStamp(doc document.Document, env Env) error {
	if versioned(doc) {
		return ErrSkip
	}
	doc[document.VersionKey] = document.CurrentVersion
	return nil
}

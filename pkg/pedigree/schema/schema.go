// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the wire types exchanged with the pedigree document service.
package schema

import (
	"encoding/json"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	validate       = validator.New()
	subjectPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

func init() {
	validate.RegisterValidation("subject", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return subjectPattern.MatchString(s) && s != "." && s != ".."
	})
}

// ErrNoDocument indicates the subject has no stored pedigree.
var ErrNoDocument = errors.New("no pedigree document")

// Error types reported by the document service.
const (
	ErrorTypeInvalidID        = "invalidId"
	ErrorTypeDuplicate        = "duplicate"
	ErrorTypeInvalidUpdate    = "invalidUpdate"
	ErrorTypeNoFamily         = "noFamily"
	ErrorTypePermissions      = "permissions"
	ErrorTypeExistingPedigree = "existingPedigree"
	ErrorTypePedigreeConflict = "pedigreeConflict"
)

// LoadRequest fetches the stored pedigree of a patient or family.
type LoadRequest struct {
	ID string `form:"id,required" validate:"required,max=128,subject"`
}

func (req LoadRequest) Validate() error {
	return validate.Struct(req)
}

// SaveRequest stores a pedigree for a patient or family.
type SaveRequest struct {
	// Proband is the patient or family the pedigree is saved for.
	Proband string `form:"proband,required" validate:"required,max=128,subject"`
	// JSON is the serialized pedigree document.
	JSON string `form:"json,required" validate:"required"`
	// Image is the rendered SVG.
	Image string `form:"image"`
}

func (req SaveRequest) Validate() error {
	if err := validate.Struct(req); err != nil {
		return err
	}
	if !json.Valid([]byte(req.JSON)) {
		return errors.New("json is not a valid JSON document")
	}
	return nil
}

// PatientRequest fetches a patient record.
type PatientRequest struct {
	ID string `form:"id,required" validate:"required,max=128,subject"`
}

func (req PatientRequest) Validate() error {
	return validate.Struct(req)
}

// StatusResponse is the reply to a SaveRequest.
type StatusResponse struct {
	Error        bool   `json:"error"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	ErrorType    string `json:"errorType,omitempty"`
	// Revision identifies the stored document on success.
	Revision string `json:"revision,omitempty"`
}

// Sex values of a patient record.
const (
	SexMale    = "M"
	SexFemale  = "F"
	SexOther   = "O"
	SexUnknown = "U"
)

// Name is a patient's name.
type Name struct {
	FirstName string `json:"first_name,omitempty" firestore:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty" firestore:"last_name,omitempty"`
}

// Patient is the subject metadata shown on the proband node.
type Patient struct {
	ID         string `json:"id" firestore:"id"`
	ExternalID string `json:"external_id,omitempty" firestore:"external_id,omitempty"`
	Name       Name   `json:"patient_name,omitempty" firestore:"patient_name,omitempty"`
	Sex        string `json:"sex,omitempty" firestore:"sex,omitempty"`
	// FamilyID is the family the patient belongs to, if any.
	FamilyID string `json:"family_id,omitempty" firestore:"family_id,omitempty"`
}

// Family groups patients that share one pedigree.
type Family struct {
	ID      string   `json:"id" firestore:"id"`
	Members []string `json:"members,omitempty" firestore:"members,omitempty"`
}

// ValidateSubject checks that an identifier is safe to use as a storage key.
func ValidateSubject(id string) error {
	return validate.Var(id, "required,max=128,subject")
}

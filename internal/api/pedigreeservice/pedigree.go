// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package pedigreeservice implements the pedigree document service.
package pedigreeservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"slices"

	"github.com/google/uuid"
	"github.com/pedigreekit/pedigree/internal/api"
	"github.com/pedigreekit/pedigree/internal/metrics"
	"github.com/pedigreekit/pedigree/internal/patients"
	"github.com/pedigreekit/pedigree/pkg/pedigree/document"
	"github.com/pedigreekit/pedigree/pkg/pedigree/schema"
	"github.com/pedigreekit/pedigree/pkg/pedigree/store"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
)

type Deps struct {
	Store    store.Store
	Patients patients.Repository
	Metrics  *metrics.Registry
	// NewRevision mints revision ids. Defaults to random UUIDs.
	NewRevision func() string
}

func (d *Deps) revision() string {
	if d.NewRevision != nil {
		return d.NewRevision()
	}
	return uuid.NewString()
}

// Load returns the stored document for a patient or family, or nil when the
// subject exists but has no pedigree yet.
func Load(ctx context.Context, req schema.LoadRequest, deps *Deps) (*json.RawMessage, error) {
	data, err := store.ReadAll(ctx, deps.Store, store.DocumentKind.For(req.ID))
	switch {
	case err == nil:
		raw := json.RawMessage(data)
		return &raw, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, api.AsStatus(codes.Internal, errors.Wrap(err, "reading pedigree"))
	}
	if _, _, err := resolve(ctx, req.ID, deps.Patients); err != nil {
		if errors.Is(err, patients.ErrNotFound) {
			return nil, api.AsStatus(codes.NotFound, errors.Errorf("unknown patient or family %s", req.ID))
		}
		return nil, api.AsStatus(codes.Internal, err)
	}
	return nil, nil
}

// Patient returns a patient record.
func Patient(ctx context.Context, req schema.PatientRequest, deps *Deps) (*schema.Patient, error) {
	p, err := deps.Patients.Patient(ctx, req.ID)
	if errors.Is(err, patients.ErrNotFound) {
		return nil, api.AsStatus(codes.NotFound, errors.Errorf("unknown patient %s", req.ID))
	} else if err != nil {
		return nil, api.AsStatus(codes.Internal, errors.Wrap(err, "reading patient"))
	}
	return p, nil
}

// resolve finds the family a save applies to. For a patient outside any
// family, fam is nil and patient is set.
func resolve(ctx context.Context, id string, repo patients.Repository) (fam *schema.Family, patient *schema.Patient, err error) {
	fam, err = repo.Family(ctx, id)
	if err == nil {
		return fam, nil, nil
	} else if !errors.Is(err, patients.ErrNotFound) {
		return nil, nil, err
	}
	patient, err = repo.Patient(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if patient.FamilyID == "" {
		return nil, patient, nil
	}
	fam, err = repo.Family(ctx, patient.FamilyID)
	if errors.Is(err, patients.ErrNotFound) {
		log.Printf("WARNING: patient %s references missing family %s", patient.ID, patient.FamilyID)
		return nil, patient, nil
	}
	return fam, patient, err
}

func failure(errorType, format string, args ...any) *schema.StatusResponse {
	return &schema.StatusResponse{Error: true, ErrorType: errorType, ErrorMessage: fmt.Sprintf(format, args...)}
}

// Save stores a pedigree for a patient or family. Rejections are reported in
// the response body; only infrastructure failures are returned as errors.
func Save(ctx context.Context, req schema.SaveRequest, deps *Deps) (*schema.StatusResponse, error) {
	fam, patient, err := resolve(ctx, req.Proband, deps.Patients)
	if errors.Is(err, patients.ErrNotFound) {
		return failure(schema.ErrorTypeInvalidID, "The family/patient %s is invalid", req.Proband), nil
	} else if err != nil {
		return nil, api.AsStatus(codes.Internal, errors.Wrap(err, "resolving subject"))
	}
	p, err := document.Deserialize([]byte(req.JSON))
	if err != nil {
		return failure(schema.ErrorTypeInvalidUpdate, "The pedigree could not be read: %v", err), nil
	}
	if p.Version != document.CurrentVersion {
		log.Printf("WARNING: saving pedigree for %s with JSON_version %q, expected %q", req.Proband, p.Version, document.CurrentVersion)
	}
	if fam == nil {
		if err := deps.put(ctx, patient.ID, req); err != nil {
			return nil, api.AsStatus(codes.Internal, err)
		}
		return &schema.StatusResponse{Revision: deps.revision()}, nil
	}
	return saveFamily(ctx, fam, p, req, deps)
}

func saveFamily(ctx context.Context, fam *schema.Family, p *document.Pedigree, req schema.SaveRequest, deps *Deps) (*schema.StatusResponse, error) {
	updated := p.PatientLinks()
	seen := map[string]bool{}
	for _, m := range updated {
		if seen[m] {
			return failure(schema.ErrorTypeDuplicate, "There is a duplicate link for patient %s", m), nil
		}
		seen[m] = true
	}
	// The editor sometimes links the family record itself.
	updated = slices.DeleteFunc(updated, func(m string) bool { return m == fam.ID })
	if len(updated) == 0 {
		return failure(schema.ErrorTypeInvalidUpdate, "The family has no members. Please specify at least one patient link."), nil
	}
	members := make(map[string]*schema.Patient, len(updated))
	for _, id := range updated {
		resp, member, err := canAddToFamily(ctx, fam, id, deps)
		if err != nil {
			return nil, api.AsStatus(codes.Internal, err)
		}
		if resp != nil {
			return resp, nil
		}
		members[id] = member
	}
	for _, id := range updated {
		if err := deps.put(ctx, id, req); err != nil {
			return nil, api.AsStatus(codes.Internal, err)
		}
	}
	if err := deps.put(ctx, fam.ID, req); err != nil {
		return nil, api.AsStatus(codes.Internal, err)
	}
	for _, id := range fam.Members {
		if seen[id] {
			continue
		}
		if err := deps.setFamily(ctx, id, ""); err != nil {
			return nil, api.AsStatus(codes.Internal, err)
		}
		log.Printf("Removed %s from family %s", id, fam.ID)
	}
	for _, id := range updated {
		if members[id].FamilyID == fam.ID {
			continue
		}
		m := *members[id]
		m.FamilyID = fam.ID
		if err := deps.Patients.PutPatient(ctx, m); err != nil {
			return nil, api.AsStatus(codes.Internal, errors.Wrapf(err, "adding %s to family", id))
		}
		log.Printf("Added %s to family %s", id, fam.ID)
	}
	fam.Members = updated
	if err := deps.Patients.PutFamily(ctx, *fam); err != nil {
		return nil, api.AsStatus(codes.Internal, errors.Wrap(err, "updating family"))
	}
	return &schema.StatusResponse{Revision: deps.revision()}, nil
}

// canAddToFamily returns a rejection when id cannot be a member of fam.
func canAddToFamily(ctx context.Context, fam *schema.Family, id string, deps *Deps) (*schema.StatusResponse, *schema.Patient, error) {
	p, err := deps.Patients.Patient(ctx, id)
	if errors.Is(err, patients.ErrNotFound) {
		return failure(schema.ErrorTypeInvalidID, "Could not find the patient document of the patient %s to be added to the family.", id), nil, nil
	} else if err != nil {
		return nil, nil, errors.Wrapf(err, "reading patient %s", id)
	}
	if p.FamilyID == fam.ID || slices.Contains(fam.Members, id) {
		return nil, p, nil
	}
	if p.FamilyID != "" {
		return failure(schema.ErrorTypePedigreeConflict, "The patient %s belongs to family %s.", id, p.FamilyID), nil, nil
	}
	if _, err := store.ReadAll(ctx, deps.Store, store.DocumentKind.For(id)); err == nil {
		return failure(schema.ErrorTypeExistingPedigree, "The patient %s to be added to the family has an existing pedigree.", id), nil, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}
	return nil, p, nil
}

func (d *Deps) put(ctx context.Context, subject string, req schema.SaveRequest) error {
	if err := store.WriteAll(ctx, d.Store, store.DocumentKind.For(subject), []byte(req.JSON)); err != nil {
		return errors.Wrapf(err, "storing pedigree for %s", subject)
	}
	d.Metrics.RecordStored(string(store.DocumentKind))
	if req.Image == "" {
		return nil
	}
	if err := store.WriteAll(ctx, d.Store, store.ImageKind.For(subject), []byte(req.Image)); err != nil {
		return errors.Wrapf(err, "storing image for %s", subject)
	}
	d.Metrics.RecordStored(string(store.ImageKind))
	return nil
}

func (d *Deps) setFamily(ctx context.Context, id, family string) error {
	p, err := d.Patients.Patient(ctx, id)
	if errors.Is(err, patients.ErrNotFound) {
		return nil
	} else if err != nil {
		return errors.Wrapf(err, "reading patient %s", id)
	}
	p.FamilyID = family
	return errors.Wrapf(d.Patients.PutPatient(ctx, *p), "updating patient %s", id)
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package patients

import (
	"context"
	stderrors "errors"

	"cloud.google.com/go/firestore"
	"github.com/pedigreekit/pedigree/pkg/pedigree/schema"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	patientsCollection = "patients"
	familiesCollection = "families"
)

// FirestoreRepository stores records in the "patients" and "families" collections.
type FirestoreRepository struct {
	client *firestore.Client
}

// NewFirestoreRepository creates a repository for the given project.
func NewFirestoreRepository(ctx context.Context, project string) (*FirestoreRepository, error) {
	if project == "" {
		return nil, errors.New("empty project provided")
	}
	client, err := firestore.NewClient(ctx, project)
	if err != nil {
		return nil, errors.Wrap(err, "creating firestore client")
	}
	return &FirestoreRepository{client: client}, nil
}

func (f *FirestoreRepository) Close() error { return f.client.Close() }

func (f *FirestoreRepository) get(ctx context.Context, collection, id string, out any) error {
	if err := schema.ValidateSubject(id); err != nil {
		return stderrors.Join(err, ErrNotFound)
	}
	doc, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return errors.Wrapf(stderrors.Join(err, ErrNotFound), "%s/%s", collection, id)
	} else if err != nil {
		return errors.Wrapf(err, "getting %s/%s", collection, id)
	}
	return errors.Wrapf(doc.DataTo(out), "decoding %s/%s", collection, id)
}

func (f *FirestoreRepository) Patient(ctx context.Context, id string) (*schema.Patient, error) {
	var p schema.Patient
	if err := f.get(ctx, patientsCollection, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (f *FirestoreRepository) Family(ctx context.Context, id string) (*schema.Family, error) {
	var fam schema.Family
	if err := f.get(ctx, familiesCollection, id, &fam); err != nil {
		return nil, err
	}
	return &fam, nil
}

func (f *FirestoreRepository) PutPatient(ctx context.Context, p schema.Patient) error {
	if err := schema.ValidateSubject(p.ID); err != nil {
		return errors.Wrap(err, "invalid patient id")
	}
	_, err := f.client.Collection(patientsCollection).Doc(p.ID).Set(ctx, p)
	return errors.Wrapf(err, "setting patient %s", p.ID)
}

func (f *FirestoreRepository) PutFamily(ctx context.Context, fam schema.Family) error {
	if err := schema.ValidateSubject(fam.ID); err != nil {
		return errors.Wrap(err, "invalid family id")
	}
	_, err := f.client.Collection(familiesCollection).Doc(fam.ID).Set(ctx, fam)
	return errors.Wrapf(err, "setting family %s", fam.ID)
}

// FamilyOf returns the families that list the patient as a member.
func (f *FirestoreRepository) FamilyOf(ctx context.Context, patientID string) ([]schema.Family, error) {
	iter := f.client.Collection(familiesCollection).Where("members", "array-contains", patientID).Documents(ctx)
	defer iter.Stop()
	var out []schema.Family
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "querying families")
		}
		var fam schema.Family
		if err := doc.DataTo(&fam); err != nil {
			return nil, errors.Wrapf(err, "decoding family %s", doc.Ref.ID)
		}
		out = append(out, fam)
	}
	return out, nil
}

var _ Repository = &FirestoreRepository{}

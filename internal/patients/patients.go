// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package patients provides access to patient and family records.
package patients

import (
	"context"
	"sync"

	"github.com/pedigreekit/pedigree/internal/cache"
	"github.com/pedigreekit/pedigree/pkg/pedigree/schema"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository reads and writes patient and family records.
type Repository interface {
	Patient(ctx context.Context, id string) (*schema.Patient, error)
	Family(ctx context.Context, id string) (*schema.Family, error)
	PutPatient(ctx context.Context, p schema.Patient) error
	PutFamily(ctx context.Context, f schema.Family) error
}

// MemoryRepository is a Repository held in memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	patients map[string]schema.Patient
	families map[string]schema.Family
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{patients: map[string]schema.Patient{}, families: map[string]schema.Family{}}
}

func (m *MemoryRepository) Patient(_ context.Context, id string) (*schema.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "patient %s", id)
	}
	return &p, nil
}

func (m *MemoryRepository) Family(_ context.Context, id string) (*schema.Family, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.families[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "family %s", id)
	}
	f.Members = append([]string(nil), f.Members...)
	return &f, nil
}

func (m *MemoryRepository) PutPatient(_ context.Context, p schema.Patient) error {
	if err := schema.ValidateSubject(p.ID); err != nil {
		return errors.Wrap(err, "invalid patient id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
	return nil
}

func (m *MemoryRepository) PutFamily(_ context.Context, f schema.Family) error {
	if err := schema.ValidateSubject(f.ID); err != nil {
		return errors.Wrap(err, "invalid family id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f.Members = append([]string(nil), f.Members...)
	m.families[f.ID] = f
	return nil
}

var _ Repository = &MemoryRepository{}

// CachedRepository caches reads of another Repository. Writes go through
// and invalidate the cached record.
type CachedRepository struct {
	Repository
	patients cache.Coalescing[string, *schema.Patient]
	families cache.Coalescing[string, *schema.Family]
}

func NewCachedRepository(r Repository) *CachedRepository {
	return &CachedRepository{Repository: r}
}

func (c *CachedRepository) Patient(ctx context.Context, id string) (*schema.Patient, error) {
	p, err := c.patients.GetOrSet(id, func() (*schema.Patient, error) {
		return c.Repository.Patient(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}

func (c *CachedRepository) Family(ctx context.Context, id string) (*schema.Family, error) {
	f, err := c.families.GetOrSet(id, func() (*schema.Family, error) {
		return c.Repository.Family(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	cp := *f
	cp.Members = append([]string(nil), f.Members...)
	return &cp, nil
}

func (c *CachedRepository) PutPatient(ctx context.Context, p schema.Patient) error {
	defer c.patients.Del(p.ID)
	return c.Repository.PutPatient(ctx, p)
}

func (c *CachedRepository) PutFamily(ctx context.Context, f schema.Family) error {
	defer c.families.Del(f.ID)
	return c.Repository.PutFamily(ctx, f)
}

var _ Repository = &CachedRepository{}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// pedigree-api serves stored pedigree documents and patient records.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/pedigreekit/pedigree/internal/api"
	"github.com/pedigreekit/pedigree/internal/api/pedigreeservice"
	"github.com/pedigreekit/pedigree/internal/metrics"
	"github.com/pedigreekit/pedigree/internal/patients"
	"github.com/pedigreekit/pedigree/pkg/pedigree/client"
	"github.com/pedigreekit/pedigree/pkg/pedigree/store"
	"github.com/pkg/errors"
)

var (
	port      = flag.Int("port", 8080, "port on which to serve")
	storeURI  = flag.String("store", "file://pedigrees", "URI of the document store (file://, gs://, s3://, sqlite://, postgres://)")
	project   = flag.String("project", "", "GCP project of the Firestore patient repository; empty uses an in-memory repository")
	cacheRepo = flag.Bool("cache-patients", true, "whether to cache patient and family reads")
)

func PedigreeInit(ctx context.Context, reg *metrics.Registry) (*pedigreeservice.Deps, error) {
	d := pedigreeservice.Deps{Metrics: reg}
	var err error
	d.Store, err = store.Open(ctx, *storeURI)
	if err != nil {
		return nil, errors.Wrap(err, "opening store")
	}
	if *project != "" {
		d.Patients, err = patients.NewFirestoreRepository(ctx, *project)
		if err != nil {
			return nil, errors.Wrap(err, "creating patient repository")
		}
	} else {
		log.Println("No project provided, using an in-memory patient repository")
		d.Patients = patients.NewMemoryRepository()
	}
	if *cacheRepo {
		d.Patients = patients.NewCachedRepository(d.Patients)
	}
	return &d, nil
}

// once shares one set of dependencies across requests. Failed
// initializations are retried on the next request.
func once[D api.Deps](init api.InitDeps[D]) api.InitDeps[D] {
	var mu sync.Mutex
	var d D
	var done bool
	return func(ctx context.Context) (D, error) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return d, nil
		}
		v, err := init(ctx)
		if err != nil {
			return v, err
		}
		d, done = v, true
		return d, nil
	}
}

func newMux(initDeps api.InitDeps[*pedigreeservice.Deps], reg *metrics.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /"+client.PedigreePath, reg.Instrument("load", api.Handler(initDeps, pedigreeservice.Load)))
	mux.Handle("POST /"+client.PedigreePath, reg.Instrument("save", api.Handler(initDeps, pedigreeservice.Save)))
	mux.Handle("GET /"+client.PatientPath, reg.Instrument("patient", api.Handler(initDeps, pedigreeservice.Patient)))
	mux.Handle("GET /metrics", reg.Handler())
	return mux
}

func main() {
	flag.Parse()
	reg := metrics.NewRegistry()
	initDeps := once(func(ctx context.Context) (*pedigreeservice.Deps, error) {
		return PedigreeInit(ctx, reg)
	})
	mux := newMux(initDeps, reg)
	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Serving on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalln(err)
	}
}

// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package firestoretest runs the Firestore emulator for tests.
package firestoretest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/pkg/errors"
)

const (
	pollInterval    = 300 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

// Emulator is a running Firestore emulator.
type Emulator struct {
	Addr string
	cmd  *exec.Cmd
	done chan struct{}
}

// Available reports whether the emulator can be started on this machine.
func Available() bool {
	_, err := exec.LookPath("gcloud")
	return err == nil
}

// Start launches the emulator, points FIRESTORE_EMULATOR_HOST at it for the
// rest of the test and blocks until it accepts connections. The test is
// skipped when gcloud is not installed.
func Start(ctx context.Context, t *testing.T) *Emulator {
	t.Helper()
	if !Available() {
		t.Skip("gcloud not installed")
	}
	addr, err := freeAddr()
	if err != nil {
		t.Fatalf("allocating emulator port: %v", err)
	}
	e := &Emulator{
		Addr: addr,
		cmd:  exec.Command("gcloud", "emulators", "firestore", "start", "--host-port="+addr),
		done: make(chan struct{}),
	}
	e.cmd.Stdout = os.Stderr
	e.cmd.Stderr = os.Stderr
	if err := e.cmd.Start(); err != nil {
		t.Fatalf("starting firestore emulator: %v", err)
	}
	go func() {
		e.cmd.Wait()
		close(e.done)
	}()
	t.Cleanup(func() { e.stop(t) })
	t.Setenv("FIRESTORE_EMULATOR_HOST", addr)
	if err := e.wait(ctx); err != nil {
		t.Fatalf("waiting for firestore emulator: %v", err)
	}
	return e
}

func freeAddr() (string, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return "", err
	}
	defer l.Close()
	return fmt.Sprintf("localhost:%d", l.Addr().(*net.TCPAddr).Port), nil
}

func (e *Emulator) wait(ctx context.Context) error {
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for {
		if c, err := net.Dial("tcp", e.Addr); err == nil {
			c.Close()
			return nil
		}
		select {
		case <-tick.C:
		case <-e.done:
			return errors.Errorf("emulator exited: %s", e.cmd.ProcessState)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Emulator) stop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+e.Addr+"/shutdown", nil)
	if resp, err := http.DefaultClient.Do(req); err != nil {
		t.Logf("emulator shutdown request: %v", err)
	} else {
		resp.Body.Close()
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		t.Log("emulator did not exit, killing it")
		e.cmd.Process.Kill()
	}
}

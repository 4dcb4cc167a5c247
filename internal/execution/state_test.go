package execution

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func discardLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestNewStartsAdmitted(t *testing.T) {
	e := New(Batch)
	if e.State() != Admitted {
		t.Errorf("State() = %v, want Admitted", e.State())
	}
	if e.ID == "" {
		t.Error("expected a non-empty id")
	}
}

func TestSetStateTransitions(t *testing.T) {
	e := New(Interactive)
	order := []State{Preparing, Starting, Running, Draining, Cleanup}
	for _, s := range order {
		e.SetState(s)
		if e.State() != s {
			t.Fatalf("State() = %v, want %v", e.State(), s)
		}
	}
}

func TestRunCleanupRunsLIFO(t *testing.T) {
	e := New(Batch)
	var order []string

	e.Defer("first", func() error { order = append(order, "first"); return nil })
	e.Defer("second", func() error { order = append(order, "second"); return nil })
	e.Defer("third", func() error { order = append(order, "third"); return nil })

	e.RunCleanup(discardLogger())

	want := []string{"third", "second", "first"}
	if len(order) != len(want) {
		t.Fatalf("ran %d cleanup steps, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestRunCleanupSurvivesErrorsAndPanics(t *testing.T) {
	e := New(Batch)
	var ran []string

	e.Defer("panics", func() error { panic("boom") })
	e.Defer("errors", func() error { return errors.New("cleanup failed") })
	e.Defer("ok", func() error { ran = append(ran, "ok"); return nil })

	e.RunCleanup(discardLogger())

	if len(ran) != 1 || ran[0] != "ok" {
		t.Errorf("expected the ok step to still run, got %v", ran)
	}
	if e.State() != Done {
		t.Errorf("State() after RunCleanup = %v, want Done", e.State())
	}
}

func TestRunCleanupEmptyStackStillReachesDone(t *testing.T) {
	e := New(Batch)
	e.RunCleanup(discardLogger())
	if e.State() != Done {
		t.Errorf("State() = %v, want Done", e.State())
	}
}

func TestDeadlineRoundTrips(t *testing.T) {
	e := New(Batch)
	if !e.Deadline().IsZero() {
		t.Error("expected zero deadline before SetDeadline")
	}
	d := time.Unix(1700000000, 0)
	e.SetDeadline(d)
	if !e.Deadline().Equal(d) {
		t.Errorf("Deadline() = %v, want %v", e.Deadline(), d)
	}
}

func TestExitCodeRoundTrips(t *testing.T) {
	e := New(Batch)
	e.SetExitCode(137)
	if e.ExitCode() != 137 {
		t.Errorf("ExitCode() = %d, want 137", e.ExitCode())
	}
}

func TestContainerIDRoundTrips(t *testing.T) {
	e := New(Batch)
	if e.ContainerID() != "" {
		t.Error("expected empty container id before SetContainerID")
	}
	e.SetContainerID("abc123")
	if e.ContainerID() != "abc123" {
		t.Errorf("ContainerID() = %q, want abc123", e.ContainerID())
	}
}

package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/itstheanurag/executioner/internal/languages"
	"github.com/itstheanurag/executioner/internal/sandbox/sandboxtest"
)

// recordingEvents captures every callback in arrival order so tests can
// assert spec.md §8 property 4: exactly one start, one complete, start
// before every output, output before complete.
type recordingEvents struct {
	mu     sync.Mutex
	events []string
	status string
	code   int
	inputs []string
}

func (r *recordingEvents) Start(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "start")
}

func (r *recordingEvents) Output(data []byte, stderr bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "output")
	r.inputs = append(r.inputs, string(data))
}

func (r *recordingEvents) Complete(status string, exitCode int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "complete")
	r.status = status
	r.code = exitCode
}

func (r *recordingEvents) Error(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "error:"+message)
}

func (r *recordingEvents) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func TestInteractiveStartEmitsStartBeforeCompletion(t *testing.T) {
	registry := languages.NewRegistry(languages.Default())
	driver := sandboxtest.NewDriver()
	driver.Default = sandboxtest.Program{Stdout: "ready\n", ExitCode: 0}

	ix := NewInteractive(registry, driver, discardLogger(), testConfig())
	events := &recordingEvents{}

	_, err := ix.Start(context.Background(), "python", "print('ready')", events)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if contains(events.snapshot(), "complete") {
			break
		}
		time.Sleep(time.Millisecond)
	}

	seq := events.snapshot()
	if len(seq) == 0 || seq[0] != "start" {
		t.Fatalf("first event = %v, want start first (sequence: %v)", seq, seq)
	}
	if seq[len(seq)-1] != "complete" {
		t.Fatalf("last event = %v, want complete last (sequence: %v)", seq, seq)
	}
	if events.status != StatusSuccess {
		t.Errorf("status = %q, want success", events.status)
	}
}

func TestInteractiveInputRoutedOnlyWithMatchingExecutionID(t *testing.T) {
	registry := languages.NewRegistry(languages.Default())
	driver := sandboxtest.NewDriver()
	driver.Default = sandboxtest.Program{EchoStdin: true, ExitCode: 0, Delay: 20 * time.Millisecond}

	ix := NewInteractive(registry, driver, discardLogger(), testConfig())
	events := &recordingEvents{}

	session, err := ix.Start(context.Background(), "python", "x = input()", events)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The stream isn't attached the instant Start returns, so resend both
	// messages until the container's delay (20ms) has surely elapsed.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		// Wrong execution id: must be silently dropped, never delivered.
		session.Input("not-this-session", "wrong\n")
		// Correct id: delivered.
		session.Input(session.ID, "correct\n")
		if contains(events.snapshot(), "complete") {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	found := false
	for _, s := range events.inputs {
		if s == "correct\n" {
			found = true
		}
		if s == "wrong\n" {
			t.Errorf("mismatched-execution-id input was delivered: %q", s)
		}
	}
	if !found {
		t.Error("expected the matching-execution-id input to be echoed back")
	}
}

func TestInteractiveDeadlineExceededEmitsTimeoutNotice(t *testing.T) {
	registry := languages.NewRegistry(languages.Default())
	driver := sandboxtest.NewDriver()
	driver.Default = sandboxtest.Program{HangForever: true}

	cfg := testConfig()
	cfg.InteractiveDeadline = 50 * time.Millisecond

	ix := NewInteractive(registry, driver, discardLogger(), cfg)
	events := &recordingEvents{}

	_, err := ix.Start(context.Background(), "python", "while True: pass", events)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if contains(events.snapshot(), "complete") {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if events.status != StatusError {
		t.Errorf("status = %q, want error after a forced stop", events.status)
	}

	found := false
	for _, s := range events.inputs {
		if s == "\nexecution timed out\n" {
			found = true
		}
	}
	if !found {
		t.Error("expected a timeout notice on stderr")
	}
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}

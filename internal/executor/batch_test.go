package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/itstheanurag/executioner/internal/languages"
	"github.com/itstheanurag/executioner/internal/sandbox/sandboxtest"
)

func discardLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func testConfig() Config {
	return Config{
		BatchDeadline:       500 * time.Millisecond,
		BatchStdinDeadline:  500 * time.Millisecond,
		InteractiveDeadline: 2 * time.Second,
		StopGrace:           50 * time.Millisecond,
	}
}

func TestBatchExecuteHelloWorld(t *testing.T) {
	registry := languages.NewRegistry(languages.Default())
	driver := sandboxtest.NewDriver()
	driver.Default = sandboxtest.Program{Stdout: "hello\n", ExitCode: 0}

	b := NewBatch(registry, driver, discardLogger(), testConfig())

	res, err := b.Execute(context.Background(), Request{
		LanguageTag: "python",
		Source:      "print('hello')",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Errorf("Status = %q, want success", res.Status)
	}
	if res.Output != "hello\n" {
		t.Errorf("Output = %q, want %q", res.Output, "hello\n")
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if res.ExecutionID == "" {
		t.Error("expected a non-empty execution id")
	}
}

func TestBatchExecuteWithPipedStdin(t *testing.T) {
	registry := languages.NewRegistry(languages.Default())
	driver := sandboxtest.NewDriver()
	driver.Default = sandboxtest.Program{Stdout: "hi there\n", ExitCode: 0}

	b := NewBatch(registry, driver, discardLogger(), testConfig())

	res, err := b.Execute(context.Background(), Request{
		LanguageTag: "python",
		Source:      "name = input()\nprint('hi ' + name)",
		Stdin:       "there",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Errorf("Status = %q, want success", res.Status)
	}
}

func TestBatchExecuteCompileErrorReturnsNonzeroExit(t *testing.T) {
	registry := languages.NewRegistry(languages.Default())
	driver := sandboxtest.NewDriver()
	driver.Default = sandboxtest.Program{Stderr: "compile error\n", ExitCode: 1}

	b := NewBatch(registry, driver, discardLogger(), testConfig())

	res, err := b.Execute(context.Background(), Request{
		LanguageTag: "go",
		Source:      "package main\nfunc main() { undefined() }",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != StatusError {
		t.Errorf("Status = %q, want error", res.Status)
	}
	if res.ExitCode == 0 {
		t.Error("expected nonzero exit code")
	}
	if !strings.Contains(res.Output, "compile error") {
		t.Errorf("Output = %q, want it to contain compile error", res.Output)
	}
}

func TestBatchExecuteUnknownLanguage(t *testing.T) {
	registry := languages.NewRegistry(languages.Default())
	driver := sandboxtest.NewDriver()

	b := NewBatch(registry, driver, discardLogger(), testConfig())

	_, err := b.Execute(context.Background(), Request{LanguageTag: "cobol", Source: "x"})
	if err == nil {
		t.Fatal("expected an error for an unknown language")
	}
}

func TestBatchExecuteDeadlineExceededStopsAndCleansUp(t *testing.T) {
	registry := languages.NewRegistry(languages.Default())
	driver := sandboxtest.NewDriver()
	driver.Default = sandboxtest.Program{HangForever: true}

	cfg := testConfig()
	cfg.BatchDeadline = 50 * time.Millisecond

	b := NewBatch(registry, driver, discardLogger(), cfg)

	res, err := b.Execute(context.Background(), Request{
		LanguageTag: "python",
		Source:      "while True: pass",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ExitCode == 0 {
		t.Error("expected a nonzero exit code after a forced stop")
	}

	if len(driver.RemovedContainers) != 1 {
		t.Errorf("removed containers = %d, want 1", len(driver.RemovedContainers))
	}
	if len(driver.RemovedImages) != 1 {
		t.Errorf("removed images = %d, want 1", len(driver.RemovedImages))
	}
}

func TestBatchExecuteBuildFailure(t *testing.T) {
	registry := languages.NewRegistry(languages.Default())
	driver := sandboxtest.NewDriver()
	driver.Default = sandboxtest.Program{BuildFails: true}

	b := NewBatch(registry, driver, discardLogger(), testConfig())

	_, err := b.Execute(context.Background(), Request{LanguageTag: "python", Source: "print(1)"})
	if err == nil {
		t.Fatal("expected a build error")
	}
}

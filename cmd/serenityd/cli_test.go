package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/j-emboi/sarcastic-serenity/internal/store"
)

// cliDBSetup creates a temp directory with an initialized store and returns
// the database path.
func cliDBSetup(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "serenity.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	st.Close()
	return dbPath
}

func runCLI(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	handled, err := RunCLI(args, dbPath, &out)
	if !handled {
		t.Fatalf("RunCLI(%v) not handled", args)
	}
	return out.String(), err
}

// ---------------------------------------------------------------------------
// RunCLI: subcommand dispatch
// ---------------------------------------------------------------------------

func TestRunCLIUnhandled(t *testing.T) {
	for _, args := range [][]string{nil, {}, {"nonexistent-cmd"}} {
		handled, err := RunCLI(args, "not-used.db", &bytes.Buffer{})
		if handled || err != nil {
			t.Errorf("RunCLI(%v) = %v, %v", args, handled, err)
		}
	}
}

func TestRunCLIVersion(t *testing.T) {
	out, err := runCLI(t, "not-used.db", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, Version) {
		t.Errorf("version output = %q", out)
	}
}

// ---------------------------------------------------------------------------
// patterns
// ---------------------------------------------------------------------------

func TestCLIPatternsListsBuiltins(t *testing.T) {
	out, err := runCLI(t, cliDBSetup(t), "patterns")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "box") || !strings.Contains(out, "4-7-8-0 x8") {
		t.Errorf("patterns output = %q", out)
	}
}

func TestCLIPatternsAddAndDelete(t *testing.T) {
	dbPath := cliDBSetup(t)

	if _, err := runCLI(t, dbPath, "patterns", "add", "slow", "5", "2", "6", "0", "3", "Slow Breath"); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, err := runCLI(t, dbPath, "patterns", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "slow") || !strings.Contains(out, "5-2-6-0 x3") {
		t.Errorf("list after add = %q", out)
	}

	if _, err := runCLI(t, dbPath, "patterns", "add", "box", "4", "4", "4", "4", "4"); !errors.Is(err, store.ErrPatternExists) {
		t.Errorf("add built-in id err = %v", err)
	}
	if _, err := runCLI(t, dbPath, "patterns", "add", "bad", "x", "4", "4", "0", "4"); err == nil {
		t.Error("add with bad duration succeeded")
	}

	if _, err := runCLI(t, dbPath, "patterns", "delete", "slow"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := runCLI(t, dbPath, "patterns", "delete", "slow"); !errors.Is(err, store.ErrPatternNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestCLIPatternsUsage(t *testing.T) {
	if _, err := runCLI(t, cliDBSetup(t), "patterns", "add", "short"); !errors.Is(err, errUsage) {
		t.Errorf("err = %v, want usage", err)
	}
}

// ---------------------------------------------------------------------------
// history
// ---------------------------------------------------------------------------

func TestCLIHistory(t *testing.T) {
	dbPath := cliDBSetup(t)

	out, err := runCLI(t, dbPath, "history")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No sessions") {
		t.Errorf("empty history = %q", out)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Unix(1_700_000_000, 0).UTC()
	if _, err := st.InsertSession(context.Background(), store.SessionRecord{
		PatternID: "box", StartedAt: start, EndedAt: start.Add(time.Minute),
		CyclesCompleted: 4, TotalCycles: 4, ElapsedSeconds: 64, Completed: true,
	}); err != nil {
		t.Fatal(err)
	}
	st.Close()

	out, err = runCLI(t, dbPath, "history", "5")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"pattern_id": "box"`) || !strings.Contains(out, `"completed": true`) {
		t.Errorf("history = %q", out)
	}

	if _, err := runCLI(t, dbPath, "history", "zero"); !errors.Is(err, errUsage) {
		t.Errorf("bad limit err = %v", err)
	}
}

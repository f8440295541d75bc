package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Harshitk-cp/selfgraph/internal/engine"
	"github.com/Harshitk-cp/selfgraph/internal/jsonx"
	"github.com/Harshitk-cp/selfgraph/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// runCLI executes args against a shared in-memory engine.
func runCLI(t *testing.T, eng *engine.Engine, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c := &cli{
		out: &out,
		open: func(ctx context.Context, opts engine.Options, logger *zap.Logger) (*engine.Engine, error) {
			if !opts.InMemory {
				t.Fatalf("expected --in-memory to reach engine options")
			}
			return eng, nil
		},
	}
	root := newRootCmd(c)
	root.SetArgs(append([]string{"--in-memory"}, args...))
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	return out.String(), err
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.Open(context.Background(), engine.Options{InMemory: true}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return eng
}

const importFile = `{
  "import_id": "cli-1",
  "fragments": [
    {"id": "7c9e6679-7425-40de-944b-e07fc1f90ae7", "text": "Terraform", "category": "tool",
     "source_conversation_id": "c1", "source_chunk_id": "k1", "message_index": 0,
     "conversation_timestamp": "2025-03-03T09:00:00Z", "attribution": "user_explicit", "raw_confidence": 0.9},
    {"id": "9b2f0c3e-1a4d-4e5f-8a6b-7c8d9e0f1a2b", "text": "terraform", "category": "tool",
     "source_conversation_id": "c2", "source_chunk_id": "k2", "message_index": 3,
     "conversation_timestamp": "2025-03-04T09:00:00Z", "attribution": "user_implied", "raw_confidence": 0.8}
  ]
}`

func TestImportCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "import.json")
	if err := os.WriteFile(path, []byte(importFile), 0o600); err != nil {
		t.Fatal(err)
	}
	eng := newEngine(t)

	out, err := runCLI(t, eng, "import", path)
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	var result service.ReconcileResult
	if err := jsonx.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not a result: %v\n%s", err, out)
	}
	if result.EntitiesCreated != 1 || result.FragmentsProcessed != 2 {
		t.Errorf("result = %+v", result)
	}
	if result.ImportID != "cli-1" {
		t.Errorf("import id = %q", result.ImportID)
	}

	out, err = runCLI(t, eng, "import", "--import-id", "cli-1", path)
	if err != nil {
		t.Fatal(err)
	}
	if err := jsonx.Unmarshal([]byte(out), &result); err != nil {
		t.Fatal(err)
	}
	if result.BatchesSkipped != 1 || result.BatchesCommitted != 0 {
		t.Errorf("resumed import = %+v, want the batch skipped", result)
	}
}

func TestImportCommand_MissingFile(t *testing.T) {
	_, err := runCLI(t, newEngine(t), "import", filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestFeedbackCommand_Errors(t *testing.T) {
	eng := newEngine(t)

	if _, err := runCLI(t, eng, "feedback", "not-a-uuid", "confirmed"); err == nil {
		t.Error("expected invalid id error")
	}
	if _, err := runCLI(t, eng, "feedback", uuid.NewString(), "confirmed"); err == nil {
		t.Error("expected not found error")
	}
	if _, err := runCLI(t, eng, "feedback", uuid.NewString(), uuid.NewString(), "confirmed"); err == nil {
		t.Error("expected an error for two ids without --card")
	}
}

func TestReadOnlyCommands(t *testing.T) {
	eng := newEngine(t)
	for _, args := range [][]string{
		{"entities"},
		{"facets"},
		{"personas"},
		{"conflicts"},
		{"suggestions", "list"},
		{"suggestions", "surface"},
		{"sweep"},
	} {
		t.Run(strings.Join(args, "_"), func(t *testing.T) {
			if out, err := runCLI(t, eng, args...); err != nil {
				t.Errorf("%v: %v\n%s", args, err, out)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, newEngine(t), "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "selfgraph dev") {
		t.Errorf("version output = %q", out)
	}
}

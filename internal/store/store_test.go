package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/j-emboi/sarcastic-serenity/internal/breathing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "serenity.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestCreateBlobAndLookup(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)

	in := BlobMetadata{
		ID:           "35e748f1-45ef-4f12-b5e3-f17fe80326b0",
		Kind:         "track",
		OriginalName: "ocean.wav",
		ContentType:  "audio/wav",
		DiskName:     "35e748f1-45ef-4f12-b5e3-f17fe80326b0",
		SizeBytes:    42,
		SampleRate:   44100,
		Channels:     2,
		DurationMS:   1500,
		CreatedAt:    time.UnixMilli(1_700_000_000_000).UTC(),
	}
	if err := st.CreateBlob(context.Background(), in); err != nil {
		t.Fatalf("create blob metadata: %v", err)
	}

	got, err := st.BlobByID(context.Background(), in.ID)
	if err != nil {
		t.Fatalf("lookup blob metadata: %v", err)
	}
	if got != in {
		t.Fatalf("blob metadata = %#v, want %#v", got, in)
	}

	list, err := st.Blobs(context.Background(), "track")
	if err != nil || len(list) != 1 {
		t.Fatalf("Blobs = %v, %v", list, err)
	}
	if _, err := st.BlobByID(context.Background(), "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("missing blob err = %v", err)
	}

	bad := in
	bad.ID, bad.DiskName, bad.DurationMS = "other", "other", -1
	if err := st.CreateBlob(context.Background(), bad); err == nil {
		t.Fatal("negative duration accepted")
	}
}

func TestCustomPatterns(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	p := breathing.Pattern{ID: "Coherent", Name: "Coherent", Category: breathing.CategoryFocus, Inhale: 5, Hold: 0.5, Exhale: 5, Cycles: 12}
	if err := st.CreatePattern(ctx, p); err != nil {
		t.Fatalf("CreatePattern: %v", err)
	}
	if err := st.CreatePattern(ctx, p); !errors.Is(err, ErrPatternExists) {
		t.Fatalf("duplicate err = %v, want ErrPatternExists", err)
	}

	got, err := st.PatternByID(ctx, "coherent")
	if err != nil {
		t.Fatalf("PatternByID: %v", err)
	}
	if got.Inhale != 5 || got.Cycles != 12 || got.Category != breathing.CategoryFocus || got.HasHold2() {
		t.Fatalf("pattern = %+v", got)
	}

	all, err := st.Patterns(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("Patterns = %v, %v", all, err)
	}

	if err := st.DeletePattern(ctx, "coherent"); err != nil {
		t.Fatalf("DeletePattern: %v", err)
	}
	if err := st.DeletePattern(ctx, "coherent"); !errors.Is(err, ErrPatternNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
	if _, err := st.PatternByID(ctx, "coherent"); !errors.Is(err, ErrPatternNotFound) {
		t.Fatalf("lookup after delete err = %v", err)
	}
}

func TestCreatePatternRejects(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		p    breathing.Pattern
		want error
	}{
		{"builtin id", breathing.Pattern{ID: "box", Inhale: 1, Hold: 1, Exhale: 1, Cycles: 1}, ErrPatternExists},
		{"missing id", breathing.Pattern{Inhale: 1, Hold: 1, Exhale: 1, Cycles: 1}, breathing.ErrInvalidPattern},
		{"zero exhale", breathing.Pattern{ID: "x", Inhale: 1, Hold: 1, Cycles: 1}, breathing.ErrInvalidPattern},
		{"no cycles", breathing.Pattern{ID: "y", Inhale: 1, Hold: 1, Exhale: 1}, breathing.ErrInvalidPattern},
	}
	for _, tt := range tests {
		if err := st.CreatePattern(ctx, tt.p); !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestSessionHistory(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	base := time.UnixMilli(1_700_000_000_000).UTC()
	for i, completed := range []bool{true, false} {
		_, err := st.InsertSession(ctx, SessionRecord{
			PatternID:       "box",
			StartedAt:       base.Add(time.Duration(i) * time.Hour),
			EndedAt:         base.Add(time.Duration(i)*time.Hour + 3*time.Minute),
			CyclesCompleted: 10 - i*7,
			TotalCycles:     10,
			ElapsedSeconds:  160,
			Completed:       completed,
			Preset:          "rain",
		})
		if err != nil {
			t.Fatalf("InsertSession: %v", err)
		}
	}

	rows, err := st.Sessions(ctx, 10)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d sessions, want 2", len(rows))
	}
	if rows[0].Completed || rows[0].CyclesCompleted != 3 {
		t.Fatalf("newest first expected, got %+v", rows[0])
	}
	if !rows[1].Completed || !rows[1].StartedAt.Equal(base) || rows[1].Preset != "rain" {
		t.Fatalf("oldest = %+v", rows[1])
	}

	if _, err := st.InsertSession(ctx, SessionRecord{}); err == nil {
		t.Fatal("expected error for missing pattern id")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/j-emboi/sarcastic-serenity/internal/breathing"
	"github.com/j-emboi/sarcastic-serenity/internal/store"
)

var errUsage = errors.New("usage")

// RunCLI handles subcommand execution. Returns true if a subcommand was handled.
func RunCLI(args []string, dbPath string, out io.Writer) (bool, error) {
	if len(args) == 0 {
		return false, nil
	}

	ctx := context.Background()
	switch args[0] {
	case "version":
		fmt.Fprintf(out, "serenityd %s\n", Version)
		return true, nil
	case "patterns":
		return true, withStore(dbPath, func(st *store.Store) error { return cliPatterns(ctx, args[1:], st, out) })
	case "history":
		return true, withStore(dbPath, func(st *store.Store) error { return cliHistory(ctx, args[1:], st, out) })
	default:
		return false, nil
	}
}

func withStore(dbPath string, fn func(*store.Store) error) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()
	return fn(st)
}

func cliPatterns(ctx context.Context, args []string, st *store.Store, out io.Writer) error {
	if len(args) == 0 || args[0] == "list" {
		for _, p := range breathing.Patterns() {
			fmt.Fprintf(out, "  %-14s %s %s\n", p.ID, timing(p), "(built-in)")
		}
		custom, err := st.Patterns(ctx)
		if err != nil {
			return err
		}
		for _, p := range custom {
			fmt.Fprintf(out, "  %-14s %s\n", p.ID, timing(p))
		}
		return nil
	}

	switch {
	case args[0] == "add" && len(args) >= 7:
		p, err := parsePatternArgs(args[1:])
		if err != nil {
			return err
		}
		if err := st.CreatePattern(ctx, p); err != nil {
			return err
		}
		fmt.Fprintf(out, "Created pattern %q\n", p.ID)
		return nil
	case args[0] == "delete" && len(args) > 1:
		if err := st.DeletePattern(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted pattern %q\n", args[1])
		return nil
	}
	return fmt.Errorf("%w: serenityd patterns [list|add <id> <inhale> <hold> <exhale> <hold2> <cycles> [name]|delete <id>]", errUsage)
}

// parsePatternArgs reads id, four phase durations in seconds, a cycle count
// and an optional display name.
func parsePatternArgs(args []string) (breathing.Pattern, error) {
	p := breathing.Pattern{ID: args[0], Category: breathing.CategoryRelaxation}
	durations := []*float64{&p.Inhale, &p.Hold, &p.Exhale, &p.Hold2}
	for i, dst := range durations {
		v, err := strconv.ParseFloat(args[1+i], 64)
		if err != nil {
			return p, fmt.Errorf("phase %d: %w", i+1, err)
		}
		*dst = v
	}
	cycles, err := strconv.Atoi(args[5])
	if err != nil {
		return p, fmt.Errorf("cycles: %w", err)
	}
	p.Cycles = cycles
	if len(args) > 6 {
		p.Name = args[6]
	}
	return p, nil
}

func timing(p breathing.Pattern) string {
	return fmt.Sprintf("%g-%g-%g-%g x%d", p.Inhale, p.Hold, p.Exhale, p.Hold2, p.Cycles)
}

func cliHistory(ctx context.Context, args []string, st *store.Store, out io.Writer) error {
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: serenityd history [limit]", errUsage)
		}
		limit = n
	}
	records, err := st.Sessions(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No sessions recorded.")
		return nil
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

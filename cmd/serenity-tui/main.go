// Command serenity-tui runs a breathing session in the terminal.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/gdamore/tcell/v2"

	"github.com/j-emboi/sarcastic-serenity/internal/breathing"
	"github.com/j-emboi/sarcastic-serenity/internal/config"
	"github.com/j-emboi/sarcastic-serenity/internal/session"
)

func main() {
	pattern := flag.String("pattern", "", "Breathing pattern ID (defaults to config)")
	outputBackend := flag.String("output", "", "Audio output backend: portaudio, speaker or none (defaults to config)")
	logPath := flag.String("log", "", "Write logs to this file instead of discarding them")
	flag.Parse()

	// The screen owns the terminal, so log lines must not reach stderr.
	log.SetOutput(io.Discard)
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	cfg := config.ApplyEnv(config.Load())
	if *pattern != "" {
		cfg.PatternID = *pattern
	}
	if *outputBackend != "" {
		cfg.OutputBackend = *outputBackend
	}
	p, err := breathing.PatternByID(cfg.PatternID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// No voice sink: with voice enabled the session plays beep cues instead.
	sess, err := session.Build(p, cfg, session.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize audio: %v\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()

	newUI(screen, sess, cfg).run()
}

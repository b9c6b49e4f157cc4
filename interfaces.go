package main

import (
	"context"
	"time"

	"github.com/j-emboi/sarcastic-serenity/internal/ambience"
	"github.com/j-emboi/sarcastic-serenity/internal/breathing"
	"github.com/j-emboi/sarcastic-serenity/internal/protocol"
	"github.com/j-emboi/sarcastic-serenity/internal/session"
)

// Controller is the session surface App drives. Defining it here lets App be
// tested with a mock session.
type Controller interface {
	Start(ctx context.Context)
	StartPattern(ctx context.Context, p breathing.Pattern) error
	Pause()
	Resume()
	Stop()
	SetPattern(p breathing.Pattern) error
	State() protocol.State

	StartAmbience(ctx context.Context, kind ambience.Kind, volume, serendipity float64) error
	StopAmbience()
	SetAmbienceVolume(v float64)
	SetCueVolume(v float64)
	Duck(factor float64, d time.Duration)
	TestTone(ctx context.Context) error

	Subscribe(sendBuf int) *session.Subscriber
	Unsubscribe(id string) bool
	Close() error
}

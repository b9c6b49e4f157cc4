// Package blob keeps uploaded background tracks on disk, named by UUID, with
// their decoded format in the sqlite store.
package blob

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"github.com/j-emboi/sarcastic-serenity/internal/store"
)

// KindTrack marks a decodable background loop.
const KindTrack = "track"

const trackContentType = "audio/wav"

// ErrNotWAV is returned when an upload is not a playable RIFF/WAVE file.
var ErrNotWAV = errors.New("track must be a RIFF/WAVE file")

// Store keeps track files under rootDir and their rows in sqlite.
type Store struct {
	rootDir string
	meta    *store.Store
}

// PutInput is one upload.
type PutInput struct {
	OriginalName string
	Reader       io.Reader
}

// OpenResult is a track's metadata and its opened file.
type OpenResult struct {
	Metadata store.BlobMetadata
	File     *os.File
}

// trackInfo is what the WAV header says about a staged upload.
type trackInfo struct {
	format beep.Format
	frames int
}

func (i trackInfo) duration() time.Duration {
	return i.format.SampleRate.D(i.frames)
}

// NewStore creates a track store rooted at rootDir.
func NewStore(rootDir string, meta *store.Store) (*Store, error) {
	rootDir = strings.TrimSpace(rootDir)
	if rootDir == "" {
		return nil, fmt.Errorf("track directory is required")
	}
	if meta == nil {
		return nil, fmt.Errorf("sqlite metadata store is required")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create track directory: %w", err)
	}
	slog.Debug("track store initialized", "dir", rootDir)
	return &Store{rootDir: rootDir, meta: meta}, nil
}

func isWAV(header []byte) bool {
	return len(header) >= 12 && bytes.Equal(header[0:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE"))
}

// Put stages an upload, decodes its WAV header, and keeps it only when it
// holds at least one frame of audio. The row records the decoded sample
// rate, channel count and loop length.
func (s *Store) Put(ctx context.Context, input PutInput) (store.BlobMetadata, error) {
	if input.Reader == nil {
		return store.BlobMetadata{}, fmt.Errorf("track reader is required")
	}
	originalName := strings.TrimSpace(input.OriginalName)
	if originalName == "" {
		return store.BlobMetadata{}, fmt.Errorf("track name is required")
	}

	br := bufio.NewReader(input.Reader)
	if header, _ := br.Peek(12); !isWAV(header) {
		return store.BlobMetadata{}, ErrNotWAV
	}

	staged, size, err := s.stage(br)
	if err != nil {
		return store.BlobMetadata{}, err
	}
	info, err := inspect(staged)
	if err != nil {
		_ = os.Remove(staged)
		return store.BlobMetadata{}, err
	}

	id, err := newUUID()
	if err != nil {
		_ = os.Remove(staged)
		return store.BlobMetadata{}, fmt.Errorf("generate track id: %w", err)
	}
	finalPath := filepath.Join(s.rootDir, id)
	if err := os.Rename(staged, finalPath); err != nil {
		_ = os.Remove(staged)
		return store.BlobMetadata{}, fmt.Errorf("move track into place: %w", err)
	}

	meta := store.BlobMetadata{
		ID:           id,
		Kind:         KindTrack,
		OriginalName: originalName,
		ContentType:  trackContentType,
		DiskName:     id,
		SizeBytes:    size,
		SampleRate:   int(info.format.SampleRate),
		Channels:     info.format.NumChannels,
		DurationMS:   info.duration().Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.meta.CreateBlob(ctx, meta); err != nil {
		_ = os.Remove(finalPath)
		return store.BlobMetadata{}, fmt.Errorf("persist track metadata: %w", err)
	}

	slog.Info("track stored", "track_id", id, "name", originalName, "size", size,
		"sample_rate", meta.SampleRate, "channels", meta.Channels, "duration", info.duration())
	return meta, nil
}

// stage copies r into a hidden temp file under rootDir.
func (s *Store) stage(r io.Reader) (path string, size int64, err error) {
	f, err := os.CreateTemp(s.rootDir, ".track-write-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp track file: %w", err)
	}
	path = f.Name()

	size, err = io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write track bytes: %w", err)
	}
	return path, size, nil
}

// inspect decodes the WAV header at path.
func inspect(path string) (trackInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return trackInfo{}, fmt.Errorf("reopen staged track: %w", err)
	}
	defer f.Close()

	streamer, format, err := wav.Decode(f)
	if err != nil {
		return trackInfo{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	info := trackInfo{format: format, frames: streamer.Len()}
	if info.frames <= 0 {
		return trackInfo{}, fmt.Errorf("%w: no audio frames", ErrNotWAV)
	}
	return info, nil
}

// Open resolves a track's metadata and opens its file.
func (s *Store) Open(ctx context.Context, id string) (OpenResult, error) {
	meta, err := s.meta.BlobByID(ctx, id)
	if err != nil {
		return OpenResult{}, err
	}

	path := filepath.Join(s.rootDir, meta.DiskName)
	f, err := os.Open(path)
	if err != nil {
		slog.Error("track file open failed", "track_id", id, "path", path, "err", err)
		return OpenResult{}, fmt.Errorf("open track file: %w", err)
	}

	slog.Debug("track opened", "track_id", id, "duration_ms", meta.DurationMS)
	return OpenResult{Metadata: meta, File: f}, nil
}

// List returns all stored tracks, newest first.
func (s *Store) List(ctx context.Context) ([]store.BlobMetadata, error) {
	return s.meta.Blobs(ctx, KindTrack)
}

func newUUID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}

	// Version 4, RFC 4122 variant.
	raw[6] = (raw[6] & 0x0f) | 0x40
	raw[8] = (raw[8] & 0x3f) | 0x80

	return fmt.Sprintf("%x-%x-%x-%x-%x", raw[0:4], raw[4:6], raw[6:8], raw[8:10], raw[10:16]), nil
}

// Package httpapi is the daemon's REST control surface over one breathing
// session: patterns, session control, ambience, history and uploaded tracks.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/j-emboi/sarcastic-serenity/internal/ambience"
	"github.com/j-emboi/sarcastic-serenity/internal/blob"
	"github.com/j-emboi/sarcastic-serenity/internal/breathing"
	"github.com/j-emboi/sarcastic-serenity/internal/session"
	"github.com/j-emboi/sarcastic-serenity/internal/store"
	"github.com/j-emboi/sarcastic-serenity/internal/ws"
)

// Defaults for requests that leave a level out.
const (
	DefaultVolume       = 0.5
	DefaultSerendipity  = 0.3
	DefaultDuckDuration = time.Second
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Server is the Echo application.
type Server struct {
	echo    *echo.Echo
	session *session.Session
	store   *store.Store
	tracks  *blob.Store
}

// New constructs an Echo app with websocket + REST routes. st and tracks may
// be nil; the routes that need them then answer 503.
func New(sess *session.Session, st *store.Store, tracks *blob.Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, session: sess, store: st, tracks: tracks}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	s.echo.GET("/api/patterns", s.handlePatterns)
	s.echo.POST("/api/patterns", s.handleCreatePattern)
	s.echo.DELETE("/api/patterns/:id", s.handleDeletePattern)
	s.echo.GET("/api/presets", s.handlePresets)

	s.echo.GET("/api/session", s.handleState)
	s.echo.POST("/api/session/start", s.handleStart)
	s.echo.POST("/api/session/pause", s.handlePause)
	s.echo.POST("/api/session/resume", s.handleResume)
	s.echo.POST("/api/session/stop", s.handleStop)
	s.echo.PUT("/api/session/pattern", s.handleSetPattern)

	s.echo.POST("/api/ambience", s.handleStartAmbience)
	s.echo.DELETE("/api/ambience", s.handleStopAmbience)
	s.echo.PUT("/api/ambience/volume", s.handleAmbienceVolume)
	s.echo.POST("/api/ambience/duck", s.handleDuck)
	s.echo.PUT("/api/cues/volume", s.handleCueVolume)
	s.echo.POST("/api/audio/test-tone", s.handleTestTone)

	s.echo.GET("/api/history", s.handleHistory)

	s.echo.POST("/api/tracks", s.handleTrackUpload)
	s.echo.GET("/api/tracks", s.handleTracks)
	s.echo.GET("/api/tracks/:id", s.handleTrackDownload)
	s.echo.POST("/api/tracks/:id/play", s.handlePlayTrack)

	ws.NewHandler(s.session, s.ResolvePattern).Register(s.echo)
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

// ResolvePattern looks id up in the built-in catalog, then among the custom
// patterns.
func (s *Server) ResolvePattern(ctx context.Context, id string) (breathing.Pattern, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if p, err := breathing.PatternByID(id); err == nil {
		return p, nil
	}
	if s.store == nil {
		return breathing.Pattern{}, fmt.Errorf("%w: %q", breathing.ErrUnknownPattern, id)
	}
	p, err := s.store.PatternByID(ctx, id)
	if errors.Is(err, store.ErrPatternNotFound) {
		return breathing.Pattern{}, fmt.Errorf("%w: %q", breathing.ErrUnknownPattern, id)
	}
	return p, err
}

// patternError maps pattern lookups and validation to HTTP errors.
func patternError(err error) error {
	switch {
	case errors.Is(err, breathing.ErrUnknownPattern), errors.Is(err, store.ErrPatternNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, breathing.ErrInvalidPattern):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrPatternExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func bindJSON(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	return nil
}

func (s *Server) requireStore() error {
	if s.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage is not configured")
	}
	return nil
}

func (s *Server) requireTracks() error {
	if s.tracks == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "track storage is not configured")
	}
	return nil
}

type healthResponse struct {
	Status      string `json:"status"`
	Subscribers int    `json:"subscribers"`
	Silent      bool   `json:"silent"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:      "ok",
		Subscribers: s.session.SubscriberCount(),
		Silent:      s.session.Engine().Silent(),
	})
}

type patternView struct {
	breathing.Pattern
	Builtin bool `json:"builtin"`
}

func (s *Server) handlePatterns(c echo.Context) error {
	category := breathing.Category(strings.TrimSpace(c.QueryParam("category")))

	builtin := breathing.Patterns()
	if category != "" {
		builtin = breathing.PatternsByCategory(category)
	}
	out := make([]patternView, 0, len(builtin))
	for _, p := range builtin {
		out = append(out, patternView{Pattern: p, Builtin: true})
	}

	if s.store != nil {
		custom, err := s.store.Patterns(c.Request().Context())
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("list patterns: %v", err))
		}
		for _, p := range custom {
			if category == "" || p.Category == category {
				out = append(out, patternView{Pattern: p})
			}
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreatePattern(c echo.Context) error {
	if err := s.requireStore(); err != nil {
		return err
	}
	var p breathing.Pattern
	if err := bindJSON(c, &p); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.store.CreatePattern(ctx, p); err != nil {
		return patternError(err)
	}
	created, err := s.store.PatternByID(ctx, strings.ToLower(strings.TrimSpace(p.ID)))
	if err != nil {
		return patternError(err)
	}
	return c.JSON(http.StatusCreated, patternView{Pattern: created})
}

func (s *Server) handleDeletePattern(c echo.Context) error {
	if err := s.requireStore(); err != nil {
		return err
	}
	id := strings.ToLower(strings.TrimSpace(c.Param("id")))
	if _, err := breathing.PatternByID(id); err == nil {
		return echo.NewHTTPError(http.StatusForbidden, "built-in patterns cannot be deleted")
	}
	if err := s.store.DeletePattern(c.Request().Context(), id); err != nil {
		return patternError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type presetsResponse struct {
	Presets []ambience.Kind `json:"presets"`
	Default ambience.Kind   `json:"default"`
}

func (s *Server) handlePresets(c echo.Context) error {
	return c.JSON(http.StatusOK, presetsResponse{Presets: ambience.Kinds(), Default: ambience.DefaultKind})
}

func (s *Server) handleState(c echo.Context) error {
	return c.JSON(http.StatusOK, s.session.State())
}

type startRequest struct {
	PatternID string `json:"pattern_id"`
}

func (s *Server) handleStart(c echo.Context) error {
	var req startRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if strings.TrimSpace(req.PatternID) == "" {
		s.session.Start(ctx)
		return c.JSON(http.StatusOK, s.session.State())
	}
	p, err := s.ResolvePattern(ctx, req.PatternID)
	if err != nil {
		return patternError(err)
	}
	if err := s.session.StartPattern(ctx, p); err != nil {
		return patternError(err)
	}
	return c.JSON(http.StatusOK, s.session.State())
}

func (s *Server) handlePause(c echo.Context) error {
	s.session.Pause()
	return c.JSON(http.StatusOK, s.session.State())
}

func (s *Server) handleResume(c echo.Context) error {
	s.session.Resume()
	return c.JSON(http.StatusOK, s.session.State())
}

func (s *Server) handleStop(c echo.Context) error {
	s.session.Stop()
	return c.JSON(http.StatusOK, s.session.State())
}

func (s *Server) handleSetPattern(c echo.Context) error {
	var req startRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.PatternID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "pattern_id is required")
	}
	p, err := s.ResolvePattern(c.Request().Context(), req.PatternID)
	if err != nil {
		return patternError(err)
	}
	if err := s.session.SetPattern(p); err != nil {
		return patternError(err)
	}
	return c.JSON(http.StatusOK, s.session.State())
}

type ambienceRequest struct {
	Preset      string   `json:"preset"`
	Volume      *float64 `json:"volume"`
	Serendipity *float64 `json:"serendipity"`
}

func (s *Server) handleStartAmbience(c echo.Context) error {
	var req ambienceRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	kind := ambience.DefaultKind
	if strings.TrimSpace(req.Preset) != "" {
		k, err := ambience.ParseKind(req.Preset)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		kind = k
	}
	volume, serendipity := DefaultVolume, DefaultSerendipity
	if req.Volume != nil {
		if err := checkVolume(*req.Volume); err != nil {
			return err
		}
		volume = *req.Volume
	}
	if req.Serendipity != nil {
		serendipity = *req.Serendipity
	}
	if err := s.session.StartAmbience(c.Request().Context(), kind, volume, serendipity); err != nil {
		if errors.Is(err, ambience.ErrUnknownPreset) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("start ambience: %v", err))
	}
	return c.JSON(http.StatusOK, s.session.State())
}

func (s *Server) handleStopAmbience(c echo.Context) error {
	s.session.StopAmbience()
	return c.JSON(http.StatusOK, s.session.State())
}

type volumeRequest struct {
	Volume *float64 `json:"volume"`
}

type volumeResponse struct {
	Volume float64 `json:"volume"`
}

func (s *Server) bindVolume(c echo.Context) (float64, error) {
	var req volumeRequest
	if err := bindJSON(c, &req); err != nil {
		return 0, err
	}
	if req.Volume == nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "volume is required")
	}
	if err := checkVolume(*req.Volume); err != nil {
		return 0, err
	}
	return *req.Volume, nil
}

func checkVolume(v float64) error {
	if !(v >= 0 && v <= 1) {
		return echo.NewHTTPError(http.StatusBadRequest, "volume must be within [0, 1]")
	}
	return nil
}

func (s *Server) handleAmbienceVolume(c echo.Context) error {
	v, err := s.bindVolume(c)
	if err != nil {
		return err
	}
	s.session.SetAmbienceVolume(v)
	return c.JSON(http.StatusOK, volumeResponse{Volume: s.session.Engine().BackgroundVolume()})
}

func (s *Server) handleCueVolume(c echo.Context) error {
	v, err := s.bindVolume(c)
	if err != nil {
		return err
	}
	s.session.Engine().SetCueVolume(v)
	return c.JSON(http.StatusOK, volumeResponse{Volume: v})
}

type duckRequest struct {
	Factor     float64 `json:"factor"`
	DurationMS int64   `json:"duration_ms"`
}

func (s *Server) handleDuck(c echo.Context) error {
	var req duckRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.Factor < 0 || req.Factor > 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "factor must be within [0, 1]")
	}
	d := DefaultDuckDuration
	if req.DurationMS > 0 {
		d = time.Duration(req.DurationMS) * time.Millisecond
	}
	s.session.Duck(req.Factor, d)
	return c.JSON(http.StatusOK, volumeResponse{Volume: s.session.Engine().BackgroundVolume()})
}

func (s *Server) handleTestTone(c echo.Context) error {
	if err := s.session.Engine().TestTone(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("test tone: %v", err))
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleHistory(c echo.Context) error {
	if err := s.requireStore(); err != nil {
		return err
	}
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxHistoryLimit)
	}
	recs, err := s.store.Sessions(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("list sessions: %v", err))
	}
	if recs == nil {
		recs = []store.SessionRecord{}
	}
	return c.JSON(http.StatusOK, recs)
}

func (s *Server) handleTrackUpload(c echo.Context) error {
	if err := s.requireTracks(); err != nil {
		return err
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart file field \"file\" is required")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("open uploaded file: %v", err))
	}
	defer src.Close()

	meta, err := s.tracks.Put(c.Request().Context(), blob.PutInput{
		OriginalName: fileHeader.Filename,
		Reader:       src,
	})
	if err != nil {
		if errors.Is(err, blob.ErrNotWAV) {
			return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("persist track: %v", err))
	}
	return c.JSON(http.StatusCreated, meta)
}

func (s *Server) handleTracks(c echo.Context) error {
	if err := s.requireTracks(); err != nil {
		return err
	}
	list, err := s.tracks.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("list tracks: %v", err))
	}
	if list == nil {
		list = []store.BlobMetadata{}
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) openTrack(c echo.Context) (blob.OpenResult, error) {
	if err := s.requireTracks(); err != nil {
		return blob.OpenResult{}, err
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return blob.OpenResult{}, echo.NewHTTPError(http.StatusBadRequest, "track id is required")
	}
	result, err := s.tracks.Open(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrBlobNotFound) {
			return blob.OpenResult{}, echo.NewHTTPError(http.StatusNotFound, "track not found")
		}
		return blob.OpenResult{}, echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("open track: %v", err))
	}
	return result, nil
}

func (s *Server) handleTrackDownload(c echo.Context) error {
	result, err := s.openTrack(c)
	if err != nil {
		return err
	}
	defer result.File.Close()

	c.Response().Header().Set(echo.HeaderContentType, result.Metadata.ContentType)
	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(result.Metadata.SizeBytes, 10))
	c.Response().Header().Set(
		echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s"`, safeFilename(result.Metadata.OriginalName)),
	)
	c.Response().WriteHeader(http.StatusOK)
	_, copyErr := io.Copy(c.Response().Writer, result.File)
	return copyErr
}

func (s *Server) handlePlayTrack(c echo.Context) error {
	var req volumeRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	volume := DefaultVolume
	if req.Volume != nil {
		if err := checkVolume(*req.Volume); err != nil {
			return err
		}
		volume = *req.Volume
	}

	result, err := s.openTrack(c)
	if err != nil {
		return err
	}
	// The engine owns the file from here and closes it with the loop.
	if err := s.session.PlayTrack(c.Request().Context(), result.File, volume); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf("play track: %v", err))
	}
	slog.Info("track playing", "track_id", result.Metadata.ID, "volume", volume)
	return c.JSON(http.StatusOK, s.session.State())
}

func safeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "track.wav"
	}
	name = strings.ReplaceAll(name, `"`, "_")
	name = strings.ReplaceAll(name, "\\", "_")
	return name
}

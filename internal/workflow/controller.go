package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"stylenow-studio/internal/media"
	"stylenow-studio/internal/studio"
)

const (
	DefaultDebounce      = 1500 * time.Millisecond
	DefaultRenderTimeout = 4 * time.Minute
)

var (
	ErrBusy         = errors.New("a render is already in progress")
	ErrNotPermitted = errors.New("generation is not permitted: no usable credential configured")
	ErrStale        = errors.New("render result discarded: session changed")
	ErrClosed       = errors.New("session closed")
)

type Generator interface {
	Generate(ctx context.Context, req studio.GenerationRequest) (media.ImageAsset, error)
}

// Analyzer never fails; it degrades to studio.UnavailableAnalysis instead.
type Analyzer interface {
	Analyze(ctx context.Context, generated, original media.ImageAsset) studio.AnalysisResult
}

type Options struct {
	Generator Generator
	Analyzer  Analyzer
	// Permitted is the credential gate. It is consulted on every invocation.
	Permitted func() bool

	Settings      *studio.Settings
	Debounce      time.Duration
	RenderTimeout time.Duration

	// Listener receives a snapshot after every state transition. It is called
	// without the controller lock held, so it may call back into the controller.
	Listener func(Snapshot)
	Logger   *slog.Logger
}

// Controller owns one try-on session: its inputs, the last render and its
// critique, and the generate → analyze state machine.
type Controller struct {
	gen           Generator
	an            Analyzer
	permitted     func() bool
	debounce      time.Duration
	renderTimeout time.Duration
	listener      func(Snapshot)
	logger        *slog.Logger

	mu         sync.Mutex
	state      State
	subject    media.ImageAsset
	garments   []media.ImageAsset
	settings   studio.Settings
	generated  media.ImageAsset
	analysis   *studio.AnalysisResult
	lastErr    error
	autoRender bool
	updatedAt  time.Time

	// token identifies the current session contents; in-flight renders that
	// started under an older token are dropped when they resolve.
	token    uint64
	timer    *time.Timer
	timerSeq uint64
	closed   bool
}

func New(opts Options) (*Controller, error) {
	if opts.Generator == nil {
		return nil, errors.New("workflow: generator is required")
	}
	if opts.Analyzer == nil {
		return nil, errors.New("workflow: analyzer is required")
	}
	if opts.Permitted == nil {
		return nil, errors.New("workflow: credential gate is required")
	}

	settings := studio.DefaultSettings()
	if opts.Settings != nil {
		if err := opts.Settings.Validate(); err != nil {
			return nil, err
		}
		settings = *opts.Settings
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	renderTimeout := opts.RenderTimeout
	if renderTimeout <= 0 {
		renderTimeout = DefaultRenderTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Controller{
		gen:           opts.Generator,
		an:            opts.Analyzer,
		permitted:     opts.Permitted,
		debounce:      debounce,
		renderTimeout: renderTimeout,
		listener:      opts.Listener,
		logger:        logger,
		state:         StateIdle,
		settings:      settings,
		updatedAt:     time.Now(),
	}, nil
}

// Invoke runs one generate → analyze pass and blocks until it resolves.
// Precondition failures (studio.ErrInvalidInput, ErrBusy, ErrNotPermitted)
// leave the state untouched and call no client. A generation failure moves
// the session to StateFailed and is returned; analysis problems never are.
func (c *Controller) Invoke(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	req, err := studio.BuildRequest(c.settings, c.subject, c.garments)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.permitted() {
		c.mu.Unlock()
		return ErrNotPermitted
	}

	c.stopTimerLocked()
	token := c.token
	c.generated = media.ImageAsset{}
	c.analysis = nil
	c.lastErr = nil
	snap := c.transitionLocked(StateGenerating)
	c.mu.Unlock()
	c.notify(snap)

	started := time.Now()
	img, err := c.gen.Generate(ctx, req)

	c.mu.Lock()
	if token != c.token {
		c.mu.Unlock()
		c.logger.Info("stale render dropped", "stage", "generate")
		return ErrStale
	}
	if err != nil {
		c.lastErr = err
		snap = c.transitionLocked(StateFailed)
		c.mu.Unlock()
		c.logger.Error("render failed", "err", err, "dur_ms", time.Since(started).Milliseconds())
		c.notify(snap)
		return err
	}
	c.generated = img
	snap = c.transitionLocked(StateAnalyzing)
	c.mu.Unlock()
	c.logger.Info("render complete", "mime", img.MimeType(), "bytes", len(img.Bytes()), "dur_ms", time.Since(started).Milliseconds())
	c.notify(snap)

	result := c.an.Analyze(ctx, img, req.Subject)

	c.mu.Lock()
	if token != c.token {
		c.mu.Unlock()
		c.logger.Info("stale render dropped", "stage", "analyze")
		return ErrStale
	}
	c.analysis = &result
	snap = c.transitionLocked(StateComplete)
	c.mu.Unlock()
	c.logger.Info("analysis stored", "rating", result.Rating, "match_score", result.MatchScore, "degraded", result.Unavailable())
	c.notify(snap)
	return nil
}

// SetSubject replaces the subject photo. Any previous render and critique
// are discarded and the session returns to StateIdle.
func (c *Controller) SetSubject(img media.ImageAsset) error {
	if img.IsZero() {
		return fmt.Errorf("%w: subject image is empty", studio.ErrInvalidInput)
	}
	return c.changeSubject(img)
}

func (c *Controller) ClearSubject() error {
	return c.changeSubject(media.ImageAsset{})
}

func (c *Controller) changeSubject(img media.ImageAsset) error {
	c.mu.Lock()
	if c.state.Busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	c.subject = img
	c.invalidateLocked()
	snap := c.transitionLocked(StateIdle)
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

func (c *Controller) AddGarments(imgs ...media.ImageAsset) error {
	if len(imgs) == 0 {
		return nil
	}
	for i, img := range imgs {
		if img.IsZero() {
			return fmt.Errorf("%w: garment %d is empty", studio.ErrInvalidInput, i+1)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.garments = append(c.garments, imgs...)
	c.garmentsChangedLocked()
	return nil
}

// RemoveGarment drops the garment at the zero-based index.
func (c *Controller) RemoveGarment(idx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < 0 || idx >= len(c.garments) {
		return fmt.Errorf("%w: garment %d does not exist", studio.ErrInvalidInput, idx+1)
	}
	c.garments = append(c.garments[:idx:idx], c.garments[idx+1:]...)
	c.garmentsChangedLocked()
	return nil
}

func (c *Controller) SetSettings(s studio.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.settings = s
	c.updatedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// UpdateSettings applies fn to a copy of the current settings and stores the
// result only if fn succeeds and the result validates.
func (c *Controller) UpdateSettings(fn func(*studio.Settings) error) (studio.Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.settings
	if fn != nil {
		if err := fn(&next); err != nil {
			return c.settings, err
		}
	}
	if err := next.Validate(); err != nil {
		return c.settings, err
	}
	c.settings = next
	c.updatedAt = time.Now()
	return next, nil
}

// SetAutoRender toggles debounced re-rendering on garment changes. Enabling
// it with a complete set of inputs schedules a render straight away.
func (c *Controller) SetAutoRender(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoRender = on
	c.updatedAt = time.Now()
	if !on {
		c.stopTimerLocked()
		return
	}
	c.maybeScheduleLocked()
}

// Reset starts a new session: inputs, render and critique are cleared.
// Settings and the auto-render flag are kept. An in-flight render is not
// aborted; its result is dropped when it arrives.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.subject = media.ImageAsset{}
	c.garments = nil
	c.invalidateLocked()
	snap := c.transitionLocked(StateIdle)
	c.mu.Unlock()
	c.notify(snap)
}

// Close stops the debounce timer and rejects further renders.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTimerLocked()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) invalidateLocked() {
	c.token++
	c.stopTimerLocked()
	c.generated = media.ImageAsset{}
	c.analysis = nil
	c.lastErr = nil
}

func (c *Controller) transitionLocked(next State) Snapshot {
	if c.state != next {
		c.logger.Debug("state transition", "from", c.state.String(), "to", next.String())
	}
	c.state = next
	c.updatedAt = time.Now()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:      c.state,
		Subject:    c.subject,
		Garments:   append([]media.ImageAsset(nil), c.garments...),
		Settings:   c.settings,
		Generated:  c.generated,
		Err:        c.lastErr,
		AutoRender: c.autoRender,
		Permitted:  c.permitted(),
		UpdatedAt:  c.updatedAt,
	}
	if c.analysis != nil {
		a := *c.analysis
		a.Suggestions = append([]string{}, a.Suggestions...)
		snap.Analysis = &a
	}
	return snap
}

func (c *Controller) notify(snap Snapshot) {
	if c.listener != nil {
		c.listener(snap)
	}
}

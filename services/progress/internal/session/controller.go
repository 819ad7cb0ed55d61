// Package session turns playback events for one (user, video) pair into
// merged watched intervals and schedules their persistence.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/watch-progress/internal/platform/analytics"
	"github.com/example/watch-progress/services/progress/internal/interval"
	"github.com/example/watch-progress/services/progress/internal/store"
)

const (
	// DefaultSaveInterval is the position save cadence when Options leaves it unset.
	DefaultSaveInterval = 5 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

// State is the tracking state of a Controller.
type State int

const (
	// StateIdle has no pending interval.
	StateIdle State = iota
	// StateTracking has a pending interval that grows with playback.
	StateTracking
)

func (s State) String() string {
	if s == StateTracking {
		return "tracking"
	}
	return "idle"
}

// Options configures a Controller.
type Options struct {
	UserID        string
	VideoID       string
	VideoDuration float64
	// SaveInterval is the cadence of position saves while tracking.
	SaveInterval time.Duration
	// WriteTimeout bounds writes that are not awaited by the caller.
	WriteTimeout time.Duration
	Logger       *zap.Logger
	Analytics    *analytics.Publisher
}

// Snapshot is a point-in-time copy of a Controller's state.
type Snapshot struct {
	UserID           string              `json:"user_id"`
	VideoID          string              `json:"video_id"`
	State            string              `json:"state"`
	Playing          bool                `json:"playing"`
	Loaded           bool                `json:"loaded"`
	WatchedIntervals []interval.Interval `json:"watched_intervals"`
	Pending          *interval.Interval  `json:"pending,omitempty"`
	LastPosition     float64             `json:"last_position"`
	Progress         float64             `json:"progress"`
	VideoDuration    float64             `json:"video_duration"`
}

// Controller owns the committed interval set, the pending interval and the
// periodic save task of one playback session. Transitions are serialized by
// mu; store I/O always runs outside it.
type Controller struct {
	store        store.ProgressStore
	log          *zap.Logger
	ap           *analytics.Publisher
	userID       string
	videoID      string
	saveInterval time.Duration
	writeTimeout time.Duration

	mu           sync.Mutex
	committed    []interval.Interval
	pending      *interval.Interval
	lastPosition float64
	playhead     float64
	progressPct  float64
	duration     float64
	playing      bool
	loaded       bool
	closed       bool
	saveTimer    *time.Timer
	saveGen      uint64

	writes sync.WaitGroup
}

// NewController returns an idle controller. Call Load before feeding events.
func NewController(s store.ProgressStore, opts Options) *Controller {
	if opts.SaveInterval <= 0 {
		opts.SaveInterval = DefaultSaveInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		store:        s,
		log:          log.With(zap.String("user_id", opts.UserID), zap.String("video_id", opts.VideoID)),
		ap:           opts.Analytics,
		userID:       opts.UserID,
		videoID:      opts.VideoID,
		saveInterval: opts.SaveInterval,
		writeTimeout: opts.WriteTimeout,
		committed:    []interval.Interval{},
		duration:     opts.VideoDuration,
	}
}

// Load seeds the controller from the stored record. A missing record or a
// failed read leaves the zero-value defaults; either way tracking is enabled
// once Load returns.
func (c *Controller) Load(ctx context.Context) {
	rec, ok, err := c.store.Get(ctx, c.userID, c.videoID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
	if err != nil {
		c.log.Warn("load progress failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	c.committed = rec.WatchedIntervals
	if c.committed == nil {
		c.committed = []interval.Interval{}
	}
	c.lastPosition = rec.LastPosition
	c.playhead = rec.LastPosition
	c.progressPct = rec.TotalProgress
	if c.duration <= 0 {
		c.duration = rec.VideoDuration
	}
}

// Start opens a pending interval at at. It does nothing while a pending
// interval is already open or before Load has completed.
func (c *Controller) Start(at float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startLocked(at)
}

func (c *Controller) startLocked(at float64) {
	if c.closed || !c.loaded {
		return
	}
	if c.pending != nil {
		return
	}
	c.pending = &interval.Interval{Start: at, End: at}
	c.playhead = at
	c.armSaveLocked()
}

// Extend moves the end of the pending interval to at. No-op while idle.
func (c *Controller) Extend(at float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.pending == nil {
		return
	}
	c.pending.End = at
	c.playhead = at
	c.armSaveLocked()
}

// Stop merges the pending interval into the committed set and writes the
// result through to the store, waiting for the write. No-op while idle.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	w, ok := c.stopLocked()
	c.mu.Unlock()
	if !ok {
		return
	}
	defer c.writes.Done()
	c.persist(ctx, w)
}

// Seek closes the pending interval at its last known end, moves the position
// to pos and reopens tracking there. The write for the closed interval is
// dispatched without waiting for it.
func (c *Controller) Seek(ctx context.Context, pos float64) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	w, ok := c.stopLocked()
	c.lastPosition = pos
	c.playhead = pos
	c.disarmSaveLocked()
	c.startLocked(pos)
	c.mu.Unlock()

	if ok {
		go func() {
			defer c.writes.Done()
			wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.writeTimeout)
			defer cancel()
			c.persist(wctx, w)
		}()
	}
}

// SetDuration records the video duration once the player knows it.
func (c *Controller) SetDuration(d float64) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.duration = d
	c.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := make([]interval.Interval, len(c.committed))
	copy(set, c.committed)
	snap := Snapshot{
		UserID:           c.userID,
		VideoID:          c.videoID,
		State:            c.stateLocked().String(),
		Playing:          c.playing,
		Loaded:           c.loaded,
		WatchedIntervals: set,
		LastPosition:     c.lastPosition,
		Progress:         c.progressPct,
		VideoDuration:    c.duration,
	}
	if c.pending != nil {
		p := *c.pending
		snap.Pending = &p
	}
	return snap
}

// State reports whether a pending interval is open.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	if c.pending != nil {
		return StateTracking
	}
	return StateIdle
}

// Close tears the controller down: the save task is cancelled, later events
// are ignored, and Close waits for writes already in flight. A pending
// interval that was never stopped is discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.disarmSaveLocked()
	c.pending = nil
	c.playing = false
	c.mu.Unlock()

	c.writes.Wait()
}

// write is the state captured for one store write.
type write struct {
	intervals    []interval.Interval
	lastPosition float64
	duration     float64
}

// stopLocked commits the pending interval. When it returns ok the caller owns
// one writes slot and must persist w.
func (c *Controller) stopLocked() (write, bool) {
	if c.closed || c.pending == nil {
		return write{}, false
	}
	c.committed = interval.Merge(c.committed, *c.pending)
	c.progressPct = interval.Progress(c.committed, c.duration)
	c.pending = nil
	// Position saves only run while tracking.
	c.disarmSaveLocked()

	c.writes.Add(1)
	return c.captureLocked(), true
}

func (c *Controller) captureLocked() write {
	set := make([]interval.Interval, len(c.committed))
	copy(set, c.committed)
	return write{intervals: set, lastPosition: c.lastPosition, duration: c.duration}
}

// armSaveLocked schedules the periodic save unless one is already pending.
func (c *Controller) armSaveLocked() {
	if c.saveTimer != nil {
		return
	}
	c.saveGen++
	gen := c.saveGen
	c.saveTimer = time.AfterFunc(c.saveInterval, func() { c.periodicSave(gen) })
}

func (c *Controller) disarmSaveLocked() {
	if c.saveTimer != nil {
		c.saveTimer.Stop()
		c.saveTimer = nil
	}
	// A callback that already fired must not act on the new schedule.
	c.saveGen++
}

// periodicSave persists the latest playback position together with the
// committed set, then re-arms itself while tracking continues.
func (c *Controller) periodicSave(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.saveGen {
		c.mu.Unlock()
		return
	}
	c.saveTimer = nil
	c.lastPosition = c.playhead
	w := c.captureLocked()
	if c.pending != nil {
		c.armSaveLocked()
	}
	c.writes.Add(1)
	c.mu.Unlock()

	defer c.writes.Done()
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	c.persist(ctx, w)
}

// persist writes w to the store. Failures are logged and dropped; in-memory
// state stays authoritative until the next successful write.
func (c *Controller) persist(ctx context.Context, w write) {
	rec, err := c.store.Save(ctx, c.userID, c.videoID, w.intervals, w.lastPosition, w.duration)
	if err != nil {
		c.log.Warn("save progress failed", zap.Error(err))
		return
	}
	c.log.Debug("progress saved",
		zap.Float64("total_progress", rec.TotalProgress),
		zap.Float64("last_position", rec.LastPosition),
		zap.Int("intervals", len(rec.WatchedIntervals)),
	)
	c.ap.Publish(analytics.SubjectProgressSaved, "progress_saved", c.userID, map[string]any{
		"video_id":       c.videoID,
		"total_progress": rec.TotalProgress,
		"last_position":  rec.LastPosition,
	})
}

// Package session implements the capture-to-result state machine. One
// Machine owns one device and at most one live capture cycle; every state
// transition happens on the machine's single run loop, and device
// completions, analysis completions and timers hand off into that loop as
// events instead of mutating shared state.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mealsnap/mealsnap/internal/access"
	"github.com/mealsnap/mealsnap/internal/device"
	"github.com/mealsnap/mealsnap/internal/scan"
)

// DefaultFocusDwell is how long an advisory focus highlight lasts before
// the session reverts to idle.
const DefaultFocusDwell = time.Second

// Analyzer is the analysis orchestrator boundary.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte) (scan.AnalysisResult, error)
}

// Dispatcher is the persistence pipeline boundary. Dispatch must not
// block; persistence runs independently of the session lifecycle.
type Dispatcher interface {
	Dispatch(result scan.AnalysisResult, image []byte, userID string)
}

// Snapshot is a point-in-time copy of the session, safe to retain.
type Snapshot struct {
	State       scan.State
	Mode        scan.CaptureMode
	PendingMode scan.CaptureMode
	Image       []byte
	DepthFrame  *scan.DepthFrame
	Result      *scan.AnalysisResult
	Err         error
}

// Machine drives one capture cycle at a time. All exported methods are
// safe for concurrent use; they enqueue commands onto the run loop.
type Machine struct {
	dev      *device.Adapter
	analyzer Analyzer
	pipeline Dispatcher
	signals  *access.Signals
	dwell    time.Duration

	cmds   chan command
	events chan event

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool

	// Loop-owned session state. Touched only from run().
	state       scan.State
	mode        scan.CaptureMode
	pendingMode scan.CaptureMode
	image       []byte
	depth       *scan.DepthFrame
	result      *scan.AnalysisResult
	err         error
	userID      string
	gen         uint64
	focusTimer  *time.Timer

	autoAnalyzeNext bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithFocusDwell overrides the focus auto-revert interval.
func WithFocusDwell(d time.Duration) Option {
	return func(m *Machine) { m.dwell = d }
}

// WithMode sets the initial capture mode (standard by default).
func WithMode(mode scan.CaptureMode) Option {
	return func(m *Machine) { m.mode = mode }
}

// NewMachine builds a Machine over the given collaborators.
func NewMachine(dev *device.Adapter, analyzer Analyzer, pipeline Dispatcher, signals *access.Signals, opts ...Option) *Machine {
	m := &Machine{
		dev:      dev,
		analyzer: analyzer,
		pipeline: pipeline,
		signals:  signals,
		dwell:    DefaultFocusDwell,
		mode:     scan.ModeStandard,
		state:    scan.StateIdle,
		cmds:     make(chan command),
		events:   make(chan event, 4),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start spawns the run loop. Only the first call succeeds.
func (m *Machine) Start(ctx context.Context) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.started {
		return fmt.Errorf("session machine already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.started = true
	m.wg.Add(1)
	go m.run()
	return nil
}

// Stop shuts the run loop down and releases the device. Idempotent.
func (m *Machine) Stop() error {
	m.startMu.Lock()
	if !m.started {
		m.startMu.Unlock()
		return nil
	}
	m.startMu.Unlock()

	m.cancel()
	m.wg.Wait()
	return m.dev.Stop()
}

// --- commands ---

type command interface{ isCommand() }

type cmdFocus struct {
	point device.FocusPoint
}

type cmdCapture struct {
	autoAnalyze bool
	reply       chan error
}

type cmdUpload struct {
	image []byte
	reply chan error
}

type cmdAnalyze struct {
	reply chan error
}

type cmdClear struct {
	reply chan error
}

type cmdReset struct {
	reply chan error
}

type cmdSwitchMode struct {
	mode  scan.CaptureMode
	reply chan error
}

type cmdSnapshot struct {
	reply chan Snapshot
}

func (cmdFocus) isCommand()      {}
func (cmdCapture) isCommand()    {}
func (cmdUpload) isCommand()     {}
func (cmdAnalyze) isCommand()    {}
func (cmdClear) isCommand()      {}
func (cmdReset) isCommand()      {}
func (cmdSwitchMode) isCommand() {}
func (cmdSnapshot) isCommand()   {}

// --- events (posted by worker goroutines and timers) ---

type event struct {
	gen    uint64
	kind   eventKind
	image  []byte
	depth  *scan.DepthFrame
	result scan.AnalysisResult
	err    error
}

type eventKind int

const (
	evCaptureDone eventKind = iota
	evAnalysisDone
	evFocusExpired
)

// --- public API ---

// Focus signals a point of interest. Advisory: it never changes result
// semantics and auto-reverts after the dwell interval.
func (m *Machine) Focus(p device.FocusPoint) {
	m.send(cmdFocus{point: p})
}

// CaptureAndAnalyze starts a capture cycle that chains straight into
// analysis once the device returns a frame.
func (m *Machine) CaptureAndAnalyze() error {
	reply := make(chan error, 1)
	if !m.send(cmdCapture{autoAnalyze: true, reply: reply}) {
		return context.Canceled
	}
	return <-reply
}

// Capture starts a capture cycle that stops at Captured; Analyze or Clear
// decides what happens next.
func (m *Machine) Capture() error {
	reply := make(chan error, 1)
	if !m.send(cmdCapture{autoAnalyze: false, reply: reply}) {
		return context.Canceled
	}
	return <-reply
}

// AnalyzeUpload runs a user-supplied image through the cycle, skipping the
// device. Subject to the same access gate as a live capture.
func (m *Machine) AnalyzeUpload(image []byte) error {
	reply := make(chan error, 1)
	if !m.send(cmdUpload{image: image, reply: reply}) {
		return context.Canceled
	}
	return <-reply
}

// Analyze manually triggers analysis of a captured frame.
func (m *Machine) Analyze() error {
	reply := make(chan error, 1)
	if !m.send(cmdAnalyze{reply: reply}) {
		return context.Canceled
	}
	return <-reply
}

// Clear discards a captured-but-not-analyzed frame and returns to idle.
func (m *Machine) Clear() error {
	reply := make(chan error, 1)
	if !m.send(cmdClear{reply: reply}) {
		return context.Canceled
	}
	return <-reply
}

// Reset returns a resulted or failed session to idle. It is the only way
// out of the failed state.
func (m *Machine) Reset() error {
	reply := make(chan error, 1)
	if !m.send(cmdReset{reply: reply}) {
		return context.Canceled
	}
	return <-reply
}

// SwitchMode requests a capture mode change. Applied immediately when the
// session is idle; otherwise deferred until the session returns to idle.
// A mode switch never interrupts an in-flight cycle.
func (m *Machine) SwitchMode(mode scan.CaptureMode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown capture mode %q", mode)
	}
	reply := make(chan error, 1)
	if !m.send(cmdSwitchMode{mode: mode, reply: reply}) {
		return context.Canceled
	}
	return <-reply
}

// SetFlash toggles the device torch. Does not touch session state.
func (m *Machine) SetFlash(enabled bool) error {
	return m.dev.SetFlash(enabled)
}

// Snapshot returns a copy of the current session.
func (m *Machine) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if !m.send(cmdSnapshot{reply: reply}) {
		return Snapshot{State: scan.StateIdle}
	}
	return <-reply
}

func (m *Machine) send(cmd command) bool {
	select {
	case m.cmds <- cmd:
		return true
	case <-m.ctx.Done():
		return false
	}
}

func (m *Machine) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.ctx.Done():
	}
}

// --- run loop ---

func (m *Machine) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			m.stopFocusTimer()
			return
		case cmd := <-m.cmds:
			m.handleCommand(cmd)
		case ev := <-m.events:
			m.handleEvent(ev)
		}
	}
}

func (m *Machine) handleCommand(cmd command) {
	switch c := cmd.(type) {
	case cmdFocus:
		m.handleFocus(c)
	case cmdCapture:
		c.reply <- m.beginCapture(c.autoAnalyze)
	case cmdUpload:
		c.reply <- m.beginUpload(c.image)
	case cmdAnalyze:
		c.reply <- m.beginAnalysis(true)
	case cmdClear:
		c.reply <- m.clear()
	case cmdReset:
		c.reply <- m.reset()
	case cmdSwitchMode:
		c.reply <- m.switchMode(c.mode)
	case cmdSnapshot:
		c.reply <- m.snapshot()
	}
}

func (m *Machine) handleFocus(c cmdFocus) {
	if m.state != scan.StateIdle && m.state != scan.StateFocusing {
		return
	}
	if m.dev.Started() {
		m.dev.SetFocus(c.point)
	}
	m.transition(scan.StateFocusing)
	m.stopFocusTimer()
	gen := m.gen
	m.focusTimer = time.AfterFunc(m.dwell, func() {
		m.post(event{gen: gen, kind: evFocusExpired})
	})
}

func (m *Machine) beginCapture(autoAnalyze bool) error {
	if err := m.admit(); err != nil {
		return err
	}

	m.stopFocusTimer()
	m.transition(scan.StateCapturing)
	m.gen++
	gen := m.gen
	mode := m.mode

	go func() {
		if err := m.dev.Start(mode); err != nil {
			m.post(event{gen: gen, kind: evCaptureDone, err: err})
			return
		}
		switch mode {
		case scan.ModeVolumetric:
			img, depth, err := m.dev.CaptureVolumetric(m.ctx)
			if err != nil {
				m.post(event{gen: gen, kind: evCaptureDone, err: err})
				return
			}
			m.post(event{gen: gen, kind: evCaptureDone, image: img, depth: &depth})
		default:
			img, err := m.dev.CapturePlanar(m.ctx)
			m.post(event{gen: gen, kind: evCaptureDone, image: img, err: err})
		}
	}()

	m.autoAnalyzeNext = autoAnalyze
	return nil
}

func (m *Machine) beginUpload(image []byte) error {
	if err := m.admit(); err != nil {
		return err
	}
	if len(image) == 0 {
		return fmt.Errorf("empty image")
	}

	m.stopFocusTimer()
	m.gen++
	owned := make([]byte, len(image))
	copy(owned, image)
	m.image = owned
	m.depth = nil
	m.transition(scan.StateCaptured)
	return m.beginAnalysis(false)
}

// admit applies the access gate and the single-live-session invariant. A
// capture request supersedes an advisory focus but nothing else.
func (m *Machine) admit() error {
	st := m.signals.Snapshot()
	if d := st.Decide(); d != access.Allowed {
		return fmt.Errorf("%w: %s", scan.ErrAccessDenied, d)
	}
	if m.state != scan.StateIdle && m.state != scan.StateFocusing {
		return scan.ErrSessionBusy
	}
	m.userID = st.UserID
	return nil
}

// beginAnalysis enters Analyzing from Captured. manual distinguishes the
// explicit trigger (which must validate current state) from the auto-chain
// continuation.
func (m *Machine) beginAnalysis(manual bool) error {
	if m.state != scan.StateCaptured {
		if manual {
			return fmt.Errorf("cannot analyze from state %q", m.state)
		}
		return nil
	}

	m.transition(scan.StateAnalyzing)
	gen := m.gen
	img := make([]byte, len(m.image))
	copy(img, m.image)

	go func() {
		result, err := m.analyzer.Analyze(m.ctx, img)
		m.post(event{gen: gen, kind: evAnalysisDone, result: result, err: err})
	}()
	return nil
}

func (m *Machine) clear() error {
	if m.state != scan.StateCaptured {
		return fmt.Errorf("cannot clear from state %q", m.state)
	}
	m.toIdle()
	return nil
}

func (m *Machine) reset() error {
	switch m.state {
	case scan.StateIdle:
		return nil
	case scan.StateResulted, scan.StateFailed:
		m.toIdle()
		return nil
	default:
		return scan.ErrSessionBusy
	}
}

func (m *Machine) switchMode(mode scan.CaptureMode) error {
	if mode == m.mode && m.pendingMode == "" {
		return nil
	}
	if m.state != scan.StateIdle {
		m.pendingMode = mode
		slog.Info("mode switch deferred until idle", "mode", mode, "state", m.state)
		return nil
	}
	return m.applyMode(mode)
}

func (m *Machine) applyMode(mode scan.CaptureMode) error {
	m.mode = mode
	m.pendingMode = ""
	if m.dev.Started() {
		if err := m.dev.Start(mode); err != nil {
			return fmt.Errorf("mode switch failed: %w", err)
		}
	}
	return nil
}

func (m *Machine) handleEvent(ev event) {
	if ev.gen != m.gen {
		// Stale completion from a cycle that was cleared or reset.
		return
	}

	switch ev.kind {
	case evFocusExpired:
		if m.state == scan.StateFocusing {
			m.transition(scan.StateIdle)
		}
	case evCaptureDone:
		if m.state != scan.StateCapturing {
			return
		}
		if ev.err != nil {
			m.fail(ev.err)
			return
		}
		m.image = ev.image
		m.depth = ev.depth
		m.transition(scan.StateCaptured)
		if m.autoAnalyzeNext {
			if err := m.beginAnalysis(false); err != nil {
				m.fail(err)
			}
		}
	case evAnalysisDone:
		if m.state != scan.StateAnalyzing {
			return
		}
		if ev.err != nil {
			m.fail(ev.err)
			return
		}
		result := ev.result
		m.result = &result
		m.transition(scan.StateResulted)
		if m.userID != "" {
			img := make([]byte, len(m.image))
			copy(img, m.image)
			m.pipeline.Dispatch(result, img, m.userID)
		} else {
			slog.Info("anonymous result not persisted")
		}
	}
}

func (m *Machine) fail(err error) {
	m.err = err
	m.transition(scan.StateFailed)
	slog.Error("capture session failed", "err", err)
}

// toIdle clears the session and applies any deferred mode switch.
func (m *Machine) toIdle() {
	m.stopFocusTimer()
	m.gen++
	m.image = nil
	m.depth = nil
	m.result = nil
	m.err = nil
	m.userID = ""
	m.autoAnalyzeNext = false
	m.transition(scan.StateIdle)
	if m.pendingMode != "" {
		if err := m.applyMode(m.pendingMode); err != nil {
			slog.Error("deferred mode switch failed", "err", err)
		}
	}
}

func (m *Machine) transition(to scan.State) {
	if m.state == to {
		return
	}
	slog.Debug("session transition", "from", m.state, "to", to)
	m.state = to
}

func (m *Machine) stopFocusTimer() {
	if m.focusTimer != nil {
		m.focusTimer.Stop()
		m.focusTimer = nil
	}
}

func (m *Machine) snapshot() Snapshot {
	snap := Snapshot{
		State:       m.state,
		Mode:        m.mode,
		PendingMode: m.pendingMode,
		Err:         m.err,
	}
	if m.image != nil {
		snap.Image = make([]byte, len(m.image))
		copy(snap.Image, m.image)
	}
	if m.depth != nil {
		d := *m.depth
		snap.DepthFrame = &d
	}
	if m.result != nil {
		r := *m.result
		snap.Result = &r
	}
	return snap
}

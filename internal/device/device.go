// Package device wraps the platform camera / depth sensor behind a
// mode-aware adapter. The adapter owns mode switching, focus and flash,
// and guarantees at most one outstanding capture.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mealsnap/mealsnap/internal/scan"
)

// FocusPoint is a normalized point of interest in the frame, 0..1 on both
// axes.
type FocusPoint struct {
	X float64
	Y float64
}

// Hardware is the platform sensor boundary. Implementations are not
// required to be safe for concurrent use; the Adapter serializes access.
type Hardware interface {
	// Open establishes a sensor session in the given mode.
	Open(mode scan.CaptureMode) error
	// Close releases the sensor session. Called only while open.
	Close() error
	// Focus points the sensor at a region of interest.
	Focus(p FocusPoint) error
	// Flash toggles the torch for subsequent captures.
	Flash(enabled bool) error
	// ReadPlanar captures a single photo. Called only in standard mode.
	ReadPlanar(ctx context.Context) ([]byte, error)
	// ReadVolumetric captures a photo plus depth frame. Called only in
	// volumetric mode.
	ReadVolumetric(ctx context.Context) ([]byte, scan.DepthFrame, error)
}

// Adapter drives a Hardware sensor. All methods are safe for concurrent
// use. A second capture requested while one is outstanding fails with
// scan.ErrCaptureAlreadyInFlight rather than queuing, so the sensor never
// receives ambiguous shutter instructions.
type Adapter struct {
	mu        sync.Mutex
	hw        Hardware
	mode      scan.CaptureMode
	started   bool
	capturing bool
}

// NewAdapter wraps the given sensor.
func NewAdapter(hw Hardware) *Adapter {
	return &Adapter{hw: hw}
}

// Start establishes a sensor session in the given mode. Idempotent: if a
// session in the same mode is already up this is a no-op; a session in a
// different mode is torn down first.
func (a *Adapter) Start(mode scan.CaptureMode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown capture mode %q", mode)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started && a.mode == mode {
		return nil
	}
	if a.started {
		if err := a.hw.Close(); err != nil {
			slog.Warn("sensor close during mode switch failed", "err", err)
		}
		a.started = false
	}
	if err := a.hw.Open(mode); err != nil {
		return fmt.Errorf("%w: %v", scan.ErrDeviceUnavailable, err)
	}
	a.started = true
	a.mode = mode
	slog.Info("capture device started", "mode", mode)
	return nil
}

// Stop releases the active sensor session. Safe to call when already
// stopped.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}
	if err := a.hw.Close(); err != nil {
		return fmt.Errorf("failed to close sensor: %w", err)
	}
	a.started = false
	slog.Info("capture device stopped")
	return nil
}

// Started reports whether a sensor session is up.
func (a *Adapter) Started() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

// Mode returns the active capture mode; meaningful only while started.
func (a *Adapter) Mode() scan.CaptureMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// SetFocus points the sensor at p. Best-effort: failures are logged and
// swallowed, focus is cosmetic.
func (a *Adapter) SetFocus(p FocusPoint) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return
	}
	if err := a.hw.Focus(p); err != nil {
		slog.Warn("focus request failed", "x", p.X, "y", p.Y, "err", err)
	}
}

// SetFlash toggles the torch. Rejected while a capture is outstanding; a
// pending capture always fires with the flash state at the moment of
// shutter.
func (a *Adapter) SetFlash(enabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.capturing {
		return scan.ErrCaptureAlreadyInFlight
	}
	if !a.started {
		return scan.ErrDeviceUnavailable
	}
	if err := a.hw.Flash(enabled); err != nil {
		return fmt.Errorf("failed to toggle flash: %w", err)
	}
	return nil
}

// CapturePlanar takes a single photo. Valid only in standard mode.
func (a *Adapter) CapturePlanar(ctx context.Context) ([]byte, error) {
	if err := a.beginCapture(scan.ModeStandard, scan.ErrNotInStandardMode); err != nil {
		return nil, err
	}
	defer a.endCapture()

	img, err := a.hw.ReadPlanar(ctx)
	if err != nil {
		return nil, fmt.Errorf("planar capture failed: %w", err)
	}
	return img, nil
}

// CaptureVolumetric takes a photo paired with a depth frame. Valid only in
// volumetric mode.
func (a *Adapter) CaptureVolumetric(ctx context.Context) ([]byte, scan.DepthFrame, error) {
	if err := a.beginCapture(scan.ModeVolumetric, scan.ErrNotInVolumetricMode); err != nil {
		return nil, scan.DepthFrame{}, err
	}
	defer a.endCapture()

	img, depth, err := a.hw.ReadVolumetric(ctx)
	if err != nil {
		return nil, scan.DepthFrame{}, fmt.Errorf("volumetric capture failed: %w", err)
	}
	return img, depth, nil
}

func (a *Adapter) beginCapture(want scan.CaptureMode, wrongMode error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return scan.ErrDeviceUnavailable
	}
	if a.mode != want {
		return wrongMode
	}
	if a.capturing {
		return scan.ErrCaptureAlreadyInFlight
	}
	a.capturing = true
	return nil
}

func (a *Adapter) endCapture() {
	a.mu.Lock()
	a.capturing = false
	a.mu.Unlock()
}

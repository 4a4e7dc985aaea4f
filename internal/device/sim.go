package device

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/mealsnap/mealsnap/internal/scan"
)

// SimHardware is a file-backed sensor for development and tests. It serves
// a fixed photo for planar captures and a synthetic depth frame for
// volumetric ones.
type SimHardware struct {
	mu    sync.Mutex
	open  bool
	mode  scan.CaptureMode
	flash bool

	frame []byte
	depth scan.DepthFrame
}

// NewSimHardware returns a simulator serving the given frame bytes.
func NewSimHardware(frame []byte) *SimHardware {
	return &SimHardware{
		frame: frame,
		depth: scan.DepthFrame{Width: 256, Height: 192, Data: make([]byte, 256*192)},
	}
}

// NewSimHardwareFromFile returns a simulator serving the image at path.
func NewSimHardwareFromFile(path string) (*SimHardware, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sim frame: %w", err)
	}
	return NewSimHardware(data), nil
}

func (s *SimHardware) Open(mode scan.CaptureMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return fmt.Errorf("sim sensor already open")
	}
	s.open = true
	s.mode = mode
	return nil
}

func (s *SimHardware) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *SimHardware) Focus(p FocusPoint) error {
	if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
		return fmt.Errorf("focus point out of range: %.2f,%.2f", p.X, p.Y)
	}
	return nil
}

func (s *SimHardware) Flash(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flash = enabled
	return nil
}

func (s *SimHardware) ReadPlanar(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.frame))
	copy(out, s.frame)
	return out, nil
}

func (s *SimHardware) ReadVolumetric(ctx context.Context) ([]byte, scan.DepthFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, scan.DepthFrame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.frame))
	copy(out, s.frame)
	return out, s.depth, nil
}

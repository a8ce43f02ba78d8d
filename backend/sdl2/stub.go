//go:build !sdl2

package sdl2

import (
	"fmt"

	"github.com/arm9board/core/backend"
)

// Backend stubs out the SDL2 frontend for default builds, which skip
// the cgo-dependent go-sdl2 bindings (build with -tags sdl2 to enable
// the real implementation in sdl2.go).
type Backend struct{}

// New creates a stub SDL2 backend that fails on Init.
func New() *Backend {
	return &Backend{}
}

func (s *Backend) Init(config backend.BackendConfig) error {
	return fmt.Errorf("SDL2 backend not available - build with -tags sdl2 to enable")
}

func (s *Backend) Update(surface []uint32, width, height int) ([]backend.InputEvent, error) {
	return nil, fmt.Errorf("SDL2 backend not available")
}

func (s *Backend) Cleanup() error {
	return nil
}

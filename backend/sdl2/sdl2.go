//go:build sdl2

// Package sdl2 implements a Backend using go-sdl2 bindings: a streamed
// texture blit of the board's composited LCD surface and SDL keyboard
// capture. Grounded on jeebie/backend/sdl2/sdl2.go, simplified to a
// single texture the size of the full dual-screen surface (this core
// has no debug window, audio, or test-pattern support to carry over).
// Building this requires SDL2 development libraries; default builds
// use the stub in stub.go instead (see the sdl2 build tag).
package sdl2

import (
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/arm9board/core/backend"
	"github.com/arm9board/core/devices/lcd"
)

const (
	surfaceWidth  = lcd.HostWidth
	surfaceHeight = lcd.HostHeight
	windowWidth   = surfaceWidth
	windowHeight  = surfaceHeight
	bytesPerPixel = 4
)

// Backend implements backend.Backend using SDL2.
type Backend struct {
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	running  bool
	config   backend.BackendConfig

	pixelBuffer []byte
	eventBuffer []backend.InputEvent
}

// New creates an SDL2 backend.
func New() *Backend {
	return &Backend{}
}

func (s *Backend) Init(config backend.BackendConfig) error {
	s.config = config

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return fmt.Errorf("failed to initialize SDL2: %w", err)
	}

	title := config.Title
	if title == "" {
		title = "arm9board"
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		windowWidth, windowHeight, sdl.WINDOW_SHOWN)
	if err != nil {
		sdl.Quit()
		return fmt.Errorf("failed to create window: %w", err)
	}
	s.window = window

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		window.Destroy()
		sdl.Quit()
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	s.renderer = renderer

	texture, err := renderer.CreateTexture(sdl.PIXELFORMAT_RGBA8888, sdl.TEXTUREACCESS_STREAMING,
		surfaceWidth, surfaceHeight)
	if err != nil {
		renderer.Destroy()
		window.Destroy()
		sdl.Quit()
		return fmt.Errorf("failed to create texture: %w", err)
	}
	s.texture = texture

	s.window.Show()
	s.pixelBuffer = make([]byte, surfaceWidth*surfaceHeight*bytesPerPixel)
	s.eventBuffer = make([]backend.InputEvent, 0, 8)
	s.running = true

	slog.Info("SDL2 backend initialized")
	return nil
}

func (s *Backend) Update(surface []uint32, width, height int) ([]backend.InputEvent, error) {
	s.eventBuffer = s.eventBuffer[:0]

	for ev := sdl.PollEvent(); ev != nil; ev = sdl.PollEvent() {
		s.handleEvent(ev)
	}

	if !s.running {
		return s.eventBuffer, nil
	}

	s.renderFrame(surface, width, height)
	return s.eventBuffer, nil
}

func (s *Backend) Cleanup() error {
	slog.Info("cleaning up SDL2 backend")
	if s.texture != nil {
		s.texture.Destroy()
	}
	if s.renderer != nil {
		s.renderer.Destroy()
	}
	if s.window != nil {
		s.window.Destroy()
	}
	sdl.Quit()
	return nil
}

func (s *Backend) handleEvent(evt sdl.Event) {
	switch e := evt.(type) {
	case *sdl.QuitEvent:
		s.running = false
		s.eventBuffer = append(s.eventBuffer, backend.InputEvent{Key: "Quit", Type: backend.Press})
	case *sdl.KeyboardEvent:
		if e.Type == sdl.KEYDOWN {
			s.handleKeyDown(e.Keysym.Sym, e.Repeat)
		} else if e.Type == sdl.KEYUP {
			s.handleKeyUp(e.Keysym.Sym)
		}
	}
}

// keyMapping maps SDL2 keycodes to devices/hid.KeyMap's host key
// names, following the M/N/J/H/U/Y button-key convention.
var keyMapping = map[sdl.Keycode]string{
	sdl.K_ESCAPE: "Quit",
	sdl.K_UP:     "Up",
	sdl.K_DOWN:   "Down",
	sdl.K_LEFT:   "Left",
	sdl.K_RIGHT:  "Right",
	sdl.K_m:      "M",
	sdl.K_n:      "N",
	sdl.K_j:      "J",
	sdl.K_h:      "H",
	sdl.K_u:      "U",
	sdl.K_y:      "Y",
}

func (s *Backend) handleKeyDown(key sdl.Keycode, repeat uint8) {
	name, ok := keyMapping[key]
	if !ok {
		return
	}
	if name == "Quit" {
		s.running = false
		s.eventBuffer = append(s.eventBuffer, backend.InputEvent{Key: name, Type: backend.Press})
		return
	}
	if repeat == 0 {
		s.eventBuffer = append(s.eventBuffer, backend.InputEvent{Key: name, Type: backend.Press})
	} else {
		s.eventBuffer = append(s.eventBuffer, backend.InputEvent{Key: name, Type: backend.Hold})
	}
}

func (s *Backend) handleKeyUp(key sdl.Keycode) {
	name, ok := keyMapping[key]
	if !ok || name == "Quit" {
		return
	}
	s.eventBuffer = append(s.eventBuffer, backend.InputEvent{Key: name, Type: backend.Release})
}

func (s *Backend) renderFrame(surface []uint32, width, height int) {
	for i, px := range surface {
		idx := i * bytesPerPixel
		a := byte(px >> 24)
		r := byte(px >> 16)
		g := byte(px >> 8)
		b := byte(px)
		// ABGR byte order for little-endian RGBA8888 texture upload.
		s.pixelBuffer[idx] = a
		s.pixelBuffer[idx+1] = b
		s.pixelBuffer[idx+2] = g
		s.pixelBuffer[idx+3] = r
	}

	s.texture.Update(nil, unsafe.Pointer(&s.pixelBuffer[0]), width*bytesPerPixel)

	s.renderer.SetDrawColor(0, 0, 0, 255)
	s.renderer.Clear()
	s.renderer.Copy(s.texture, nil, nil)
	s.renderer.Present()
}

// Package backend defines the host-facing surface a frontend implements:
// render the composited LCD surface and report keypad events, the way
// jeebie/backend/backend.go decouples the emulator core from its
// terminal/SDL2/headless frontends.
package backend

// EventType mirrors jeebie/input/event.Type's Press/Hold/Release shape,
// generalized to the board's string-keyed HID mapping instead of a
// Game Boy action enum.
type EventType int

const (
	Press EventType = iota
	Hold
	Release
)

// InputEvent is a single keypad transition, keyed by the same host key
// names devices/hid.KeyMap accepts.
type InputEvent struct {
	Key  string
	Type EventType
}

// BackendConfig holds the options common to every frontend. Backends
// ignore fields they don't support, matching
// jeebie/backend.BackendConfig's "backends may ignore unsupported
// features" convention.
type BackendConfig struct {
	Title       string
	ShowDebug   bool
	TestPattern bool
}

// Backend represents a complete host frontend: it renders the LCD's
// composited surface and reports the keypad events it captured since
// the last call. surface is row-major ARGB8888, width*height long
// (devices/lcd.HostWidth/HostHeight).
type Backend interface {
	// Init prepares the frontend. Required before the first Update.
	Init(config BackendConfig) error

	// Update renders surface and returns any InputEvents collected
	// since the previous call.
	Update(surface []uint32, width, height int) ([]InputEvent, error)

	// Cleanup releases frontend resources on shutdown.
	Cleanup() error
}

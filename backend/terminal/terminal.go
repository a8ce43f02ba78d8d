// Package terminal implements a Backend using tcell for keyboard
// capture and half-block rendering of the board's dual-LCD surface in
// a terminal window. Grounded on
// jeebie/backend/terminal/terminal.go, simplified: true-color
// half-blocks replace the 4-shade grayscale mapping (this core's LCD
// is RGB888, not a 4-color Game Boy palette), and there is no CPU
// register/disassembly panel since the core ships no ARM9 CPU
// emulator to inspect.
package terminal

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/arm9board/core/backend"
)

const (
	minTermWidth  = 80
	minTermHeight = 24
	keyTimeout    = 100 * time.Millisecond
)

// Backend implements backend.Backend using tcell.
type Backend struct {
	screen  tcell.Screen
	running bool
	config  backend.BackendConfig

	keyStates  map[string]time.Time // last time each mapped key was seen pressed
	activeKeys map[string]bool      // keys active as of the previous Update
	eventQueue []backend.InputEvent // non-repeating events (quit) queued between Updates
}

// New creates a terminal backend.
func New() *Backend {
	return &Backend{}
}

func (t *Backend) Init(config backend.BackendConfig) error {
	t.config = config
	t.keyStates = make(map[string]time.Time)
	t.activeKeys = make(map[string]bool)

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to initialize terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize terminal: %w", err)
	}
	t.screen = screen
	t.running = true

	t.screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	t.screen.Clear()

	go t.handleSignals()

	slog.Info("terminal backend initialized")
	return nil
}

func (t *Backend) handleSignals() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	<-signals
	t.running = false
	t.eventQueue = append(t.eventQueue, backend.InputEvent{Key: "Quit", Type: backend.Press})
}

// Update polls tcell events, turns them into key-state transitions,
// and renders surface as width x (height/2) half-block cells.
func (t *Backend) Update(surface []uint32, width, height int) ([]backend.InputEvent, error) {
	var events []backend.InputEvent
	now := time.Now()

	for t.screen.HasPendingEvent() {
		switch ev := t.screen.PollEvent().(type) {
		case *tcell.EventKey:
			t.processKeyEvent(ev, now)
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}

	currentlyActive := make(map[string]bool)
	for key, lastSeen := range t.keyStates {
		if now.Sub(lastSeen) < keyTimeout {
			currentlyActive[key] = true
			if !t.activeKeys[key] {
				events = append(events, backend.InputEvent{Key: key, Type: backend.Press})
			} else {
				events = append(events, backend.InputEvent{Key: key, Type: backend.Hold})
			}
		} else {
			delete(t.keyStates, key)
		}
	}
	for key := range t.activeKeys {
		if !currentlyActive[key] {
			events = append(events, backend.InputEvent{Key: key, Type: backend.Release})
		}
	}
	t.activeKeys = currentlyActive

	if len(t.eventQueue) > 0 {
		events = append(events, t.eventQueue...)
		t.eventQueue = nil
	}

	if !t.running {
		return events, nil
	}

	t.render(surface, width, height)
	t.screen.Show()

	return events, nil
}

func (t *Backend) Cleanup() error {
	if t.screen != nil {
		slog.Info("cleaning up terminal backend")
		t.screen.Fini()
	}
	return nil
}

// keyNameMap converts tcell special keys into the host key names
// devices/hid.KeyMap (and this backend's own "Quit" sentinel) expect.
var keyNameMap = map[tcell.Key]string{
	tcell.KeyUp:     "Up",
	tcell.KeyDown:   "Down",
	tcell.KeyLeft:   "Left",
	tcell.KeyRight:  "Right",
	tcell.KeyEscape: "Quit",
	tcell.KeyCtrlC:  "Quit",
}

// runeNameMap converts the rune keys used by
// devices/hid.KeyMap's button mapping (M/N/J/H/U/Y) into key names.
var runeNameMap = map[rune]string{
	'm': "M",
	'n': "N",
	'j': "J",
	'h': "H",
	'u': "U",
	'y': "Y",
}

func (t *Backend) processKeyEvent(ev *tcell.EventKey, now time.Time) {
	if name, ok := keyNameMap[ev.Key()]; ok {
		if name == "Quit" {
			t.running = false
			t.eventQueue = append(t.eventQueue, backend.InputEvent{Key: "Quit", Type: backend.Press})
			return
		}
		t.keyStates[name] = now
		return
	}

	if ev.Key() == tcell.KeyRune {
		if name, ok := runeNameMap[ev.Rune()]; ok {
			t.keyStates[name] = now
		}
	}
}

func (t *Backend) render(surface []uint32, width, height int) {
	termWidth, termHeight := t.screen.Size()
	if termWidth < minTermWidth || termHeight < minTermHeight {
		t.screen.Clear()
		style := tcell.StyleDefault.Foreground(tcell.ColorRed)
		msg := fmt.Sprintf("Terminal too small! Need at least %dx%d", minTermWidth, minTermHeight)
		for i, ch := range msg {
			t.screen.SetContent(i, termHeight/2, ch, nil, style)
		}
		return
	}

	t.screen.Clear()

	for y := 0; y < height; y += 2 {
		for x := 0; x < width && x < termWidth; x++ {
			top := surface[y*width+x]
			bottom := uint32(0xFF000000)
			if y+1 < height {
				bottom = surface[(y+1)*width+x]
			}

			style := tcell.StyleDefault.
				Foreground(argbToColor(top)).
				Background(argbToColor(bottom))
			t.screen.SetContent(x, y/2, '▀', nil, style)
		}
	}
}

func argbToColor(px uint32) tcell.Color {
	r := int32(px>>16) & 0xFF
	g := int32(px>>8) & 0xFF
	b := int32(px) & 0xFF
	return tcell.NewRGBColor(r, g, b)
}

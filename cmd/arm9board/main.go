// Command arm9board runs the ARM9 core device board against a set of
// boot images and backing files, either driven by a frontend
// (terminal, SDL2) or headlessly for a fixed number of frames.
// Grounded on cmd/jeebie/main.go's cli.App flag layout and
// headless/interactive branching.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/arm9board/core/backend"
	"github.com/arm9board/core/backend/headless"
	"github.com/arm9board/core/backend/sdl2"
	"github.com/arm9board/core/backend/terminal"
	"github.com/arm9board/core/board"
	"github.com/arm9board/core/board/timing"
	"github.com/arm9board/core/devices/lcd"
)

func main() {
	app := cli.NewApp()
	app.Name = "arm9board"
	app.Description = "ARM9 core device emulator: PIC/PIT/NDMA/SDMMC/PXI/AES/SHA/RSA/HID/LCD on a shared bus"
	app.Usage = "arm9board [options]"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "itcm", Usage: "Path to the ITCM boot image"},
		cli.StringFlag{Name: "bootrom", Usage: "Path to the boot ROM image"},
		cli.StringFlag{Name: "sd", Usage: "Path to the SD card backing file"},
		cli.StringFlag{Name: "nand", Usage: "Path to the NAND/eMMC backing file"},
		cli.StringFlag{Name: "sdmmc-info", Usage: "Path to the SDMMC card info blob"},
		cli.StringFlag{Name: "extcsd", Usage: "Path to the eMMC EXT_CSD blob"},
		cli.IntFlag{Name: "ram-size", Usage: "Main RAM size in bytes (0 = default)", Value: 0},
		cli.BoolFlag{Name: "headless", Usage: "Run without a graphical interface"},
		cli.BoolFlag{Name: "sdl2", Usage: "Use the SDL2 frontend instead of the terminal frontend"},
		cli.IntFlag{Name: "frames", Usage: "Number of frames to run in headless mode (0 = unlimited)", Value: 0},
		cli.IntFlag{Name: "snapshot-interval", Usage: "Save a surface snapshot every N frames in headless mode (0 = disabled)", Value: 0},
		cli.StringFlag{Name: "snapshot-dir", Usage: "Directory to save snapshots (default: temp directory)"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		slog.Error("arm9board exited with an error", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := board.Config{
		ITCMPath:      c.String("itcm"),
		BootROMPath:   c.String("bootrom"),
		SDPath:        c.String("sd"),
		NANDPath:      c.String("nand"),
		SDMMCInfoPath: c.String("sdmmc-info"),
		ExtCSDPath:    c.String("extcsd"),
		RAMSize:       uint32(c.Int("ram-size")),
	}

	b, err := board.NewBoard(cfg)
	if err != nil {
		return fmt.Errorf("failed to construct board: %w", err)
	}

	if c.Bool("headless") {
		return runHeadless(b, c)
	}
	return runInteractive(b, c)
}

func runHeadless(b *board.Board, c *cli.Context) error {
	frames := c.Int("frames")

	snapshotCfg, err := headless.CreateSnapshotConfig(c.Int("snapshot-interval"), c.String("snapshot-dir"), "arm9board")
	if err != nil {
		return err
	}

	h := headless.New(frames, snapshotCfg)
	if err := h.Init(backend.BackendConfig{Title: "arm9board"}); err != nil {
		return err
	}
	defer h.Cleanup()

	for !h.Done() {
		b.RunFrame()
		if _, err := h.Update(b.LCD().Surface(), lcd.HostWidth, lcd.HostHeight); err != nil {
			return err
		}
	}

	return nil
}

func runInteractive(b *board.Board, c *cli.Context) error {
	var fe backend.Backend
	if c.Bool("sdl2") {
		fe = sdl2.New()
	} else {
		fe = terminal.New()
	}

	if err := fe.Init(backend.BackendConfig{Title: "arm9board"}); err != nil {
		return err
	}
	defer fe.Cleanup()

	limiter := timing.NewTickerLimiter()
	defer limiter.Stop()

	for {
		b.RunFrame()

		events, err := fe.Update(b.LCD().Surface(), lcd.HostWidth, lcd.HostHeight)
		if err != nil {
			return err
		}

		quit := false
		for _, ev := range events {
			if ev.Key == "Quit" {
				quit = true
				continue
			}
			applyKeyEvent(b, ev)
		}
		if quit {
			return nil
		}

		limiter.WaitForNextFrame()
	}
}

func applyKeyEvent(b *board.Board, ev backend.InputEvent) {
	switch ev.Type {
	case backend.Press, backend.Hold:
		b.HID().Press(ev.Key)
	case backend.Release:
		b.HID().Release(ev.Key)
	}
}

package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petems/birthday-tray/internal/console"
	"github.com/petems/birthday-tray/internal/logging"
)

func newListenCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Run the cake in the terminal instead of the menu bar",
		Long: strings.TrimSpace(`
Opens the microphone right away and draws the cake on the terminal.

Keys (followed by Enter):
  <Enter>  start listening, or blow when the microphone is unavailable
  b        blow without the microphone
  s        stop listening
  r        relight the candles
  q        quit

The command also ends when standard input is closed.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, cmd.Flags())
			if err != nil {
				return err
			}
			log := logging.NewWithLevel(cfg.LogLevel)

			screen := console.New(cmd.OutOrStdout())
			defer screen.Finish()

			c, err := build(cfg, log, nil)
			if err != nil {
				return err
			}
			defer c.close()
			c.app.SetStatusUpdater(screen)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c.background(ctx, opts, cmd.Flags())
			if hk := c.registerHotkey(); hk != nil {
				defer hk.Close()
			}

			// Permission and device failures switch the app to manual blowing
			if err := c.app.StartListening(ctx); err != nil {
				log.Debug().Err(err).Msg("Continuing without microphone")
			}

			return readKeys(ctx, cmd.InOrStdin(), c.app)
		},
	}
}

// keyActions is the part of the app the keyboard drives
type keyActions interface {
	OnHotkey(pressed bool)
	ManualBlow()
	StopListening()
	Relight()
}

// readKeys maps terminal input onto app actions until q, EOF or ctx ends
func readKeys(ctx context.Context, in io.Reader, a keyActions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch strings.ToLower(line) {
			case "":
				a.OnHotkey(true)
			case "b":
				a.ManualBlow()
			case "s":
				a.StopListening()
			case "r":
				a.Relight()
			case "q":
				return nil
			}
		}
	}
}

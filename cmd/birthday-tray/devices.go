package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/petems/birthday-tray/internal/audio"
)

func newDevicesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, cmd.Flags())
			if err != nil {
				return err
			}

			capture := audio.New(zerolog.Nop())
			defer capture.Close()

			devices, err := capture.ListDevices()
			if err != nil {
				return fmt.Errorf("list devices: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, d := range devices {
				marker := " "
				if d.ID == cfg.Audio.DeviceID || (cfg.Audio.DeviceID == "" && d.Default) {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, d.Name)
			}
			return nil
		},
	}
}

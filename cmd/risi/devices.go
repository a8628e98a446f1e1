package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"risi/internal/audio/device"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := device.Init(); err != nil {
			return fmt.Errorf("init audio: %w", err)
		}
		defer device.Close()

		inputs, err := device.Inputs()
		if err != nil {
			return err
		}
		if len(inputs) == 0 {
			return device.ErrNoInputDevice
		}

		out := cmd.OutOrStdout()
		for _, d := range inputs {
			mark := " "
			if d.Default {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %-40s %2d ch  %6.0f Hz\n", mark, d.Name, d.Channels, d.SampleRate)
		}
		return nil
	},
}

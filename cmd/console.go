package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mikro-design/rv32sim-dap-adapter/engine"
)

var consoleSimPath string

// consoleCmd attaches the developer console directly to GDB/rv32sim
// without a DAP client in the loop, for poking at the adapter by hand.
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Launch GDB and rv32sim and drop into a developer console",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s := engine.NewSession(nopWriter{})

		if consoleSimPath != "" {
			if err := s.SpawnSimulator(engine.SimulatorConfig{Path: consoleSimPath}); err != nil {
				return err
			}
		}
		if err := s.Spawn(engine.LaunchConfig{}); err != nil {
			return err
		}

		s.RunConsole(ctx)
		s.Shutdown(ctx)
		return nil
	},
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func init() {
	consoleCmd.Flags().StringVar(&consoleSimPath, "sim-path", "", "path to the rv32sim binary to spawn (omit if already running)")
	RootCmd.AddCommand(consoleCmd)
}

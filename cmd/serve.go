// Copyright © 2016 Sidharth Kshatriya
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mikro-design/rv32sim-dap-adapter/engine"
	"github.com/mikro-design/rv32sim-dap-adapter/internal/dapframe"
)

var simulatorPath string
var simulatorArgs []string
var simulatorWritesDisabled bool

// serveCmd runs the adapter loop proper: read Content-Length-framed DAP
// requests from stdin, dispatch each one to completion before reading the
// next, and write DAP responses/events to stdout. This is the subcommand
// an IDE's debug extension actually spawns.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the DAP adapter over stdio, mediating between an IDE and GDB driving rv32sim",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(os.Stdin, os.Stdout)
	},
}

func init() {
	serveCmd.Flags().StringVar(&simulatorPath, "sim-path", "", "path to the rv32sim binary to spawn (omit if already running)")
	serveCmd.Flags().StringSliceVar(&simulatorArgs, "sim-arg", nil, "extra argv entries to pass to rv32sim (repeatable)")
	serveCmd.Flags().BoolVar(&simulatorWritesDisabled, "sim-writes-disabled", false, "answer MMIO write prompts automatically with their reported value instead of surfacing them")
	RootCmd.AddCommand(serveCmd)
}

func runServe(r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := engine.NewSession(w)
	go s.WatchParent(ctx)

	if simulatorPath != "" {
		if err := s.SpawnSimulator(engine.SimulatorConfig{
			Path:           simulatorPath,
			Args:           simulatorArgs,
			WritesDisabled: simulatorWritesDisabled,
		}); err != nil {
			return fmt.Errorf("spawning simulator: %w", err)
		}
	}

	framer := dapframe.New()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, msg := range framer.Feed(buf[:n]) {
				s.HandleRequest(ctx, msg)
			}
		}
		if err != nil {
			if err == io.EOF {
				s.Shutdown(ctx)
				return nil
			}
			return fmt.Errorf("reading dap stream: %w", err)
		}
	}
}

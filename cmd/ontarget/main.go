// Copyright 2025 Tom Barlow
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

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/probelab/ontarget/internal/config"
	"github.com/probelab/ontarget/internal/gdbproc"
	"github.com/probelab/ontarget/internal/gdbscript"
	otlog "github.com/probelab/ontarget/internal/log"
	"github.com/probelab/ontarget/pkg/target"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   "ontarget",
		Short: "Drive firmware tests on physical hardware through a debug probe",
		Long: `ontarget drives a gdb client in machine-interface mode to test firmware
running on physical hardware behind a debug probe. This command line tool
covers setup checks; the engine itself is used as a library.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newDoctorCmd(&cfgPath))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ontarget %s (commit %s, built %s)\n", version, commit, buildDate)
		},
	}
}

func newDoctorCmd(cfgPath *string) *cobra.Command {
	var serverAddr string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the local debugger setup",
		Long: `doctor launches the configured gdb client, speaks MI to it, and
optionally connects to a gdbserver, reporting what works and what does not.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger := otlog.New(otlog.FromEnv())

			fmt.Printf("gdb binary:   %s\n", cfg.GDB.Path)

			proc, err := gdbproc.Start(cfg.GDB.Path, gdbproc.MIArgs(), logger)
			if err != nil {
				return err
			}
			defer proc.Stop(2 * time.Second)

			sess := target.NewSession(proc.Reader(), proc.Writer(), cfg, logger)
			payload, err := sess.Call("-gdb-version", 10*time.Second)
			if err != nil {
				return err
			}
			fmt.Println("mi channel:   ok")
			if v := payload.String("version"); v != "" {
				fmt.Printf("gdb version:  %s\n", v)
			}

			scriptPath, err := gdbscript.Materialize("")
			if err != nil {
				return err
			}
			fmt.Printf("resident script: %s\n", scriptPath)

			if serverAddr == "" {
				serverAddr = cfg.GDB.ServerAddr
			}
			if serverAddr == "" {
				fmt.Println("gdbserver:    skipped (no address configured)")
				return nil
			}

			tgt := target.New(sess, target.JLink{}, cfg, logger)
			defer tgt.Close()
			if err := tgt.Connect(serverAddr, scriptPath); err != nil {
				return err
			}
			fmt.Printf("gdbserver:    connected (%s)\n", serverAddr)

			running, err := tgt.QueryRunning()
			if err != nil {
				return err
			}
			fmt.Printf("target state: running=%v\n", running)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverAddr, "server", "", "gdbserver address (host:port)")
	return cmd
}

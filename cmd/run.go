package cmd

import (
	"context"
	"os"

	"github.com/relex/bulk-sink/defs"
	"github.com/relex/bulk-sink/run"
	"github.com/relex/bulk-sink/util"
	"github.com/relex/gotils/logger"
)

type runCommandState struct {
	Config      string `help:"Configuration file path"`
	Input       string `help:"Input NDJSON file path, wildcard pattern or '-' for stdin"`
	MetricsAddr string `help:"The listener address to expose Prometheus metrics and debug information, empty to disable"`
	TestMode    bool   `help:"Use test mode config: short timeout"`
}

var runCmd runCommandState = runCommandState{
	Config:      "config.yml",
	Input:       run.StdinInput,
	MetricsAddr: ":9335",
	TestMode:    false,
}

func (cmd *runCommandState) run(args []string) {
	if cmd.TestMode {
		defs.EnableTestMode()
	}

	if cmd.MetricsAddr != "" {
		msrv := util.LaunchMetricsListener(cmd.MetricsAddr)
		defer func() {
			if err := msrv.Shutdown(context.Background()); err != nil {
				logger.Errorf("error shutting down metrics listener: %v", err)
			}
		}()
	}

	if _, err := run.Run(cmd.Config, cmd.Input); err != nil {
		logger.Errorf("run: %s", err.Error())
		rootCmd.postRun()
		os.Exit(1)
	}
}

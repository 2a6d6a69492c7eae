package cmd

import (
	"github.com/relex/bulk-sink/run"
	"github.com/relex/gotils/logger"
)

type deadLetterCommandState struct {
	Config string `help:"Configuration file path"`
}

var deadLetterCmd = deadLetterCommandState{
	Config: "config.yml",
}

func (cmd *deadLetterCommandState) runResend(_ []string) {
	result, err := run.ResendDeadLetters(cmd.Config)
	if err != nil {
		rootCmd.postRun()
		logger.Fatalf("resend: %s", err.Error())
	}
	logger.Infof("resend: %s", result.String())
	if result.Failed > 0 || result.Invalid > 0 {
		logger.Warnf("some payloads are kept for next try")
	}
}

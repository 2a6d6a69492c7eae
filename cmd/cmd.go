// Package cmd provides list of commands including the sink runner and dead-letter tools
package cmd

import (
	"github.com/relex/gotils/config"
)

func init() {
	config.AddParentCmdWithArgs("", "bulk-sink ships structured events to a bulk-ingest search endpoint in batches", &rootCmd, rootCmd.preRun, rootCmd.postRun)
	config.AddCmdWithArgs("run ...", "Run sink with NDJSON input", &runCmd, runCmd.run)
	config.AddCmdWithArgs("deadletter <action> ...", "Manage payloads saved by deadLetter diagnostics", &deadLetterCmd, nil)
	config.AddCmdWithArgs("deadletter resend ...", "Resend saved payloads and remove the delivered ones", nil, deadLetterCmd.runResend)
}

// Execute parses the command line and runs the specified command
func Execute() {
	config.Execute()
}

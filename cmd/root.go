package cmd

import (
	"os"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/relex/gotils/logger"
)

// rootCommandState holds options shared by all commands
type rootCommandState struct {
	CPUProfile string `name:"cpuprofile" help:"Write CPU profile to file."`
	MemProfile string `name:"memprofile" help:"Write heap profile to file on exit."`

	cpuProfileFile *os.File
	stopOnce       sync.Once
}

var rootCmd rootCommandState

func (cmd *rootCommandState) preRun() {
	if cmd.CPUProfile == "" {
		return
	}
	f, err := os.Create(cmd.CPUProfile)
	if err != nil {
		logger.Fatalf("failed to create CPU profile %s: %s", cmd.CPUProfile, err.Error())
	}
	logger.Infof("start CPU profiling %s", cmd.CPUProfile)
	if err := pprof.StartCPUProfile(f); err != nil {
		logger.Fatalf("failed to start CPU profiling: %s", err.Error())
	}
	cmd.cpuProfileFile = f
}

// postRun finishes profiling. It may be called more than once, e.g. before os.Exit on failures.
func (cmd *rootCommandState) postRun() {
	cmd.stopOnce.Do(func() {
		if cmd.cpuProfileFile != nil {
			pprof.StopCPUProfile()
			cmd.cpuProfileFile.Close()
		}
		if cmd.MemProfile != "" {
			writeHeapProfile(cmd.MemProfile)
		}
	})
}

func writeHeapProfile(path string) {
	f, err := os.Create(path)
	if err != nil {
		logger.Errorf("failed to create memory profile %s: %s", path, err.Error())
		return
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		logger.Errorf("failed to write memory profile: %s", err.Error())
	}
}

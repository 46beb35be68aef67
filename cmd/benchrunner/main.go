package main

import (
	"os"

	"github.com/G-Research/benchrunner/cmd/benchrunner/cmd"
	"github.com/G-Research/benchrunner/internal/common"
)

// Config is handled by cmd/root.go
func main() {
	common.ConfigureCommandLineLogging()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}

package common

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/G-Research/benchrunner/internal/common/logging"
)

// ConfigureCommandLineLogging sets up plain, message-only logging for use before configuration is loaded.
// Logs go to stderr so that they do not interleave with output drawn on stdout.
func ConfigureCommandLineLogging() {
	log.SetFormatter(&logging.CommandLineFormatter{Fields: logging.CommandLineFields})
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
}

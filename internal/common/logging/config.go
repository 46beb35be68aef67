package logging

import (
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	FormatCommandLine = "cli"
	FormatText        = "text"
	FormatJson        = "json"
)

// CommandLineFields are the fields shown by the cli format.
var CommandLineFields = []string{"job", "exitCode"}

var validLogFormats = map[string]bool{
	FormatCommandLine: true,
	FormatText:        true,
	FormatJson:        true,
}

// Config defines logging configuration.
type Config struct {
	// Log level, e.g. info, debug etc
	Level string
	// Logging format, one of cli, text or json
	Format string
}

func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	return validateLogFormat(c.Format)
}

// Configure applies c to the standard logrus logger, writing to out.
func Configure(c Config, out io.Writer) error {
	if err := c.Validate(); err != nil {
		return err
	}
	level, _ := ParseLevel(c.Level)
	log.SetLevel(level)
	log.SetOutput(out)
	switch c.Format {
	case FormatJson:
		log.SetFormatter(&log.JSONFormatter{})
	case FormatText:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.SetFormatter(&CommandLineFormatter{Fields: CommandLineFields})
	}
	return nil
}

func validateLogFormat(f string) error {
	if !validLogFormats[f] {
		formats := maps.Keys(validLogFormats)
		slices.Sort(formats)
		return errors.Errorf("unknown log format: %s. Valid formats are %s", f, formats)
	}
	return nil
}

// ParseLevel accepts the logrus level names, case-insensitively.
func ParseLevel(level string) (log.Level, error) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return log.InfoLevel, errors.WithStack(err)
	}
	return parsed, nil
}

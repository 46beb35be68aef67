package logging

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// CommandLineFormatter prints the message, then the listed fields that are present on the entry,
// then the error if there is one. Everything else, including stack traces, is left out.
type CommandLineFormatter struct {
	Fields []string
}

func (f *CommandLineFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b strings.Builder
	b.WriteString(entry.Message)

	var fields []string
	for _, key := range f.Fields {
		if value, ok := entry.Data[key]; ok {
			fields = append(fields, fmt.Sprintf("%s=%v", key, value))
		}
	}
	if len(fields) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(fields, ", "))
	}
	if err, ok := entry.Data[log.ErrorKey]; ok {
		fmt.Fprintf(&b, ": %v", err)
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

package logging

import (
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

var hookedLevels = []log.Level{
	log.DebugLevel,
	log.InfoLevel,
	log.WarnLevel,
	log.ErrorLevel,
}

// PrometheusHook implements logrus.Hook
type PrometheusHook struct {
	counters map[log.Level]prometheus.Counter
}

// NewPrometheusHook creates and registers counters for each log level with r.
func NewPrometheusHook(r prometheus.Registerer) *PrometheusHook {
	counters := make(map[log.Level]prometheus.Counter)
	for _, level := range hookedLevels {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Name: "benchrunner_log_messages",
			Help: "Total number of log lines logged by level",
			ConstLabels: prometheus.Labels{
				"level": level.String(),
			},
		})
		r.MustRegister(counter)
		counters[level] = counter
	}
	return &PrometheusHook{counters: counters}
}

func (h *PrometheusHook) Levels() []log.Level {
	return hookedLevels
}

func (h *PrometheusHook) Fire(entry *log.Entry) error {
	if counter, ok := h.counters[entry.Level]; ok {
		counter.Inc()
	}
	return nil
}

package middleware

import (
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/slotwatch/internal/bot/handlers"
	"github.com/Proton-105/slotwatch/pkg/metrics"
)

// Metrics measures execution time and status for bot handlers, reporting them to Prometheus.
func Metrics(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)

		status := "ok"
		if err != nil {
			status = "error"
		}

		metrics.RecordCommand(updateLabel(c), status, time.Since(start))

		return err
	}
}

// updateLabel keeps label cardinality bounded: free text such as location
// ids and dates is reported as "text".
func updateLabel(c telebot.Context) string {
	if c == nil {
		return "unknown"
	}

	if cb := c.Callback(); cb != nil {
		unique, _, _ := strings.Cut(cb.Data, ":")
		return "callback:" + unique
	}

	if command := commandOf(c.Text()); command != "" {
		return "/" + command
	}

	return "text"
}

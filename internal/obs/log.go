package obs

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// Logger returns the shared structured logger used across the service.
// Output is one JSON object per line so log shippers can ingest it directly.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
		if lvl, err := logrus.ParseLevel(os.Getenv("KASSENWERK_LOG_LEVEL")); err == nil {
			logger.SetLevel(lvl)
		}
	})
	return logger
}

// LogRequest emits one access-log line with common HTTP fields.
func LogRequest(fields map[string]any) {
	Logger().WithFields(logrus.Fields(fields)).Info("http request")
}

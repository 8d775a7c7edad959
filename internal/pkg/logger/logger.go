package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Fields map[string]interface{}

type LogConfig struct {
	Level  string
	Format string // json or text
	Output string // stdout, stderr or file

	// File rotation settings, used when Output is "file".
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type Logger struct {
	entry *logrus.Entry
}

func New(cfg LogConfig) (*Logger, error) {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	}

	output, err := resolveOutput(cfg)
	if err != nil {
		return nil, err
	}
	base.SetOutput(output)

	return &Logger{entry: logrus.NewEntry(base)}, nil
}

func resolveOutput(cfg LogConfig) (io.Writer, error) {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("log output is file but no file path configured")
		}
		return &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		}, nil
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}
}

func orDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

// SetOutput redirects all log writes, used by tests to capture entries.
func (log *Logger) SetOutput(w io.Writer) {
	log.entry.Logger.SetOutput(w)
}

func (log *Logger) WithFields(fields Fields) *Logger {
	return &Logger{entry: log.entry.WithFields(logrus.Fields(fields))}
}

func (log *Logger) WithError(err error) *Logger {
	return &Logger{entry: log.entry.WithError(err)}
}

func (log *Logger) Debug(msg string, keysAndValues ...interface{}) {
	log.entry.WithFields(parseKeyValues(keysAndValues)).Debug(msg)
}

func (log *Logger) Info(msg string, keysAndValues ...interface{}) {
	log.entry.WithFields(parseKeyValues(keysAndValues)).Info(msg)
}

func (log *Logger) Warn(msg string, keysAndValues ...interface{}) {
	log.entry.WithFields(parseKeyValues(keysAndValues)).Warn(msg)
}

func (log *Logger) Error(msg string, keysAndValues ...interface{}) {
	log.entry.WithFields(parseKeyValues(keysAndValues)).Error(msg)
}

// parseKeyValues turns a loose key-value list into structured fields. Values
// without a key land under "extra" instead of being dropped.
func parseKeyValues(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}
	if len(keysAndValues)%2 != 0 {
		fields["extra"] = keysAndValues[len(keysAndValues)-1]
	}
	return fields
}

// LogService records one service operation with its duration and outcome.
func (log *Logger) LogService(service, operation string, duration time.Duration, fields map[string]interface{}, err error) {
	entry := log.entry.WithFields(logrus.Fields{
		"service":     service,
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})

	if fields != nil {
		entry = entry.WithFields(logrus.Fields(fields))
	}

	if err != nil {
		entry.WithError(err).Error("service operation failed")
		return
	}
	entry.Info("service operation completed")
}

// LogAgent records one pipeline agent step inside a workflow.
func (log *Logger) LogAgent(workflowID, agent, operation string, duration time.Duration, fields map[string]interface{}, err error) {
	entry := log.entry.WithFields(logrus.Fields{
		"workflow_id": workflowID,
		"agent":       agent,
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})

	if fields != nil {
		entry = entry.WithFields(logrus.Fields(fields))
	}

	if err != nil {
		entry.WithError(err).Error("agent step failed")
		return
	}
	entry.Info("agent step completed")
}

// LogWorkflow records workflow lifecycle events.
func (log *Logger) LogWorkflow(workflowID, userID, event string, duration time.Duration, err error) {
	entry := log.entry.WithFields(logrus.Fields{
		"workflow_id": workflowID,
		"user_id":     userID,
		"event":       event,
		"duration_ms": duration.Milliseconds(),
	})

	if err != nil {
		entry.WithError(err).Error("workflow event")
		return
	}
	entry.Info("workflow event")
}

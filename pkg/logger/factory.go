package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ExtendedLogger is the logging interface injected into every component.
type ExtendedLogger interface {
	Infof(format string, v ...any)
	Errorf(format string, v ...any)
	Info(args ...interface{})
	Error(args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	WithField(key string, value interface{}) *logrus.Entry
	WithFields(fields logrus.Fields) *logrus.Entry
	WithError(err error) *logrus.Entry
}

// Logger implements ExtendedLogger on top of logrus without global state.
type Logger struct {
	logger *logrus.Logger
	file   *os.File
}

// CreateLogger creates a new logger instance with the specified configuration.
func CreateLogger(logFile string, level string, format string, enableStdout bool) (Logger, error) {
	logrusLogger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return Logger{}, fmt.Errorf("invalid log level: %w", err)
	}
	logrusLogger.SetLevel(logLevel)

	switch strings.ToLower(format) {
	case "json":
		logrusLogger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				filename := filepath.Base(f.File)
				return "", fmt.Sprintf("%s:%d", filename, f.Line)
			},
		})
	case "text":
		logrusLogger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				filename := filepath.Base(f.File)
				return "", fmt.Sprintf("%s:%d", filename, f.Line)
			},
		})
	default:
		return Logger{}, fmt.Errorf("unsupported log format: %s", format)
	}

	logrusLogger.SetReportCaller(true)

	var file *os.File
	if logFile == "" {
		logFile = fmt.Sprintf("logs/pcbuild-agent-%s.log", time.Now().Format("2006-01-02"))
	}

	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return Logger{}, fmt.Errorf("failed to create log directory: %w", err)
	}

	//nolint:gosec // G304: logFile comes from configuration, not user input
	file, err = os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return Logger{}, fmt.Errorf("failed to open log file: %w", err)
	}

	logrusLogger.SetOutput(file)
	if enableStdout {
		logrusLogger.SetOutput(io.MultiWriter(file, os.Stdout))
	}

	return Logger{
		logger: logrusLogger,
		file:   file,
	}, nil
}

// CreateTestLogger creates a simplified logger for tests.
func CreateTestLogger(logFile string, level string) Logger {
	logger, err := CreateLogger(logFile, level, "text", false)
	if err != nil {
		logger, _ = CreateLogger("logs/test-fallback.log", "info", "text", false)
	}
	return logger
}

// CreateDefaultLogger creates a logger with sensible defaults.
func CreateDefaultLogger() Logger {
	return CreateTestLogger("logs/default.log", "info")
}

func (l Logger) Infof(format string, v ...any) {
	l.logger.Infof(format, v...)
}

func (l Logger) Errorf(format string, v ...any) {
	l.logger.Errorf(format, v...)
}

func (l Logger) Info(args ...interface{}) {
	l.logger.Info(args...)
}

func (l Logger) Error(args ...interface{}) {
	l.logger.Error(args...)
}

func (l Logger) Debug(args ...interface{}) {
	l.logger.Debug(args...)
}

func (l Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

func (l Logger) Warn(args ...interface{}) {
	l.logger.Warn(args...)
}

func (l Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

func (l Logger) Fatal(args ...interface{}) {
	l.logger.Fatal(args...)
}

func (l Logger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatalf(format, args...)
}

func (l Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.logger.WithField(key, value)
}

func (l Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.logger.WithFields(fields)
}

func (l Logger) WithError(err error) *logrus.Entry {
	return l.logger.WithError(err)
}

// Close closes the logger's underlying file.
func (l Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

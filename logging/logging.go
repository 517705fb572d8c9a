/*
Package logging provides named logrus loggers with optional file rotation.

PURPOSE:
  Every long-running component logs through a named logger ("app",
  "closing", "http", "scheduler"). Loggers are created once per name and
  share one Config.

OUTPUT:
  stdout  Console only (default)
  file    <Dir>/<name>.log rotated by lumberjack
  both    Console and rotated file

USAGE:
  logging.Init(logging.Config{Level: "debug", Output: "both", Dir: "./logs"})
  log := logging.Get("closing")
  log.WithField("year", 2024).Info("year-end close started")

SEE ALSO:
  - config/config.go: PROFITSHARE_LOG_* settings
*/
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Output targets.
const (
	OutputStdout = "stdout"
	OutputFile   = "file"
	OutputBoth   = "both"
)

// Config controls how loggers are built.
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	Output string `yaml:"output"`
	Dir    string `yaml:"dir"`

	// Rotation (lumberjack)
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// DefaultConfig logs info and above as text to stdout.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "text",
		Output:     OutputStdout,
		Dir:        "logs",
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 30,
	}
}

var (
	loggers   = make(map[string]*logrus.Logger)
	closers   []io.Closer
	loggersMu sync.Mutex
	config    = DefaultConfig()
)

// Init sets the configuration and drops loggers created under the previous
// one. It creates the log directory when a file output is requested.
func Init(cfg Config) error {
	if cfg.Output == "" {
		cfg.Output = OutputStdout
	}
	switch cfg.Output {
	case OutputStdout, OutputFile, OutputBoth:
	default:
		return fmt.Errorf("unknown log output %q", cfg.Output)
	}
	if cfg.Output != OutputStdout {
		if cfg.Dir == "" {
			return fmt.Errorf("log output %q requires a directory", cfg.Output)
		}
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()
	closeLocked()
	config = cfg
	loggers = make(map[string]*logrus.Logger)
	return nil
}

// Get returns the logger registered under name, creating it on first use.
func Get(name string) *logrus.Logger {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[name]; ok {
		return l
	}
	l := newLogger(name)
	loggers[name] = l
	return l
}

// Close flushes and closes the rotated log files.
func Close() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	closeLocked()
}

func closeLocked() {
	for _, c := range closers {
		c.Close()
	}
	closers = nil
}

// FilePath is where the named logger writes when file output is enabled.
func FilePath(name string) string {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	return filepath.Join(config.Dir, name+".log")
}

func newLogger(name string) *logrus.Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if config.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}

	var writers []io.Writer
	if config.Output == OutputFile || config.Output == OutputBoth {
		fw := &lumberjack.Logger{
			Filename:   filepath.Join(config.Dir, name+".log"),
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   config.Compress,
		}
		closers = append(closers, fw)
		writers = append(writers, fw)
	}
	if config.Output == OutputStdout || config.Output == OutputBoth {
		writers = append(writers, os.Stdout)
	}
	l.SetOutput(io.MultiWriter(writers...))

	return l
}

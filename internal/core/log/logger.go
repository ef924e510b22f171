// Package log 日志接口和基于 logrus 的实现
//
// 组件通过包级 Debugf/Infof/Warnf/Errorf 记录，消息格式为 "Component[key]: message"。
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger 日志接口
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
}

// 输出目标和格式
const (
	OutputStderr  = "stderr"
	OutputStdout  = "stdout"
	OutputFile    = "file"
	OutputDiscard = "discard"

	FormatText = "text"
	FormatJSON = "json"
)

// Config 日志配置
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	Output string `json:"output" yaml:"output"`
	File   string `json:"file" yaml:"file"`
}

type entryLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger 包装 logrus 实例
func NewLogrusLogger(l *logrus.Logger) Logger {
	return entryLogger{entry: logrus.NewEntry(l)}
}

func (l entryLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l entryLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l entryLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l entryLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l entryLogger) WithField(key string, value interface{}) Logger {
	return entryLogger{entry: l.entry.WithField(key, value)}
}

func (l entryLogger) WithFields(fields map[string]interface{}) Logger {
	return entryLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l entryLogger) WithError(err error) Logger {
	return entryLogger{entry: l.entry.WithError(err)}
}

// NopLogger 丢弃所有日志
type NopLogger struct{}

func (NopLogger) Debugf(string, ...interface{})              {}
func (NopLogger) Infof(string, ...interface{})               {}
func (NopLogger) Warnf(string, ...interface{})               {}
func (NopLogger) Errorf(string, ...interface{})              {}
func (n NopLogger) WithField(string, interface{}) Logger     { return n }
func (n NopLogger) WithFields(map[string]interface{}) Logger { return n }
func (n NopLogger) WithError(error) Logger                   { return n }

var (
	mu          sync.RWMutex
	current     Logger
	currentFile *os.File
)

func init() {
	l := logrus.New()
	l.SetFormatter(textFormatter())
	l.SetOutput(os.Stderr)
	current = NewLogrusLogger(l)
}

func textFormatter() logrus.Formatter {
	return &logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true}
}

// Default 当前默认 Logger
func Default() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetDefault 替换默认 Logger
func SetDefault(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	current = l
}

// Configure 按配置创建 logrus 实例并设为默认；先前打开的日志文件被关闭
func Configure(cfg Config) error {
	l := logrus.New()

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %s", cfg.Level)
	}
	l.SetLevel(parsed)

	switch cfg.Format {
	case "", FormatText:
		l.SetFormatter(textFormatter())
	case FormatJSON:
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	default:
		return fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	out, file, err := openOutput(cfg)
	if err != nil {
		return err
	}
	l.SetOutput(out)

	mu.Lock()
	if currentFile != nil {
		currentFile.Close()
	}
	currentFile = file
	current = NewLogrusLogger(l)
	mu.Unlock()
	return nil
}

func openOutput(cfg Config) (io.Writer, *os.File, error) {
	switch cfg.Output {
	case "", OutputStderr:
		return os.Stderr, nil, nil
	case OutputStdout:
		return os.Stdout, nil, nil
	case OutputDiscard:
		return io.Discard, nil, nil
	case OutputFile:
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	if cfg.File == "" {
		return nil, nil, fmt.Errorf("log output is file but no file path given")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, f, nil
}

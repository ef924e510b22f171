package log

// Debugf 调试日志
func Debugf(format string, args ...interface{}) { Default().Debugf(format, args...) }

// Infof 信息日志
func Infof(format string, args ...interface{}) { Default().Infof(format, args...) }

// Warnf 警告日志
func Warnf(format string, args ...interface{}) { Default().Warnf(format, args...) }

// Errorf 错误日志
func Errorf(format string, args ...interface{}) { Default().Errorf(format, args...) }

// WithField 带字段的默认 Logger
func WithField(key string, value interface{}) Logger { return Default().WithField(key, value) }

// DisposeBridge 供 dispose.SetLogger 使用：按级别转发到默认 Logger
func DisposeBridge(level string, format string, args ...interface{}) {
	l := Default()
	switch level {
	case "debug":
		l.Debugf(format, args...)
	case "warn":
		l.Warnf(format, args...)
	case "error":
		l.Errorf(format, args...)
	default:
		l.Infof(format, args...)
	}
}

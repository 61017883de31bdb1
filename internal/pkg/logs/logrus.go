package logs

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// levels maps our levels onto logrus and lists the names config accepts.
var levels = []struct {
	level LogLevel
	lr    logrus.Level
	names []string
}{
	{DebugLevel, logrus.DebugLevel, []string{"debug", "trace"}},
	{InfoLevel, logrus.InfoLevel, []string{"info"}},
	{WarnLevel, logrus.WarnLevel, []string{"warn", "warning"}},
	{ErrorLevel, logrus.ErrorLevel, []string{"error"}},
	{FatalLevel, logrus.FatalLevel, []string{"fatal"}},
}

// ParseLevel resolves a config level name. Unknown names mean info.
func ParseLevel(name string) LogLevel {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, l := range levels {
		for _, n := range l.names {
			if n == name {
				return l.level
			}
		}
	}
	return InfoLevel
}

func toLogrus(level LogLevel) logrus.Level {
	for _, l := range levels {
		if l.level == level {
			return l.lr
		}
	}
	return logrus.InfoLevel
}

func fromLogrus(lr logrus.Level) LogLevel {
	for _, l := range levels {
		if l.lr == lr {
			return l.level
		}
	}
	if lr < logrus.FatalLevel {
		return FatalLevel
	}
	return DebugLevel
}

type defaultLogger struct {
	log *logrus.Logger
}

func newDefaultLogger() Logger {
	return newLogrus(os.Stdout, &textFormatter{color: colorEnabled("stdout")}, InfoLevel)
}

func newConfiguredLogger(opts Options) (Logger, error) {
	output := strings.ToLower(strings.TrimSpace(opts.Output))
	if output == "" {
		output = "stdout"
	}
	w, err := buildWriter(opts, output)
	if err != nil {
		return nil, err
	}

	var f logrus.Formatter = &textFormatter{color: colorEnabled(output)}
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "text":
	case "json":
		f = &logrus.JSONFormatter{TimestampFormat: timeLayout}
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
	return newLogrus(w, f, ParseLevel(opts.Level)), nil
}

func newLogrus(w io.Writer, f logrus.Formatter, level LogLevel) *defaultLogger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(f)
	log.SetLevel(toLogrus(level))
	log.AddHook(ctxFieldsHook{})
	return &defaultLogger{log: log}
}

func (l *defaultLogger) NewLogID() string {
	return uuid.New().String()
}

func (l *defaultLogger) GetLogID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	logID, _ := ctx.Value(ctxKeyLogID).(string)
	return logID
}

func (l *defaultLogger) SetLogID(ctx context.Context, logID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKeyLogID, logID)
}

func (l *defaultLogger) GetLevel() LogLevel { return fromLogrus(l.log.GetLevel()) }

func (l *defaultLogger) SetLevel(level LogLevel) { l.log.SetLevel(toLogrus(level)) }

func (l *defaultLogger) logf(ctx context.Context, level LogLevel, format string, v []interface{}) {
	entry := logrus.NewEntry(l.log)
	if ctx != nil {
		entry = entry.WithContext(ctx)
	}
	entry.Logf(toLogrus(level), format, v...)
	if level == FatalLevel {
		l.log.Exit(1)
	}
}

func (l *defaultLogger) Debug(format string, v ...interface{}) { l.logf(bg, DebugLevel, format, v) }
func (l *defaultLogger) Info(format string, v ...interface{})  { l.logf(bg, InfoLevel, format, v) }
func (l *defaultLogger) Warn(format string, v ...interface{})  { l.logf(bg, WarnLevel, format, v) }
func (l *defaultLogger) Error(format string, v ...interface{}) { l.logf(bg, ErrorLevel, format, v) }
func (l *defaultLogger) Fatal(format string, v ...interface{}) { l.logf(bg, FatalLevel, format, v) }

func (l *defaultLogger) CtxDebug(ctx context.Context, format string, v ...interface{}) {
	l.logf(ctx, DebugLevel, format, v)
}

func (l *defaultLogger) CtxInfo(ctx context.Context, format string, v ...interface{}) {
	l.logf(ctx, InfoLevel, format, v)
}

func (l *defaultLogger) CtxWarn(ctx context.Context, format string, v ...interface{}) {
	l.logf(ctx, WarnLevel, format, v)
}

func (l *defaultLogger) CtxError(ctx context.Context, format string, v ...interface{}) {
	l.logf(ctx, ErrorLevel, format, v)
}

func (l *defaultLogger) CtxFatal(ctx context.Context, format string, v ...interface{}) {
	l.logf(ctx, FatalLevel, format, v)
}

// Flush syncs the output when it supports it.
func (l *defaultLogger) Flush() {
	if s, ok := l.log.Out.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
}

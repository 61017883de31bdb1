package logs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/hertz/pkg/common/hlog"
)

// hlogAdapter routes hertz logging (webhook and admin servers, the API
// client) into our Logger under a "[hertz]" tag. Hertz startup chatter at
// Info is demoted to Debug so a bot's info log stays about updates.
type hlogAdapter struct {
	l Logger
}

var _ hlog.FullLogger = (*hlogAdapter)(nil)

var bg = context.Background()

func NewHlogLogger(l Logger) hlog.FullLogger {
	return &hlogAdapter{l: l}
}

func (a *hlogAdapter) log(ctx context.Context, level hlog.Level, msg string) {
	msg = "[hertz] " + strings.TrimPrefix(strings.TrimSpace(msg), "HERTZ: ")
	switch level {
	case hlog.LevelTrace, hlog.LevelDebug, hlog.LevelInfo:
		a.l.CtxDebug(ctx, "%s", msg)
	case hlog.LevelNotice, hlog.LevelWarn:
		a.l.CtxWarn(ctx, "%s", msg)
	case hlog.LevelError:
		a.l.CtxError(ctx, "%s", msg)
	default:
		a.l.CtxFatal(ctx, "%s", msg)
	}
}

func (a *hlogAdapter) Trace(v ...interface{})  { a.log(bg, hlog.LevelTrace, fmt.Sprint(v...)) }
func (a *hlogAdapter) Debug(v ...interface{})  { a.log(bg, hlog.LevelDebug, fmt.Sprint(v...)) }
func (a *hlogAdapter) Info(v ...interface{})   { a.log(bg, hlog.LevelInfo, fmt.Sprint(v...)) }
func (a *hlogAdapter) Notice(v ...interface{}) { a.log(bg, hlog.LevelNotice, fmt.Sprint(v...)) }
func (a *hlogAdapter) Warn(v ...interface{})   { a.log(bg, hlog.LevelWarn, fmt.Sprint(v...)) }
func (a *hlogAdapter) Error(v ...interface{})  { a.log(bg, hlog.LevelError, fmt.Sprint(v...)) }
func (a *hlogAdapter) Fatal(v ...interface{})  { a.log(bg, hlog.LevelFatal, fmt.Sprint(v...)) }

func (a *hlogAdapter) Tracef(format string, v ...interface{}) {
	a.log(bg, hlog.LevelTrace, fmt.Sprintf(format, v...))
}
func (a *hlogAdapter) Debugf(format string, v ...interface{}) {
	a.log(bg, hlog.LevelDebug, fmt.Sprintf(format, v...))
}
func (a *hlogAdapter) Infof(format string, v ...interface{}) {
	a.log(bg, hlog.LevelInfo, fmt.Sprintf(format, v...))
}
func (a *hlogAdapter) Noticef(format string, v ...interface{}) {
	a.log(bg, hlog.LevelNotice, fmt.Sprintf(format, v...))
}
func (a *hlogAdapter) Warnf(format string, v ...interface{}) {
	a.log(bg, hlog.LevelWarn, fmt.Sprintf(format, v...))
}
func (a *hlogAdapter) Errorf(format string, v ...interface{}) {
	a.log(bg, hlog.LevelError, fmt.Sprintf(format, v...))
}
func (a *hlogAdapter) Fatalf(format string, v ...interface{}) {
	a.log(bg, hlog.LevelFatal, fmt.Sprintf(format, v...))
}

func (a *hlogAdapter) CtxTracef(ctx context.Context, format string, v ...interface{}) {
	a.log(ctx, hlog.LevelTrace, fmt.Sprintf(format, v...))
}
func (a *hlogAdapter) CtxDebugf(ctx context.Context, format string, v ...interface{}) {
	a.log(ctx, hlog.LevelDebug, fmt.Sprintf(format, v...))
}
func (a *hlogAdapter) CtxInfof(ctx context.Context, format string, v ...interface{}) {
	a.log(ctx, hlog.LevelInfo, fmt.Sprintf(format, v...))
}
func (a *hlogAdapter) CtxNoticef(ctx context.Context, format string, v ...interface{}) {
	a.log(ctx, hlog.LevelNotice, fmt.Sprintf(format, v...))
}
func (a *hlogAdapter) CtxWarnf(ctx context.Context, format string, v ...interface{}) {
	a.log(ctx, hlog.LevelWarn, fmt.Sprintf(format, v...))
}
func (a *hlogAdapter) CtxErrorf(ctx context.Context, format string, v ...interface{}) {
	a.log(ctx, hlog.LevelError, fmt.Sprintf(format, v...))
}
func (a *hlogAdapter) CtxFatalf(ctx context.Context, format string, v ...interface{}) {
	a.log(ctx, hlog.LevelFatal, fmt.Sprintf(format, v...))
}

// SetLevel only narrows: hertz may quiet itself but not make the bot noisier.
func (a *hlogAdapter) SetLevel(level hlog.Level) {
	var want LogLevel
	switch level {
	case hlog.LevelTrace, hlog.LevelDebug, hlog.LevelInfo:
		return
	case hlog.LevelNotice, hlog.LevelWarn:
		want = WarnLevel
	case hlog.LevelError:
		want = ErrorLevel
	default:
		want = FatalLevel
	}
	if want > a.l.GetLevel() {
		a.l.SetLevel(want)
	}
}

func (a *hlogAdapter) SetOutput(_ io.Writer) {}

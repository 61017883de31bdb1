package logs

import (
	"context"
	"fmt"
	"testing"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/stretchr/testify/assert"
)

type recorder struct {
	level LogLevel
	lines []string
}

func (r *recorder) add(tag, format string, v ...interface{}) {
	r.lines = append(r.lines, tag+" "+fmt.Sprintf(format, v...))
}

func (r *recorder) GetLevel() LogLevel                    { return r.level }
func (r *recorder) SetLevel(level LogLevel)               { r.level = level }
func (r *recorder) Debug(format string, v ...interface{}) { r.add("D", format, v...) }
func (r *recorder) Info(format string, v ...interface{})  { r.add("I", format, v...) }
func (r *recorder) Warn(format string, v ...interface{})  { r.add("W", format, v...) }
func (r *recorder) Error(format string, v ...interface{}) { r.add("E", format, v...) }
func (r *recorder) Fatal(format string, v ...interface{}) { r.add("F", format, v...) }
func (r *recorder) CtxDebug(_ context.Context, format string, v ...interface{}) {
	r.add("D", format, v...)
}
func (r *recorder) CtxInfo(_ context.Context, format string, v ...interface{}) {
	r.add("I", format, v...)
}
func (r *recorder) CtxWarn(_ context.Context, format string, v ...interface{}) {
	r.add("W", format, v...)
}
func (r *recorder) CtxError(_ context.Context, format string, v ...interface{}) {
	r.add("E", format, v...)
}
func (r *recorder) CtxFatal(_ context.Context, format string, v ...interface{}) {
	r.add("F", format, v...)
}
func (r *recorder) NewLogID() string                                       { return "" }
func (r *recorder) GetLogID(context.Context) string                        { return "" }
func (r *recorder) SetLogID(ctx context.Context, _ string) context.Context { return ctx }
func (r *recorder) Flush()                                                 {}

func TestHlogAdapter_Levels(t *testing.T) {
	r := &recorder{level: InfoLevel}
	l := NewHlogLogger(r)

	l.Infof("HERTZ: Using network library=%s", "netpoll")
	l.Warn("slow ", "request")
	l.CtxErrorf(context.Background(), "boom %d", 1)

	assert.Equal(t, []string{
		"D [hertz] Using network library=netpoll",
		"W [hertz] slow request",
		"E [hertz] boom 1",
	}, r.lines)
}

func TestHlogAdapter_SetLevelOnlyNarrows(t *testing.T) {
	r := &recorder{level: InfoLevel}
	l := NewHlogLogger(r)

	l.SetLevel(hlog.LevelDebug)
	assert.Equal(t, InfoLevel, r.level)

	l.SetLevel(hlog.LevelError)
	assert.Equal(t, ErrorLevel, r.level)

	l.SetLevel(hlog.LevelWarn)
	assert.Equal(t, ErrorLevel, r.level)
}

package logs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tgifai/tgflow/internal/consts"
)

const timeLayout = "2006-01-02 15:04:05,000"

// Entry fields filled from the context by ctxFieldsHook.
const (
	fieldLogID     = "log_id"
	fieldUpdateID  = "update_id"
	fieldTransport = "transport"
	fieldCaller    = "caller"
)

// ctxFieldsHook copies the correlation values carried by ctx into the entry,
// so the text and JSON formats print the same facts.
type ctxFieldsHook struct{}

func (ctxFieldsHook) Levels() []logrus.Level { return logrus.AllLevels }

func (ctxFieldsHook) Fire(e *logrus.Entry) error {
	e.Data[fieldCaller] = caller()
	if e.Context == nil {
		return nil
	}
	if id, ok := e.Context.Value(ctxKeyLogID).(string); ok && id != "" {
		e.Data[fieldLogID] = id
	}
	if uid, ok := e.Context.Value(ctxKeyUpdateID).(int64); ok {
		e.Data[fieldUpdateID] = uid
	}
	if name, ok := e.Context.Value(consts.CtxKeyTransport).(string); ok && name != "" {
		e.Data[fieldTransport] = name
	}
	return nil
}

var logsDir = func() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Dir(file)
}()

// caller reports "dir/file.go:line" of the first frame outside logrus and
// this package's non-test files. Hertz logs arrive through the hlog adapter
// and get the frame that called hlog.
func caller() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		internal := strings.Contains(f.Function, "github.com/sirupsen/logrus.") ||
			strings.Contains(f.Function, "github.com/cloudwego/hertz/pkg/common/hlog.") ||
			(filepath.Dir(f.File) == logsDir && !strings.HasSuffix(f.File, "_test.go"))
		if !internal {
			return fmt.Sprintf("%s:%d", shortFilePath(f.File), f.Line)
		}
		if !more {
			return "???"
		}
	}
}

// shortFilePath keeps the parent directory: "polling/polling.go".
func shortFilePath(fullPath string) string {
	dir, file := filepath.Split(fullPath)
	if dir == "" {
		return file
	}
	return filepath.Base(filepath.Clean(dir)) + "/" + file
}

// textFormatter prints
//
//	LEVEL time dir/file.go:line log_id[ u=update_id][ t=transport] message
type textFormatter struct {
	color bool
}

func (f *textFormatter) Format(e *logrus.Entry) ([]byte, error) {
	level := strings.ToUpper(e.Level.String())
	if f.color {
		level = colorizeLevel(e.Level, level)
	}

	b := &bytes.Buffer{}
	if e.Buffer != nil {
		b = e.Buffer
	}
	fmt.Fprintf(b, "%s %s %v ", level, e.Time.Format(timeLayout), e.Data[fieldCaller])
	if id, ok := e.Data[fieldLogID]; ok {
		fmt.Fprint(b, id)
	}
	if uid, ok := e.Data[fieldUpdateID]; ok {
		fmt.Fprintf(b, " u=%v", uid)
	}
	if name, ok := e.Data[fieldTransport]; ok {
		fmt.Fprintf(b, " t=%v", name)
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)
	b.WriteByte('\n')
	return b.Bytes(), nil
}

var (
	colorDebug = color.New(color.FgCyan)
	colorInfo  = color.New(color.FgGreen)
	colorWarn  = color.New(color.FgYellow)
	colorError = color.New(color.FgRed)
)

func colorizeLevel(level logrus.Level, text string) string {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return colorDebug.Sprint(text)
	case logrus.InfoLevel:
		return colorInfo.Sprint(text)
	case logrus.WarnLevel:
		return colorWarn.Sprint(text)
	default:
		return colorError.Sprint(text)
	}
}

func colorEnabled(output string) bool {
	return output != "file" && !color.NoColor
}

func buildWriter(opts Options, output string) (io.Writer, error) {
	if output == "stdout" {
		return os.Stdout, nil
	}
	if output != "file" && output != "both" {
		return nil, fmt.Errorf("unsupported log output: %s", output)
	}

	file, err := newRotateWriter(opts)
	if err != nil {
		return nil, err
	}
	if output == "file" {
		return file, nil
	}
	return &teeWriter{stdout: os.Stdout, file: file}, nil
}

// teeWriter mirrors stdout into the log file without color codes.
type teeWriter struct {
	stdout io.Writer
	file   io.Writer
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func (w *teeWriter) Write(p []byte) (int, error) {
	if _, err := w.stdout.Write(p); err != nil {
		return 0, err
	}
	if _, err := w.file.Write(ansiPattern.ReplaceAll(p, nil)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func newRotateWriter(opts Options) (*lumberjack.Logger, error) {
	if strings.TrimSpace(opts.File) == "" {
		return nil, fmt.Errorf("log file is required when output includes file")
	}
	if dir := filepath.Dir(opts.File); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir failed: %w", err)
		}
	}

	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = 100
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: max(opts.MaxBackups, 0),
		MaxAge:     max(opts.MaxAge, 0),
		Compress:   opts.Compress,
	}, nil
}

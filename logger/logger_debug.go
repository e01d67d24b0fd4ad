//go:build debug
// +build debug

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/kr/pretty"
	"github.com/sirupsen/logrus"

	er "mountkit/errors"
)

const debugFileName = "/tmp/mountkit/debug.log"

var (
	Log = logrus.New()
)

func init() {
	Log.SetOutput(os.Stderr)
	Log.SetLevel(logrus.DebugLevel)
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "01-02 15:04:05",
	})
}

// Config represents the logger configuration
type Config struct {
	// Level is the minimum log level that will be logged
	Level string
	// Format is the log format (text or json)
	Format string
	// Output is the log output file path (if empty, uses stderr)
	Output string
	// Debug enables debug mode
	Debug bool
}

// Init applies config. Debug builds never go below debug level and always
// mirror debug messages into debugFileName.
func Init(config *Config) error {
	if err := resetDebugFile(); err != nil {
		Log.WithError(err).Warnf("debug file %s unavailable", debugFileName)
	}
	if config == nil {
		return nil
	}

	switch config.Format {
	case "json":
		Log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "01-02 15:04:05",
		})
	}

	if config.Output != "" {
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		Log.SetOutput(file)
	}

	Log.SetReportCaller(true)
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "01-02 15:04:05",
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			function := strings.TrimPrefix(f.Function, "mountkit/") + "()"
			fileLine := filepath.Base(f.File) + ":" + strconv.Itoa(f.Line)
			return function, fileLine
		},
	})

	return nil
}

func WithField(key string, value interface{}) *logrus.Entry {
	return Log.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}

func WithError(err error) *logrus.Entry {
	return Log.WithError(err)
}

// ReportError logs err with its stack at the severity it was raised with.
func ReportError(err error) {
	if err == nil {
		return
	}
	Log.Logf(er.LevelOf(err), "%+v", err)
	writeDebugFile("%+v", err)
}

// In debug builds every Debugf is duplicated into the debug file.
func Debugf(format string, args ...interface{}) {
	Log.Debugf(format, args...)
	writeDebugFile(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Log.Warnf(format, args...)
}

// Pretty formats every argument with kr/pretty before logging it.
func Pretty(format string, args ...interface{}) {
	formatted := make([]interface{}, len(args))
	for i, arg := range args {
		formatted[i] = safePrettyFormat(arg)
	}
	Debugf(format, formatted...)
}

func resetDebugFile() error {
	if err := os.MkdirAll(filepath.Dir(debugFileName), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(debugFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "============ %s ============\n", time.Now().Format("2006-01-02 15:04:05"))
	return err
}

func writeDebugFile(format string, args ...interface{}) {
	f, err := os.OpenFile(debugFileName, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	prefix := ""
	if pc, file, line, ok := runtime.Caller(2); ok {
		name := runtime.FuncForPC(pc).Name()
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		prefix = fmt.Sprintf("%s(), @[%s:%d] ", name, filepath.Base(file), line)
	}
	_, _ = fmt.Fprintf(f, prefix+format+"\n", args...)
}

// pretty.Sprint walks arbitrary values; large outputs are truncated.
func safePrettyFormat(arg interface{}) (out interface{}) {
	if arg == nil {
		return "<nil>"
	}
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprintf("<error formatting %T: %v>", arg, r)
		}
	}()

	s := pretty.Sprint(arg)
	const maxSize = 10 * 1024
	if len(s) > maxSize {
		s = s[:maxSize] + "\n... [TRUNCATED]"
	}
	return s
}

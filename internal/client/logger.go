package client

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sanity-io/litter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFile is where `wsc watch` and `wsc note edit` record their background passes.
const LogFile = "wsc.log"

// dump logs a deep representation of v at debug level.
func dump(l logrus.FieldLogger, message string, v any) {
	l.Debugf("%s: %s", message, litter.Sdump(v))
}

// NewLogger returns a logger appending to the rotated file at filename.
// With console, entries are also written to stderr.
func NewLogger(filename string, level logrus.Level, console bool) *logrus.Logger {
	var out io.Writer = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    20, // megabytes
		MaxBackups: 2,
		MaxAge:     10, // days
	}
	if console {
		out = io.MultiWriter(os.Stderr, out)
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(new(logFormatter))
	log.SetOutput(out)
	return log
}

// logFormatter writes one line per entry: time, level, message, then the sorted fields.
type logFormatter struct{}

// Format implements logrus.Formatter.
func (f *logFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %-5s %s",
		entry.Time.UTC().Format(time.RFC3339),
		strings.ToUpper(entry.Level.String()),
		entry.Message,
	)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

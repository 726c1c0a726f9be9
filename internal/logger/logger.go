package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[37m"
)

// PrettyFormatter renders one colourised line per entry:
// time, level, message and then the sorted fields.
type PrettyFormatter struct {
	NoColor bool
}

func (f *PrettyFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	b.WriteString(entry.Time.Format(time.TimeOnly))
	b.WriteByte(' ')
	b.WriteString(f.colorizeLevel(entry.Level))
	b.WriteByte(' ')
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if f.NoColor {
			fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
			continue
		}
		fmt.Fprintf(&b, " %s%s%s=%v", colorGray, k, colorReset, entry.Data[k])
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *PrettyFormatter) colorizeLevel(level logrus.Level) string {
	var color string
	var name string

	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		color = colorBlue
		name = "DEBUG"
	case logrus.InfoLevel:
		color = colorGreen
		name = "INFO"
	case logrus.WarnLevel:
		color = colorYellow
		name = "WARN"
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		color = colorRed
		name = "ERROR"
	default:
		color = colorGray
		name = strings.ToUpper(level.String())
	}

	if f.NoColor {
		return fmt.Sprintf("%-5s", name)
	}
	return fmt.Sprintf("%s%-5s%s", color, name, colorReset)
}

// NewLogger returns a logger writing pretty lines to stdout at info level.
func NewLogger() *logrus.Logger {
	return New(os.Stdout, "info")
}

// New builds a logger for out. An unknown level falls back to info.
func New(out io.Writer, level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&PrettyFormatter{NoColor: os.Getenv("NO_COLOR") != ""})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// Discard returns a logger that drops everything, handy in tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

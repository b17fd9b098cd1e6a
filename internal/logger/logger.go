package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
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

// PrettyFormatter renders one colored line per entry:
// "15:04:05 LEVEL message key=value ...". Fields are sorted by key.
type PrettyFormatter struct{}

func (f *PrettyFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	fmt.Fprintf(&b, "%s %s %s", e.Time.Format(time.TimeOnly), colorizeLevel(e.Level), e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(&b, " %s%s%s=%v", colorGray, k, colorReset, e.Data[k])
	}
	b.WriteByte('\n')

	return b.Bytes(), nil
}

func colorizeLevel(level logrus.Level) string {
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
		name = level.String()
	}

	return fmt.Sprintf("%s%-5s%s", color, name, colorReset)
}

func NewLogger() *logrus.Logger {
	return New(os.Stdout, logrus.DebugLevel)
}

func New(out io.Writer, level logrus.Level) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&PrettyFormatter{})
	log.SetLevel(level)
	return log
}

// Discard is a logger that drops everything, handy in tests.
func Discard() *logrus.Logger {
	return New(io.Discard, logrus.PanicLevel)
}

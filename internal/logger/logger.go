// Package logger writes leveled JSON log lines with a field map. It wraps the
// gommon logger that Echo itself uses, so application and framework output
// share one format and one destination.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/labstack/gommon/log"
)

var std = log.New("lab-portal")

// Init points the logger at w (stdout when nil) and sets the minimum level:
// "debug", "info", "warn" or "error". Unknown levels fall back to info.
func Init(level string, w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	std.SetOutput(w)
	std.SetHeader(`{"time":"${time_rfc3339}","level":"${level}","prefix":"${prefix}"}`)
	std.SetLevel(parseLevel(level))
}

// Echo returns the underlying logger so it can be installed as e.Logger.
func Echo() *log.Logger { return std }

func Debug(msg string, fields map[string]any) { std.Debugj(entry(msg, fields)) }
func Info(msg string, fields map[string]any)  { std.Infoj(entry(msg, fields)) }
func Warn(msg string, fields map[string]any)  { std.Warnj(entry(msg, fields)) }
func Error(msg string, fields map[string]any) { std.Errorj(entry(msg, fields)) }

// Fatal logs and exits the process.
func Fatal(msg string, fields map[string]any) { std.Fatalj(entry(msg, fields)) }

func entry(msg string, fields map[string]any) log.JSON {
	j := make(log.JSON, len(fields)+1)
	for k, v := range fields {
		// errors marshal to {} otherwise
		if err, ok := v.(error); ok && err != nil {
			v = err.Error()
		}
		j[k] = v
	}
	j["msg"] = msg
	return j
}

func parseLevel(s string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}

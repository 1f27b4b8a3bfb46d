package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// ConsoleWriter renders zerolog JSON events as colored single lines:
//
//	Zlib: running command command="make -j 8 install" step=2
//
// The error field, if any, follows on its own line.
type ConsoleWriter struct {
	out    io.Writer
	color  colorstring.Colorize
	buffer strings.Builder
	lock   sync.Mutex
}

// NewConsoleWriter returns a ConsoleWriter writing to out.
func NewConsoleWriter(out io.Writer, noColor bool) *ConsoleWriter {
	return &ConsoleWriter{
		out: out,
		color: colorstring.Colorize{
			Colors:  colorstring.DefaultColors,
			Disable: noColor,
		},
	}
}

// skipFields are rendered specially or not at all.
var skipFields = map[string]bool{
	zerolog.LevelFieldName:     true,
	zerolog.TimestampFieldName: true,
	zerolog.MessageFieldName:   true,
	zerolog.ErrorFieldName:     true,
	"project":                  true,
}

func (w *ConsoleWriter) Write(p []byte) (n int, err error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	var evt map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	if err := d.Decode(&evt); err != nil {
		return 0, eris.Wrapf(err, "cannot decode event: %s", p)
	}

	w.buffer.Reset()
	switch evt[zerolog.LevelFieldName] {
	case "fatal", "panic", "error":
		w.buffer.WriteString(w.color.Color("[red]"))
	case "warn":
		w.buffer.WriteString(w.color.Color("[yellow]"))
	case "debug", "trace":
		w.buffer.WriteString(w.color.Color("[blue]"))
	default:
		w.buffer.WriteString(w.color.Color("[green]"))
	}

	if project, ok := evt["project"]; ok {
		fmt.Fprintf(&w.buffer, "%v: ", project)
	}
	if evt[zerolog.LevelFieldName] == "error" {
		w.buffer.WriteString("Error: ")
	}
	if msg, ok := evt[zerolog.MessageFieldName]; ok {
		fmt.Fprint(&w.buffer, msg)
	}

	var names []string
	for name := range evt {
		if !skipFields[name] {
			names = append(names, name)
		}
	}
	if len(names) > 0 {
		sort.Strings(names)
		w.buffer.WriteString(w.color.Color("[dark_gray]"))
		for _, name := range names {
			fmt.Fprintf(&w.buffer, " %s=%s", name, formatValue(evt[name]))
		}
	}

	if details, ok := evt[zerolog.ErrorFieldName]; ok {
		w.buffer.WriteString(w.color.Color("[reset][red]"))
		fmt.Fprintf(&w.buffer, "\n  %v", details)
	}

	w.buffer.WriteString(w.color.Color("[reset]"))
	w.buffer.WriteString("\n")
	if _, err := io.WriteString(w.out, w.buffer.String()); err != nil {
		return 0, err
	}
	return len(p), nil
}

func formatValue(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return fmt.Sprint(v)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

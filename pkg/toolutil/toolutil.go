package toolutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/TylerBrock/colorjson"
	"github.com/fatih/color"
	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"
)

const (
	CTJSON = "application/json"
	CTCBOR = "application/cbor"
	CTText = "text/plain"
)

var (
	logLevel = new(slog.LevelVar)
	logger   = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	// Output receives every Print* line. Tests swap it for a buffer.
	Output io.Writer = color.Output
)

// Logger returns the shared structured logger writing to stderr.
func Logger() *slog.Logger {
	return logger
}

// SetVerbose switches the shared logger between info and debug level.
func SetVerbose(verbose bool) {
	if verbose {
		logLevel.Set(slog.LevelDebug)
		return
	}
	logLevel.Set(slog.LevelInfo)
}

// KV is a single labelled value inside a MessageSection.
type KV struct {
	Key   string
	Value string
}

// MessageSection groups related KV pairs under a title.
type MessageSection struct {
	Title string
	Items []KV
}

func PrintSuccess(format string, args ...any) {
	fmt.Fprintln(Output, color.GreenString("✓ "+format, args...))
}

func PrintInfo(format string, args ...any) {
	fmt.Fprintln(Output, color.CyanString("• ")+fmt.Sprintf(format, args...))
}

func PrintError(format string, args ...any) {
	fmt.Fprintln(Output, color.RedString("✗ "+format, args...))
}

func PrintKeyValue(key string, value any) {
	fmt.Fprintf(Output, "  %s %v\n", color.New(color.FgHiBlack).Sprintf("%-10s", key+":"), value)
}

// PrintColoredMessage renders a titled block of sections followed by the
// pretty-printed body.
func PrintColoredMessage(title string, sections []MessageSection, body []byte, mime string) {
	var b strings.Builder
	b.WriteString(color.New(color.Bold, color.FgMagenta).Sprintf("── %s ──", title))
	b.WriteString("\n")
	for _, s := range sections {
		if len(s.Items) == 0 {
			continue
		}
		b.WriteString(color.New(color.FgYellow).Sprint(s.Title))
		b.WriteString("\n")
		for _, it := range s.Items {
			fmt.Fprintf(&b, "  %s: %s\n", color.New(color.FgHiBlack).Sprint(it.Key), it.Value)
		}
	}
	if pretty := PrettyBodyByMIME(mime, body); pretty != "" {
		b.WriteString(pretty)
		b.WriteString("\n")
	}
	fmt.Fprint(Output, b.String())
}

// PrettyBodyByMIME formats JSON and CBOR bodies as colored JSON. Anything else,
// including undecodable input, is returned as text.
func PrettyBodyByMIME(mime string, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var v any
	switch {
	case strings.HasPrefix(mime, CTJSON):
		if err := json.Unmarshal(body, &v); err != nil {
			return string(body)
		}
	case strings.HasPrefix(mime, CTCBOR):
		dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
		if err != nil {
			return ""
		}
		if err := dm.Unmarshal(body, &v); err != nil {
			return ""
		}
	default:
		return string(body)
	}
	f := colorjson.NewFormatter()
	f.Indent = 2
	out, err := f.Marshal(v)
	if err != nil {
		return string(body)
	}
	return string(out)
}

// GuessMIME sniffs the encoding of a body this tool may have produced.
func GuessMIME(body []byte) string {
	if len(body) == 0 {
		return CTText
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return CTJSON
	}
	if cbor.Wellformed(body) == nil && !utf8.Valid(body) {
		return CTCBOR
	}
	if utf8.Valid(body) {
		return CTText
	}
	return "application/octet-stream"
}

// AddAddressFlag registers the --address listen/connect flag.
func AddAddressFlag(cmd *cobra.Command, p *string, def, usage string) {
	cmd.Flags().StringVar(p, "address", def, usage)
}

// AddNotifyFlag registers the repeatable --notify sink flag.
func AddNotifyFlag(cmd *cobra.Command, p *[]string) {
	cmd.Flags().StringArrayVar(p, "notify", nil, "Notification sink URL, e.g. nats://localhost:4222?subject=blog.published (can be repeated)")
}

package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/term"
)

const timeLayout = "2006-01-02 15:04:05"

var validFormats = []string{"table", "json"}

func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format '%s': must be one of %v", format, validFormats)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// parseHex accepts "0e0201...", "0E 02 01", "0e:02:01" and an optional 0x prefix.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return data, nil
}

// printFields renders an ordered field map as aligned "key: value" lines.
func printFields(w io.Writer, fields *orderedmap.OrderedMap[string, any]) {
	width := 0
	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		width = max(width, len(pair.Key))
	}
	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		fmt.Fprintf(w, "%-*s  %s\n", width+1, pair.Key+":", formatValue(pair.Value))
	}
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

// interruptContext cancels on Ctrl+C or SIGTERM and, when timeout > 0, after timeout.
func interruptContext(parent context.Context, stderr io.Writer, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
		inner := cancel
		cancel = func() {
			cancelTimeout()
			inner()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stderr, "\nCtrl+C pressed, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

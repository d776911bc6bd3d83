package testutils

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is the subset of testing.T the asserters use.
type TestingT interface {
	Helper()
	Errorf(format string, args ...interface{})
}

// TextOptions controls how CLI output is normalized before comparison.
type TextOptions struct {
	TrimSpace           bool `default:"true"`
	TrimTrailing        bool `default:"true"`
	IgnoreEmptyLines    bool `default:"false"`
	CollapseInnerSpaces bool `default:"false"`
	Colors              bool `default:"false"`
}

// TextOption mutates TextOptions.
type TextOption func(*TextOptions)

func WithIgnoreEmptyLines() TextOption { return func(o *TextOptions) { o.IgnoreEmptyLines = true } }

// WithCollapsedSpaces treats any run of spaces as one, which keeps tabwriter
// column widths out of the comparison.
func WithCollapsedSpaces() TextOption { return func(o *TextOptions) { o.CollapseInnerSpaces = true } }

func WithColors() TextOption { return func(o *TextOptions) { o.Colors = true } }

// AssertText fails t with a unified diff when actual differs from expected.
func AssertText(t TestingT, actual, expected string, opts ...TextOption) bool {
	t.Helper()
	o := TextOptions{}
	defaults.SetDefaults(&o)
	for _, opt := range opts {
		opt(&o)
	}

	if diff := TextDiff(actual, expected, o); diff != "" {
		t.Errorf("text mismatch:\n%s", diff)
		return false
	}
	return true
}

// TextDiff returns an empty string when the normalized texts are equal.
func TextDiff(actual, expected string, o TextOptions) string {
	a, e := normalizeText(actual, o), normalizeText(expected, o)
	if a == e {
		return ""
	}
	edits := myers.ComputeEdits("", e, a)
	unified := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", e, edits))
	if !o.Colors {
		return unified
	}
	return colorize(unified)
}

func normalizeText(s string, o TextOptions) string {
	if o.TrimSpace {
		s = strings.TrimSpace(s)
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if o.TrimTrailing {
			line = strings.TrimRight(line, " \t\r")
		}
		if o.CollapseInnerSpaces {
			line = strings.Join(strings.Fields(line), " ")
		}
		if o.IgnoreEmptyLines && strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func colorize(diff string) string {
	red, green, cyan := color.New(color.FgRed), color.New(color.FgGreen), color.New(color.FgCyan)
	for _, c := range []*color.Color{red, green, cyan} {
		c.EnableColor()
	}

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "@@"):
			lines[i] = cyan.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = red.Sprint(visibleSpaces(line))
		case strings.HasPrefix(line, "+"):
			lines[i] = green.Sprint(visibleSpaces(line))
		}
	}
	return strings.Join(lines, "\n")
}

func visibleSpaces(line string) string {
	return strings.NewReplacer(" ", "·", "\t", "→").Replace(line)
}

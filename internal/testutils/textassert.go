package testutils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is the part of testing.T that text assertions need.
type TestingT interface {
	Helper()
	Errorf(format string, args ...interface{})
}

// TextOptions controls how command output is normalized before comparing.
type TextOptions struct {
	StripANSI                bool `default:"true"`
	IgnoreTrailingWhitespace bool `default:"true"`
	IgnoreEmptyLines         bool `default:"false"`
	NormalizeCRLF            bool `default:"true"`
	Colors                   bool `default:"false"`
}

// TextOption tweaks TextOptions.
type TextOption func(*TextOptions)

// WithEmptyLinesIgnored drops blank lines on both sides.
func WithEmptyLinesIgnored() TextOption {
	return func(o *TextOptions) { o.IgnoreEmptyLines = true }
}

// WithExactWhitespace compares trailing whitespace and line endings as is.
func WithExactWhitespace() TextOption {
	return func(o *TextOptions) {
		o.IgnoreTrailingWhitespace = false
		o.NormalizeCRLF = false
	}
}

// WithColoredDiff renders the failure diff in color.
func WithColoredDiff() TextOption {
	return func(o *TextOptions) { o.Colors = true }
}

var ansiSequence = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// AssertText reports a unified diff when actual differs from expected after
// normalization. Terminal colors and CRLF line endings are ignored by default,
// so status output can be compared against plain fixtures.
func AssertText(t TestingT, expected, actual string, opts ...TextOption) bool {
	t.Helper()
	o := TextOptions{}
	defaults.SetDefaults(&o)
	for _, opt := range opts {
		opt(&o)
	}

	if diff := TextDiff(expected, actual, o); diff != "" {
		t.Errorf("Text mismatch (-expected +actual):\n%s", diff)
		return false
	}
	return true
}

// TextDiff returns the unified diff between the normalized texts, or "" when
// they match.
func TextDiff(expected, actual string, o TextOptions) string {
	want, got := normalizeText(expected, o), normalizeText(actual, o)
	if want == got {
		return ""
	}
	edits := myers.ComputeEdits("", want, got)
	diff := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", want, edits))
	if o.Colors {
		diff = colorizeDiff(diff)
	}
	return diff
}

func normalizeText(text string, o TextOptions) string {
	if o.StripANSI {
		text = ansiSequence.ReplaceAllString(text, "")
	}
	if o.NormalizeCRLF {
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if o.IgnoreTrailingWhitespace {
			line = strings.TrimRight(line, " \t")
		}
		if o.IgnoreEmptyLines && strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func colorizeDiff(diff string) string {
	header := color.New(color.FgYellow)
	hunk := color.New(color.FgCyan)
	removed := color.New(color.FgRed)
	added := color.New(color.FgGreen)
	for _, c := range []*color.Color{header, hunk, removed, added} {
		c.EnableColor()
	}

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			lines[i] = header.Sprint(line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = hunk.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = removed.Sprint(visibleWhitespace(line))
		case strings.HasPrefix(line, "+"):
			lines[i] = added.Sprint(visibleWhitespace(line))
		}
	}
	return strings.Join(lines, "\n")
}

// visibleWhitespace shows spaces as · and tabs as →.
func visibleWhitespace(line string) string {
	return strings.NewReplacer(" ", "·", "\t", "→").Replace(line)
}

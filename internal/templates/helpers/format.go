package helpers

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	markdown  = goldmark.New()
	ugcPolicy = bluemonday.UGCPolicy()
)

// ScoreDisplay appends the percent suffix to numeric scores. Placeholder and
// error values are shown as-is.
func ScoreDisplay(score string, numeric bool) string {
	if numeric {
		return score + "%"
	}
	return score
}

// ProgressStyle returns the inline width style for the completion bar.
func ProgressStyle(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return fmt.Sprintf("width: %d%%;", percent)
}

// ReasonHTML renders reason text as Markdown and strips anything outside the
// UGC allow-list.
func ReasonHTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render reason: %w", err)
	}
	return string(ugcPolicy.SanitizeBytes(buf.Bytes())), nil
}

// Reason returns a component rendering the sanitized reason HTML. Text that
// fails to convert falls back to escaped plain text.
func Reason(text string) templ.Component {
	html, err := ReasonHTML(text)
	if err != nil {
		return TextComponent(text)
	}
	return templ.Raw(html)
}

// TextComponent returns a templ component that renders escaped text.
func TextComponent(value string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, templ.EscapeString(value))
		return err
	})
}

// ButtonClass maps the submit control state to utility classes.
func ButtonClass(enabled bool) string {
	if enabled {
		return "w-full rounded-xl bg-gradient-to-r from-blue-600 to-indigo-600 px-4 py-2 font-semibold text-white shadow-md transition hover:from-blue-700 hover:to-indigo-700"
	}
	return "w-full cursor-not-allowed rounded-xl bg-gradient-to-r from-gray-400 to-gray-500 px-4 py-2 font-semibold text-white shadow-md"
}

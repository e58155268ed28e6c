// Package util implements the small standalone helpers of C10: byte-size
// formatting, safe attachment filenames, directory packing, a PDF
// first-page preview, and a text-preview guard, per spec.md §4.10.
//
// Grounded line-by-line on original_source/crates/ratmail-tui/src/util_mod.rs
// (format_size, safe_filename, zip_directory, render_pdf_first_page,
// text_preview_from_bytes), translated to Go idiom: archive/zip replaces the
// `zip` crate, os/exec replaces std::process::Command.
package util

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

// FormatSize renders a byte count as the spec's "N B"/"N KB"/"N MB" integer
// style (spec.md §4.10) with hand-rolled 1024-based thresholds, rounding to
// the nearest integer. It does not use go-humanize, whose formatters print
// decimal-point output ("1.2 MB"); HumanizeBytes exposes that form.
func FormatSize(bytes int64) string {
	switch {
	case bytes >= 1024*1024:
		return fmt.Sprintf("%d MB", round(float64(bytes)/(1024*1024)))
	case bytes >= 1024:
		return fmt.Sprintf("%d KB", round(float64(bytes)/1024))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func round(f float64) int64 {
	if f < 0 {
		return int64(f - 0.5)
	}
	return int64(f + 0.5)
}

// HumanizeBytes exposes go-humanize's own decimal-point formatting for call
// sites that want the richer form (e.g. `--long` CLI output) instead of the
// spec's terse integer style that FormatSize hand-rolls.
func HumanizeBytes(bytes int64) string {
	return humanize.Bytes(uint64(bytes))
}

// SafeFilename returns the basename only of input, defaulting to
// "attachment" when that basename is empty or a path separator
// (spec.md §4.10: "the basename only").
func SafeFilename(input string) string {
	name := filepath.Base(filepath.FromSlash(input))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" || name == string(filepath.Separator) {
		return "attachment"
	}
	return name
}

// PreviewTextMaxLines and PreviewTextMaxBytes bound PreviewText's output
// (spec.md §4.10: "cap at 200 lines or ~64 KiB").
const (
	PreviewTextMaxLines = 200
	PreviewTextMaxBytes = 64 * 1024
)

// PreviewText decodes bytes as UTF-8 text for display, rejecting any input
// containing a NUL byte, and caps the result at PreviewTextMaxLines lines
// or PreviewTextMaxBytes, appending a truncation marker when either limit
// was hit (spec.md §4.10).
func PreviewText(data []byte) (string, bool) {
	for _, b := range data {
		if b == 0 {
			return "", false
		}
	}
	if len(data) == 0 {
		return "(empty file)", true
	}
	if !utf8.Valid(data) {
		return "", false
	}

	truncatedBytes := false
	if len(data) > PreviewTextMaxBytes {
		data = data[:PreviewTextMaxBytes]
		truncatedBytes = true
		// Avoid splitting a multi-byte rune at the cut point.
		for len(data) > 0 && !utf8.Valid(data) {
			data = data[:len(data)-1]
		}
	}

	var b strings.Builder
	lines := 0
	for _, line := range strings.Split(strings.TrimSuffix(string(data), "\n"), "\n") {
		if lines >= PreviewTextMaxLines {
			break
		}
		b.WriteString(line)
		b.WriteByte('\n')
		lines++
	}
	if truncatedBytes || lines >= PreviewTextMaxLines {
		b.WriteString("...\n(truncated)\n")
	}
	return b.String(), true
}

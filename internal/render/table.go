// Package render draws timelines and playback progress on a terminal.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/roach88/cutline/internal/timeline"
)

// DefaultWidth is used when the output is not a terminal.
const DefaultWidth = 100

// padString pads s to a display width, counting wide runes correctly.
func padString(s string, width int, leftAlign bool) string {
	actual := runewidth.StringWidth(s)
	if actual >= width {
		return s
	}
	padding := strings.Repeat(" ", width-actual)
	if leftAlign {
		return s + padding
	}
	return padding + s
}

// IsTerminal reports whether w writes to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of w, or DefaultWidth.
func Width(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width >= 40 {
			return width
		}
	}
	return DefaultWidth
}

type column struct {
	title string
	left  bool
	cell  func(i int, c timeline.Clip) string
}

var columns = []column{
	{"#", false, func(i int, _ timeline.Clip) string { return fmt.Sprint(i) }},
	{"ID", true, func(_ int, c timeline.Clip) string { return c.ID }},
	{"KIND", true, func(_ int, c timeline.Clip) string {
		if c.ThumbnailOnly {
			return c.Kind.String() + "*"
		}
		return c.Kind.String()
	}},
	{"START", false, func(_ int, c timeline.Clip) string { return seconds(c.Start()) }},
	{"END", false, func(_ int, c timeline.Clip) string { return seconds(c.End()) }},
	{"DURATION", false, func(_ int, c timeline.Clip) string { return seconds(c.Duration) }},
	{"LABEL", true, func(_ int, c timeline.Clip) string { return c.Label }},
	{"SOURCE", true, func(_ int, c timeline.Clip) string { return c.Source.Ref }},
}

// PrintTimeline writes tl as an aligned table no wider than width. The last
// column is truncated to fit. Thumbnail-only clips are marked with "*".
func PrintTimeline(w io.Writer, tl *timeline.Timeline, width int) error {
	clips := tl.Clips()
	cells := make([][]string, len(clips))
	widths := make([]int, len(columns))
	for j, col := range columns {
		widths[j] = runewidth.StringWidth(col.title)
	}
	for i, c := range clips {
		cells[i] = make([]string, len(columns))
		for j, col := range columns {
			cells[i][j] = col.cell(i, c)
			if cw := runewidth.StringWidth(cells[i][j]); cw > widths[j] {
				widths[j] = cw
			}
		}
	}

	// Everything but the last column is kept whole.
	used := 0
	for j := 0; j < len(columns)-1; j++ {
		used += widths[j] + 2
	}
	if last := width - used; last > 8 && widths[len(widths)-1] > last {
		widths[len(widths)-1] = last
	}

	row := func(values []string) string {
		parts := make([]string, len(values))
		for j, v := range values {
			v = runewidth.Truncate(v, widths[j], "…")
			parts[j] = padString(v, widths[j], columns[j].left)
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	header := make([]string, len(columns))
	for j, col := range columns {
		header[j] = col.title
	}

	var b strings.Builder
	b.WriteString(row(header))
	b.WriteByte('\n')
	for _, values := range cells {
		b.WriteString(row(values))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "%d clips, %s total, version %d\n", tl.Len(), seconds(tl.TotalDuration()), tl.Version())

	_, err := io.WriteString(w, b.String())
	return err
}

func seconds(s float64) string {
	return fmt.Sprintf("%.3fs", s)
}

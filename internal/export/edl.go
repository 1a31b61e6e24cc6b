// Package export renders timelines into interchange formats.
package export

import (
	"fmt"
	"io"
	"math"
	"path"
	"strings"
	"unicode"

	"github.com/roach88/cutline/internal/timeline"
)

// maxNameLen bounds clip names in EDL comments.
const maxNameLen = 64

// EDLOptions controls CMX3600 output.
type EDLOptions struct {
	Title     string
	FrameRate float64
}

// GenerateEDL renders tl as a CMX3600 edit decision list.
//
// Every clip becomes one video cut event. Record times follow the timeline's
// own offsets. Stills have no source timecode of their own, so their source
// range starts at zero.
func GenerateEDL(tl *timeline.Timeline, opts EDLOptions) string {
	fps := int(math.Round(opts.FrameRate))
	if fps <= 0 {
		fps = 30
	}

	lines := []string{fmt.Sprintf("TITLE: %s", sanitizeName(opts.Title, maxNameLen))}
	if isDropFrame(opts.FrameRate) {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	for i, c := range tl.Clips() {
		srcStart := 0.0
		if c.Kind == timeline.KindVideo {
			srcStart = c.Source.In
		}
		srcIn := secondsToTimecode(srcStart, fps)
		srcOut := secondsToTimecode(srcStart+c.Duration, fps)
		recIn := secondsToTimecode(c.Start(), fps)
		recOut := secondsToTimecode(c.End(), fps)

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V", srcIn, srcOut, recIn, recOut),
			fmt.Sprintf("* FROM CLIP NAME:  %s", clipName(c)),
			fmt.Sprintf("* MEDIA PATH:  %s", c.Source.Ref),
		)
		if c.ThumbnailOnly {
			lines = append(lines, "* THUMBNAIL ONLY")
		}
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// WriteEDL writes GenerateEDL's output to w.
func WriteEDL(w io.Writer, tl *timeline.Timeline, opts EDLOptions) error {
	_, err := io.WriteString(w, GenerateEDL(tl, opts))
	return err
}

func isDropFrame(rate float64) bool {
	return math.Abs(rate-29.97) < 0.01 || math.Abs(rate-59.94) < 0.01
}

func secondsToTimecode(sec float64, fps int) string {
	totalFrames := int(math.Round(sec * float64(fps)))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}

func clipName(c timeline.Clip) string {
	name := c.Label
	if name == "" {
		name = path.Base(strings.ReplaceAll(c.Source.Ref, "\\", "/"))
	}
	return sanitizeName(name, maxNameLen)
}

// sanitizeName drops control characters and replaces anything outside a
// conservative set, since EDL readers choke on exotic bytes.
func sanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

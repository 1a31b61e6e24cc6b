package timeline

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// DomainTimeline separates timeline fingerprints from any other hash that
// might be computed over the same bytes.
const DomainTimeline = "cutline/timeline/v1"

// Fingerprint returns a content hash of the ordered clip list.
//
// Two snapshots with the same clips in the same order share a fingerprint
// regardless of their Version. The hash input is canonical JSON: object keys
// sorted, no HTML escaping, strings NFC normalized, and seconds encoded as
// integer microseconds so float formatting never leaks into the identity.
func (t *Timeline) Fingerprint() string {
	clips := make([]any, 0, t.Len())
	for _, c := range t.Clips() {
		clips = append(clips, map[string]any{
			"id":             c.ID,
			"kind":           c.Kind.String(),
			"ref":            c.Source.Ref,
			"in_us":          micros(c.Source.In),
			"length_us":      micros(c.Source.Length),
			"duration_us":    micros(c.Duration),
			"label":          c.Label,
			"thumbnail":      c.Thumbnail,
			"thumbnail_only": c.ThumbnailOnly,
		})
	}

	var buf bytes.Buffer
	writeCanonical(&buf, clips)

	h := sha256.New()
	h.Write([]byte(DomainTimeline))
	h.Write([]byte{0x00})
	h.Write(buf.Bytes())
	return hex.EncodeToString(h.Sum(nil))
}

func micros(seconds float64) int64 {
	return int64(math.Round(seconds * 1e6))
}

// writeCanonical handles exactly the shapes Fingerprint builds.
func writeCanonical(buf *bytes.Buffer, v any) {
	switch val := v.(type) {
	case string:
		writeCanonicalString(buf, norm.NFC.String(val))
	case int64:
		b, _ := json.Marshal(val)
		buf.Write(b)
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, elem)
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			writeCanonical(buf, val[k])
		}
		buf.WriteByte('}')
	}
}

func writeCanonicalString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encoder appends a newline.
	buf.Truncate(buf.Len() - 1)
}

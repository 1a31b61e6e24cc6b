// Package project reads and writes cutline project files.
//
// A project file is YAML describing an ordered clip list plus a few
// presentation settings:
//
//	name: trailer
//	frame_rate: 25
//	clips:
//	  - kind: video
//	    source: media/intro.mp4
//	    source_length: 42
//	    duration: 6
//	  - kind: image
//	    source: media/title.png
//	    duration: 3
//	    label: Title card
//
// Files are checked against a CUE schema before they are decoded, so errors
// point at the offending line of the YAML. Relative sources are resolved
// against the directory holding the project file.
package project

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cutline/internal/edit"
	"github.com/roach88/cutline/internal/timeline"
)

// DefaultFrameRate is used when a project does not set frame_rate.
const DefaultFrameRate = 30.0

// File is a decoded project file.
type File struct {
	Name            string     `yaml:"name"`
	FrameRate       float64    `yaml:"frame_rate,omitempty"`
	DistancePerTime float64    `yaml:"distance_per_time,omitempty"`
	EndPolicy       string     `yaml:"end_policy,omitempty"`
	Clips           []ClipSpec `yaml:"clips"`

	// Dir is where relative sources are resolved. Set by Load.
	Dir string `yaml:"-"`
}

// ClipSpec is one clip entry.
type ClipSpec struct {
	ID            string  `yaml:"id,omitempty"`
	Kind          string  `yaml:"kind"`
	Source        string  `yaml:"source"`
	SourceIn      float64 `yaml:"source_in,omitempty"`
	SourceLength  float64 `yaml:"source_length,omitempty"`
	Duration      float64 `yaml:"duration"`
	Label         string  `yaml:"label,omitempty"`
	Thumbnail     string  `yaml:"thumbnail,omitempty"`
	ThumbnailOnly bool    `yaml:"thumbnail_only,omitempty"`
}

// Load reads, validates and decodes the project file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	f, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	f.Dir = filepath.Dir(path)
	return f, nil
}

// Parse validates and decodes project YAML. filename only labels errors.
func Parse(filename string, data []byte) (*File, error) {
	if err := validateSchema(filename, data); err != nil {
		return nil, err
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", filename, err)
	}
	return &f, nil
}

// Save writes f to path as YAML.
func Save(path string, f *File) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write project: %w", err)
	}
	return nil
}

// Rate returns the frame rate, or DefaultFrameRate when unset.
func (f *File) Rate() float64 {
	if f.FrameRate > 0 {
		return f.FrameRate
	}
	return DefaultFrameRate
}

// TimelineClips converts the clip entries. Start and end times are left to
// the timeline; IDs are kept when the file names them.
func (f *File) TimelineClips() ([]timeline.Clip, error) {
	out := make([]timeline.Clip, len(f.Clips))
	for i, cs := range f.Clips {
		kind, err := timeline.ParseKind(cs.Kind)
		if err != nil {
			return nil, fmt.Errorf("clip %d: %w", i, err)
		}
		c := timeline.Clip{
			ID:   cs.ID,
			Kind: kind,
			Source: timeline.Source{
				Ref:    f.resolve(cs.Source),
				In:     cs.SourceIn,
				Length: cs.SourceLength,
			},
			Duration:      cs.Duration,
			Label:         cs.Label,
			Thumbnail:     cs.Thumbnail,
			ThumbnailOnly: cs.ThumbnailOnly,
		}
		if kind == timeline.KindVideo && c.Source.Length > 0 && timeline.ExceedsSource(c, c.Duration) {
			return nil, fmt.Errorf("clip %d: duration %v exceeds the %v seconds available in %s",
				i, c.Duration, c.Source.Available(), cs.Source)
		}
		out[i] = c
	}
	return out, nil
}

// Timeline builds a version zero snapshot, minting IDs for unnamed clips.
func (f *File) Timeline(ids edit.IDGenerator) (*timeline.Timeline, error) {
	clips, err := f.TimelineClips()
	if err != nil {
		return nil, err
	}
	return edit.New(ids).Replace(clips)
}

// FromTimeline captures tl as a project file named name.
func FromTimeline(name string, frameRate float64, tl *timeline.Timeline) *File {
	f := &File{Name: name, FrameRate: frameRate, Clips: make([]ClipSpec, 0, tl.Len())}
	for _, c := range tl.Clips() {
		f.Clips = append(f.Clips, ClipSpec{
			ID:            c.ID,
			Kind:          c.Kind.String(),
			Source:        c.Source.Ref,
			SourceIn:      c.Source.In,
			SourceLength:  c.Source.Length,
			Duration:      c.Duration,
			Label:         c.Label,
			Thumbnail:     c.Thumbnail,
			ThumbnailOnly: c.ThumbnailOnly,
		})
	}
	return f
}

func (f *File) resolve(ref string) string {
	if f.Dir == "" || ref == "" || filepath.IsAbs(ref) {
		return ref
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return ref
	}
	return filepath.Join(f.Dir, ref)
}

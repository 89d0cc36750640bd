package gcode

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"
)

// AnnotationPrefix starts every comment this tool writes into a stream.
const AnnotationPrefix = ";SpeedChangeByLayer"

// Metadata summarizes a GCode stream for inspection.
type Metadata struct {
	Slicer        string   `json:"slicer,omitempty" yaml:"slicer,omitempty"`
	Flavor        string   `json:"flavor,omitempty" yaml:"flavor,omitempty"`
	LayerCount    *int     `json:"layer_count,omitempty" yaml:"layer_count,omitempty"`
	Lines         int      `json:"lines" yaml:"lines"`
	LayerMarkers  int      `json:"layer_markers" yaml:"layer_markers"`
	FirstLayer    *int     `json:"first_layer,omitempty" yaml:"first_layer,omitempty"`
	LastLayer     *int     `json:"last_layer,omitempty" yaml:"last_layer,omitempty"`
	FanCommands   int      `json:"fan_commands" yaml:"fan_commands"`
	SpeedCommands int      `json:"speed_commands" yaml:"speed_commands"`
	Annotations   []string `json:"annotations,omitempty" yaml:"annotations,omitempty"`

	// layers holds each distinct layer reached by a marker, ascending.
	layers []int
}

// FirstLayerFrom returns the first layer reached by a marker that is at
// or above layer.
func (m *Metadata) FirstLayerFrom(layer int) (int, bool) {
	i := sort.SearchInts(m.layers, layer)
	if i == len(m.layers) {
		return 0, false
	}
	return m.layers[i], true
}

// ScanMetadata reads the whole stream and collects slicer header values,
// layer marker extent and speed/fan command counts.
func ScanMetadata(r io.Reader) (*Metadata, error) {
	meta := &Metadata{}
	tr := NewTracker()

	br := bufio.NewReaderSize(r, 64*1024)
	for {
		raw, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		if raw == "" {
			break
		}
		line := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")
		meta.Lines++

		ev := tr.Observe(line)
		switch ev.Kind {
		case KindLayerMarker:
			meta.LayerMarkers++
			if meta.FirstLayer == nil {
				first := ev.Layer
				meta.FirstLayer = &first
			}
			last := tr.Layer()
			if n := len(meta.layers); n == 0 || meta.layers[n-1] != last {
				meta.layers = append(meta.layers, last)
			}
			meta.LastLayer = &last
			continue
		case KindFanCommand:
			meta.FanCommands++
			continue
		}

		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, ";") {
			if cmd := ParseLine(line); cmd != nil && cmd.Name == "M220" {
				meta.SpeedCommands++
			}
			continue
		}
		if strings.HasPrefix(trimmed, AnnotationPrefix) {
			meta.Annotations = append(meta.Annotations, trimmed)
			continue
		}

		body := strings.TrimSpace(strings.TrimPrefix(trimmed, ";"))
		switch {
		case strings.HasPrefix(body, "Generated with "):
			meta.Slicer = strings.TrimSpace(strings.TrimPrefix(body, "Generated with "))
		case strings.HasPrefix(body, "generated by "):
			// PrusaSlicer/SuperSlicer style
			parts := strings.SplitN(body, " ", 4)
			if len(parts) >= 3 {
				meta.Slicer = parts[2]
			}
		case strings.HasPrefix(body, "FLAVOR:"):
			meta.Flavor = strings.TrimSpace(strings.TrimPrefix(body, "FLAVOR:"))
		case strings.HasPrefix(body, "LAYER_COUNT:"):
			if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(body, "LAYER_COUNT:"))); err == nil {
				meta.LayerCount = &n
			}
		}
	}
	return meta, nil
}

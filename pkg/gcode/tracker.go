package gcode

import "math"

// LineKind classifies an input line for the override engine.
type LineKind int

const (
	// KindOther is any line the tracker does not act on.
	KindOther LineKind = iota
	// KindLayerMarker is a ";LAYER:<n>" boundary comment.
	KindLayerMarker
	// KindFanCommand is an M106/M107 for the part cooling fan.
	KindFanCommand
)

func (k LineKind) String() string {
	switch k {
	case KindLayerMarker:
		return "LAYER_MARKER"
	case KindFanCommand:
		return "FAN_COMMAND"
	default:
		return "OTHER"
	}
}

// NoLayer is the tracker's layer before the first marker. It sorts below
// every index a slicer can emit, raft layers included.
const NoLayer = math.MinInt

// Event is the classification of one line plus its parsed payload.
type Event struct {
	Kind  LineKind
	Layer int
	Fan   FanValue
}

// Tracker follows layer boundaries and the last part fan duty set by the
// stream. It never alters lines.
type Tracker struct {
	layer   int
	markers int
	lastFan FanValue
	fanSeen bool
	frozen  bool
}

// NewTracker returns a tracker in the pre-first-layer state.
func NewTracker() *Tracker {
	return &Tracker{layer: NoLayer}
}

// Observe classifies line and updates tracker state. A marker whose index
// is lower than the current layer is still reported as a marker but does
// not move the current layer backwards.
func (t *Tracker) Observe(line string) Event {
	if n, ok := ParseLayerMarker(line); ok {
		t.markers++
		if n > t.layer {
			t.layer = n
		}
		return Event{Kind: KindLayerMarker, Layer: n}
	}
	if v, ok := ParseFanCommand(line); ok {
		if !t.frozen {
			t.lastFan = v
			t.fanSeen = true
		}
		return Event{Kind: KindFanCommand, Layer: t.layer, Fan: v}
	}
	return Event{Kind: KindOther, Layer: t.layer}
}

// Freeze stops fan commands from replacing the recorded fan value.
func (t *Tracker) Freeze() {
	t.frozen = true
}

// Layer returns the highest layer index seen so far, or NoLayer.
func (t *Tracker) Layer() int {
	return t.layer
}

// Markers returns how many layer markers have been observed.
func (t *Tracker) Markers() int {
	return t.markers
}

// LastFan returns the last recorded fan value and whether one was seen.
func (t *Tracker) LastFan() (FanValue, bool) {
	return t.lastFan, t.fanSeen
}

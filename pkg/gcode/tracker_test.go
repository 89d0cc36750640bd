package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerClassifies(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, NoLayer, tr.Layer())

	ev := tr.Observe("G28")
	assert.Equal(t, KindOther, ev.Kind)
	assert.Equal(t, NoLayer, ev.Layer)

	ev = tr.Observe(";LAYER:0")
	assert.Equal(t, KindLayerMarker, ev.Kind)
	assert.Equal(t, 0, ev.Layer)
	assert.Equal(t, 0, tr.Layer())

	ev = tr.Observe("M106 S200")
	assert.Equal(t, KindFanCommand, ev.Kind)
	assert.Equal(t, 200.0, ev.Fan.Duty)
	assert.Equal(t, 0, ev.Layer)

	ev = tr.Observe(";LAYER:bogus")
	assert.Equal(t, KindOther, ev.Kind)
	assert.Equal(t, 1, tr.Markers())
}

func TestTrackerLayerNeverDecreases(t *testing.T) {
	tr := NewTracker()
	tr.Observe(";LAYER:4")
	ev := tr.Observe(";LAYER:2")

	assert.Equal(t, KindLayerMarker, ev.Kind)
	assert.Equal(t, 2, ev.Layer)
	assert.Equal(t, 4, tr.Layer())
	assert.Equal(t, 2, tr.Markers())
}

func TestTrackerRecordsFanUntilFrozen(t *testing.T) {
	tr := NewTracker()
	_, seen := tr.LastFan()
	assert.False(t, seen)

	tr.Observe("M106 S127")
	tr.Observe("M107")
	v, seen := tr.LastFan()
	assert.True(t, seen)
	assert.Equal(t, "0", v.Raw)

	tr.Observe("M106 S90")
	tr.Freeze()
	ev := tr.Observe("M106 S255")
	assert.Equal(t, KindFanCommand, ev.Kind)

	v, _ = tr.LastFan()
	assert.Equal(t, "90", v.Raw)
}

func TestLineKindString(t *testing.T) {
	assert.Equal(t, "LAYER_MARKER", KindLayerMarker.String())
	assert.Equal(t, "FAN_COMMAND", KindFanCommand.String())
	assert.Equal(t, "OTHER", KindOther.String())
}

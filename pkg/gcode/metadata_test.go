package gcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const curaHeader = `;FLAVOR:Marlin
;TIME:1234
;Generated with Cura_SteamEngine 5.6.0
;LAYER_COUNT:3
M106 S0
M220 S100
;LAYER:0
G1 X1 Y1
M106 S255
;LAYER:1
;SpeedChangeByLayer bridge: Starting at layer 1 for a total of 1 layer
M220 S50 ;Print speed 50% of original speed
;LAYER:2
M107
`

func TestScanMetadata(t *testing.T) {
	meta, err := ScanMetadata(strings.NewReader(curaHeader))
	require.NoError(t, err)

	assert.Equal(t, "Cura_SteamEngine 5.6.0", meta.Slicer)
	assert.Equal(t, "Marlin", meta.Flavor)
	require.NotNil(t, meta.LayerCount)
	assert.Equal(t, 3, *meta.LayerCount)
	assert.Equal(t, 3, meta.LayerMarkers)
	require.NotNil(t, meta.FirstLayer)
	require.NotNil(t, meta.LastLayer)
	assert.Equal(t, 0, *meta.FirstLayer)
	assert.Equal(t, 2, *meta.LastLayer)
	assert.Equal(t, 3, meta.FanCommands)
	assert.Equal(t, 2, meta.SpeedCommands)
	assert.Len(t, meta.Annotations, 1)
	assert.Equal(t, 14, meta.Lines)
}

func TestScanMetadataPrusaHeader(t *testing.T) {
	meta, err := ScanMetadata(strings.NewReader("; generated by PrusaSlicer 2.7.1 on 2024-01-01\nG28\n"))
	require.NoError(t, err)
	assert.Equal(t, "PrusaSlicer", meta.Slicer)
	assert.Nil(t, meta.FirstLayer)
	assert.Nil(t, meta.LayerCount)
	assert.Zero(t, meta.LayerMarkers)
}

func TestScanMetadataFirstLayerFrom(t *testing.T) {
	meta, err := ScanMetadata(strings.NewReader(";LAYER:0\n;LAYER:1\n;LAYER:1\n;LAYER:9\n;LAYER:4\n"))
	require.NoError(t, err)

	tests := []struct {
		from  int
		want  int
		found bool
	}{
		{0, 0, true},
		{1, 1, true},
		{2, 9, true},
		{9, 9, true},
		{10, 0, false},
	}
	for _, tt := range tests {
		got, ok := meta.FirstLayerFrom(tt.from)
		assert.Equal(t, tt.found, ok, "from %d", tt.from)
		assert.Equal(t, tt.want, got, "from %d", tt.from)
	}
	// A decreasing marker does not lower the reached layer.
	assert.Equal(t, 9, *meta.LastLayer)
}

func TestScanMetadataLongLines(t *testing.T) {
	long := ";" + strings.Repeat("x", 2<<20)
	meta, err := ScanMetadata(strings.NewReader(";LAYER:0\r\n" + long + "\r\nM106 S10\r\n;LAYER:1"))
	require.NoError(t, err)
	assert.Equal(t, 4, meta.Lines)
	assert.Equal(t, 2, meta.LayerMarkers)
	assert.Equal(t, 1, meta.FanCommands)
	assert.Equal(t, 1, *meta.LastLayer)
}

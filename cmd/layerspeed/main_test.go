package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `;FLAVOR:Marlin
;Generated with Cura_SteamEngine 5.6.0
M106 S127
;LAYER:0
G1 X1 E1
;LAYER:1
G1 X2 E2
;LAYER:2
G1 X3 E3
M84
`

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTemp(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

// unsetEnv clears key for the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestApplyStdinToStdout(t *testing.T) {
	unsetEnv(t, "LAYERSPEED_PROFILE")
	out, stderr, err := execute(t, sample,
		"apply", "--layer", "2", "--print-speed", "50", "--fan-speed", "30", "--no-annotate")
	require.NoError(t, err)

	want := `;FLAVOR:Marlin
;Generated with Cura_SteamEngine 5.6.0
M106 S127
;LAYER:0
G1 X1 E1
;LAYER:1
M220 S50
M106 S77
G1 X2 E2
M220 S100
M106 S127
;LAYER:2
G1 X3 E3
M84
`
	assert.Equal(t, want, out)
	assert.Contains(t, stderr, "gcode written")
	assert.Contains(t, stderr, "run=")
}

func TestApplyToFileWithMetrics(t *testing.T) {
	unsetEnv(t, "LAYERSPEED_PROFILE")
	dir := t.TempDir()
	in := writeTemp(t, dir, "part.gcode", sample)
	outPath := filepath.Join(dir, "out.gcode")
	metricsPath := filepath.Join(dir, "run.prom")

	stdout, _, err := execute(t, "", "apply", "--layer", "1", "--layers", "5", "--no-fan-speed",
		"--name", "base", "-o", outPath, "--metrics-file", metricsPath, in)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	got := string(data)
	assert.Contains(t, got, ";SpeedChangeByLayer base: Starting at layer 1 for a total of 5 layers\n")
	assert.True(t, strings.HasSuffix(got, "M84\n;SpeedChangeByLayer base: Reset after layer 5\nM220 S100 ;Resetting print speed\n"))
	assert.NotContains(t, got, "Resetting fan speed")

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "layerspeed_lines_read_total{run=")
	assert.Contains(t, string(prom), `instance="base"`)

	// Only the input, the output and the metrics file remain.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestApplyInPlaceWithProfile(t *testing.T) {
	dir := t.TempDir()
	in := writeTemp(t, dir, "part.gcode", sample)
	profile := writeTemp(t, dir, "ranges.cfg", `
[speed_change_by_layer first]
layer_number: 1
print_speed: 80
change_fan_speed: no
annotate: no

[speed_change_by_layer last]
layer_number: 3
number_of_layers: 4
fan_speed: 0
annotate: no
`)

	_, _, err := execute(t, "", "apply", "--profile", profile, "--in-place", in)
	require.NoError(t, err)

	data, err := os.ReadFile(in)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	assert.Equal(t, []string{
		";FLAVOR:Marlin",
		";Generated with Cura_SteamEngine 5.6.0",
		"M106 S127",
		";LAYER:0",
		"M220 S80",
		"G1 X1 E1",
		"M220 S100",
		";LAYER:1",
		"G1 X2 E2",
		";LAYER:2",
		"M220 S100",
		"M106 S0",
		"G1 X3 E3",
		"M84",
		"M220 S100",
		"M106 S127",
	}, lines)
}

func TestApplyRejectsInvalidConfigWithoutOutput(t *testing.T) {
	unsetEnv(t, "LAYERSPEED_PROFILE")
	dir := t.TempDir()
	in := writeTemp(t, dir, "part.gcode", sample)
	outPath := filepath.Join(dir, "out.gcode")

	_, stderr, err := execute(t, "", "apply", "--layers", "0", "-o", outPath, in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "number_of_layers")
	assert.Contains(t, stderr, "Error:")
	assert.NoFileExists(t, outPath)

	_, _, err = execute(t, sample, "apply", "--fan-speed", "101")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fan_speed")
}

func TestApplyFlagConflicts(t *testing.T) {
	dir := t.TempDir()
	profile := writeTemp(t, dir, "ranges.yaml", "instances:\n  - layer_number: 2\n")

	_, _, err := execute(t, sample, "apply", "--profile", profile, "--layer", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--layer cannot be combined with --profile")

	_, _, err = execute(t, sample, "apply", "--in-place")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--in-place needs an input file")
}

func TestApplyProfileFromEnv(t *testing.T) {
	dir := t.TempDir()
	profile := writeTemp(t, dir, "ranges.yaml", "instances:\n  - layer_number: 2\n    print_speed: 40\n    change_fan_speed: false\n    annotate: false\n")
	t.Setenv("LAYERSPEED_PROFILE", profile)

	out, _, err := execute(t, sample, "apply")
	require.NoError(t, err)
	assert.Contains(t, out, ";LAYER:1\nM220 S40\n")
}

func TestApplyEnvFileAndLogFile(t *testing.T) {
	unsetEnv(t, "LAYERSPEED_PROFILE")
	unsetEnv(t, "LAYERSPEED_LOG_FORMAT")
	dir := t.TempDir()
	envFile := writeTemp(t, dir, "layerspeed.env", "LAYERSPEED_LOG_FORMAT=json\n")
	logFile := filepath.Join(dir, "logs", "layerspeed.log")

	_, stderr, err := execute(t, sample, "--env-file", envFile, "--log-file", logFile, "apply", "--layer", "2")
	require.NoError(t, err)
	assert.Empty(t, stderr)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	var written map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		if entry["message"] == "gcode written" {
			written = entry
		}
	}
	require.NotNil(t, written)
	fields := written["fields"].(map[string]interface{})
	assert.NotEmpty(t, fields["run"])
	assert.Equal(t, "stdout", fields["output"])
	assert.EqualValues(t, 1, fields["instances"])

	// Failures are recorded in the log file as well.
	_, _, err = execute(t, sample, "--env-file", envFile, "--log-file", logFile, "apply", "--layers", "0")
	require.Error(t, err)
	data, err = os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"apply failed"`)
	assert.Contains(t, string(data), "number_of_layers")

	_, _, err = execute(t, sample, "--env-file", filepath.Join(dir, "missing.env"), "apply")
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	in := writeTemp(t, dir, "part.gcode", sample)
	profile := writeTemp(t, dir, "ranges.cfg", `
[speed_change_by_layer inside]
layer_number: 2
[speed_change_by_layer last]
layer_number: 2
number_of_layers: 2
[speed_change_by_layer tail]
layer_number: 3
number_of_layers: 2
[speed_change_by_layer beyond]
layer_number: 10
`)

	out, _, err := execute(t, "", "inspect", "--format", "json", "--profile", profile, in)
	require.NoError(t, err)

	var report struct {
		Slicer       string `json:"slicer"`
		Flavor       string `json:"flavor"`
		LayerMarkers int    `json:"layer_markers"`
		FanCommands  int    `json:"fan_commands"`
		Ranges       []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"ranges"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "Cura_SteamEngine 5.6.0", report.Slicer)
	assert.Equal(t, "Marlin", report.Flavor)
	assert.Equal(t, 3, report.LayerMarkers)
	assert.Equal(t, 1, report.FanCommands)
	var statuses []string
	for _, r := range report.Ranges {
		statuses = append(statuses, r.Name+": "+r.Status)
	}
	assert.Equal(t, []string{
		"inside: ok",
		"last: reset at end of file",
		"tail: reset at end of file",
		"beyond: never reached",
	}, statuses)

	// Markers that jump over the whole range leave it unapplied.
	sparse := writeTemp(t, dir, "sparse.gcode", ";LAYER:0\nG1 X1\n;LAYER:9\nG1 X2\n")
	gap := writeTemp(t, dir, "gap.cfg", "[speed_change_by_layer gap]\nlayer_number: 3\nnumber_of_layers: 2\n")
	out, stderr, err := execute(t, "", "inspect", "--profile", gap, sparse)
	require.NoError(t, err)
	assert.Contains(t, out, "range gap:")
	assert.Contains(t, out, "layers 2..3, skipped by layer markers")
	assert.Contains(t, stderr, "range does not fully apply")

	text, _, err := execute(t, sample, "inspect")
	require.NoError(t, err)
	assert.Contains(t, text, "layer markers:")
	assert.Contains(t, text, "3 (0..2)")

	yml, _, err := execute(t, sample, "inspect", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, yml, "layer_markers: 3\n")

	_, _, err = execute(t, sample, "inspect", "--format", "xml")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "layerspeed dev ("))
}

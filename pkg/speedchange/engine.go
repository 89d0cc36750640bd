package speedchange

import (
	"fmt"
	"strconv"

	"klipper-layerspeed/pkg/gcode"
)

// State is the position of the stream relative to the override range.
type State int

const (
	// Before: no layer of the range has started yet.
	Before State = iota
	// In: overrides are active.
	In
	// After: overrides were reset, or the range was skipped. Terminal.
	After
)

func (s State) String() string {
	switch s {
	case Before:
		return "BEFORE"
	case In:
		return "IN"
	case After:
		return "AFTER"
	default:
		return "UNKNOWN"
	}
}

// Stats counts what one engine did over a pass.
type Stats struct {
	LinesIn           int
	LinesOut          int
	LayerMarkers      int
	PrintOverrides    int
	FanOverrides      int
	PrintResets       int
	FanResets         int
	StrippedFanLines  int
	EnteredAtLayer    int
	ResetBeforeLayer  int
	ResetAtEndOfInput bool
	Skipped           bool
}

// Engine is the per-instance override state machine. It is fed one line
// at a time and returns the lines to emit in its place. An Engine covers
// exactly one pass; use a new Engine for every stream.
type Engine struct {
	cfg        Config
	start, end int
	tracker    *gcode.Tracker
	state      State
	finished   bool
	stats      Stats
}

// NewEngine validates cfg and returns an engine in the Before state.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start, end := cfg.Range()
	return &Engine{
		cfg:     cfg,
		start:   start,
		end:     end,
		tracker: gcode.NewTracker(),
		state:   Before,
		stats: Stats{
			EnteredAtLayer:   gcode.NoLayer,
			ResetBeforeLayer: gcode.NoLayer,
		},
	}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// State returns the current range state.
func (e *Engine) State() State { return e.state }

// Stats returns the counters accumulated so far.
func (e *Engine) Stats() Stats { return e.stats }

// Process consumes one input line, without its line terminator, and
// returns the output lines in order.
func (e *Engine) Process(line string) []string {
	e.stats.LinesIn++
	ev := e.tracker.Observe(line)
	if ev.Kind == gcode.KindLayerMarker {
		e.stats.LayerMarkers++
	}

	var out []string
	switch e.state {
	case Before:
		out = []string{line}
		if ev.Kind != gcode.KindLayerMarker {
			break
		}
		layer := e.tracker.Layer()
		switch {
		case layer > e.end:
			// The markers jumped over the whole range.
			e.state = After
			e.stats.Skipped = true
		case layer >= e.start:
			e.state = In
			e.tracker.Freeze()
			e.stats.EnteredAtLayer = layer
			out = append(out, e.overrides()...)
		}
	case In:
		switch {
		case ev.Kind == gcode.KindLayerMarker && e.tracker.Layer() > e.end:
			e.stats.ResetBeforeLayer = e.tracker.Layer()
			out = append(e.resets(), line)
			e.state = After
		case ev.Kind == gcode.KindFanCommand && e.cfg.StripFanCommands && e.cfg.ChangeFanSpeed:
			e.stats.StrippedFanLines++
		default:
			out = []string{line}
		}
	default:
		out = []string{line}
	}
	e.stats.LinesOut += len(out)
	return out
}

// Finish signals end of input. If the range is still open the reset
// commands are returned so the printer never stays overridden. Calling
// Finish more than once returns nothing.
func (e *Engine) Finish() []string {
	if e.finished {
		return nil
	}
	e.finished = true
	if e.state != In {
		return nil
	}
	e.stats.ResetAtEndOfInput = true
	out := e.resets()
	e.state = After
	e.stats.LinesOut += len(out)
	return out
}

func (e *Engine) overrides() []string {
	var out []string
	if e.cfg.Annotate {
		unit := "layers"
		if e.cfg.LayerCount == 1 {
			unit = "layer"
		}
		out = append(out, fmt.Sprintf("%s %s: Starting at layer %d for a total of %d %s",
			gcode.AnnotationPrefix, e.cfg.label(), e.start+1, e.cfg.LayerCount, unit))
	}
	if e.cfg.ChangePrintSpeed {
		cmd := "M220 S" + strconv.Itoa(e.cfg.PrintSpeedPercent)
		if e.cfg.Annotate {
			cmd += fmt.Sprintf(" ;Print speed %d%% of original speed", e.cfg.PrintSpeedPercent)
		}
		out = append(out, cmd)
		e.stats.PrintOverrides++
	}
	if e.cfg.ChangeFanSpeed {
		cmd := "M106 S" + strconv.Itoa(FanDuty(e.cfg.FanSpeedPercent))
		if e.cfg.Annotate {
			cmd += fmt.Sprintf(" ;Fan speed %d%% of 100%% [%% of 255]", e.cfg.FanSpeedPercent)
		}
		out = append(out, cmd)
		e.stats.FanOverrides++
	}
	return out
}

func (e *Engine) resets() []string {
	var out []string
	if e.cfg.Annotate {
		out = append(out, fmt.Sprintf("%s %s: Reset after layer %d",
			gcode.AnnotationPrefix, e.cfg.label(), e.end+1))
	}
	if e.cfg.ChangePrintSpeed {
		cmd := "M220 S100"
		if e.cfg.Annotate {
			cmd += " ;Resetting print speed"
		}
		out = append(out, cmd)
		e.stats.PrintResets++
	}
	if e.cfg.ChangeFanSpeed {
		restore := "0"
		if v, ok := e.tracker.LastFan(); ok {
			restore = v.String()
		}
		cmd := "M106 S" + restore
		if e.cfg.Annotate {
			cmd += " ;Resetting fan speed"
		}
		out = append(out, cmd)
		e.stats.FanResets++
	}
	return out
}

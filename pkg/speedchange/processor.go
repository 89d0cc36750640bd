package speedchange

import (
	"bufio"
	"io"
	"strings"
	"time"

	"klipper-layerspeed/pkg/errors"
	"klipper-layerspeed/pkg/gcode"
	"klipper-layerspeed/pkg/log"
	"klipper-layerspeed/pkg/metrics"
)

// Processor applies an ordered chain of instances to a GCode stream in a
// single forward pass. Each instance reads the previous instance's output
// line by line, exactly as if the instances ran one after another over
// whole files.
type Processor struct {
	configs []Config
	logger  *log.Logger
	metrics *metrics.RunMetrics
	labels  metrics.Labels
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger used for range transitions and summaries.
func WithLogger(l *log.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithMetrics records run counters into m. Extra labels are added to
// every series.
func WithMetrics(m *metrics.RunMetrics, labels metrics.Labels) Option {
	return func(p *Processor) {
		p.metrics = m
		p.labels = labels
	}
}

// NewProcessor validates every configuration up front; an invalid one
// rejects the whole chain before anything is written.
func NewProcessor(configs []Config, opts ...Option) (*Processor, error) {
	if len(configs) == 0 {
		return nil, errors.New(errors.ErrConfigSection, "no speed change instances configured")
	}
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	p := &Processor{
		configs: append([]Config(nil), configs...),
		logger:  log.GetLogger("speedchange"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Summary reports what a Run did.
type Summary struct {
	LinesRead    int
	LinesWritten int
	Instances    []InstanceSummary
	Duration     time.Duration
}

// InstanceSummary is the final state and counters of one instance.
type InstanceSummary struct {
	Name  string
	State State
	Stats Stats
}

// Run reads r to the end and writes the transformed stream to w. Every
// call uses fresh engines, so a Processor may be reused across streams.
func (p *Processor) Run(r io.Reader, w io.Writer) (*Summary, error) {
	started := time.Now()
	stages := make([]*Engine, len(p.configs))
	for i, cfg := range p.configs {
		e, err := NewEngine(cfg)
		if err != nil {
			return nil, err
		}
		stages[i] = e
	}

	reader := bufio.NewReaderSize(r, 64*1024)
	out := newLineWriter(w)
	sum := &Summary{}

	for {
		raw, readErr := reader.ReadString('\n')
		if raw != "" {
			sum.LinesRead++
			text, eol := splitEOL(raw)
			lines := p.feed(stages, 0, []string{text})
			if err := out.write(lines, eol); err != nil {
				return nil, errors.StreamWriteError(sum.LinesRead, err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, errors.StreamReadError(sum.LinesRead, readErr)
		}
	}

	// Flush in chain order so stage i's end-of-stream resets still pass
	// through every later stage.
	for i, e := range stages {
		tail := p.feed(stages, i+1, e.Finish())
		if err := out.write(tail, out.eol); err != nil {
			return nil, errors.StreamWriteError(sum.LinesRead, err)
		}
	}
	if err := out.flush(); err != nil {
		return nil, errors.StreamWriteError(sum.LinesRead, err)
	}

	sum.LinesWritten = out.lines
	sum.Duration = time.Since(started)
	for _, e := range stages {
		sum.Instances = append(sum.Instances, InstanceSummary{
			Name:  e.cfg.label(),
			State: e.State(),
			Stats: e.Stats(),
		})
	}
	p.report(sum)
	return sum, nil
}

// feed pushes lines through stages[from:] and returns the final output.
func (p *Processor) feed(stages []*Engine, from int, lines []string) []string {
	for _, e := range stages[from:] {
		if len(lines) == 0 {
			return nil
		}
		before := e.State()
		var next []string
		for _, line := range lines {
			next = append(next, e.Process(line)...)
		}
		if after := e.State(); after != before {
			p.logTransition(e, before, after)
		}
		lines = next
	}
	return lines
}

func (p *Processor) logTransition(e *Engine, from, to State) {
	st := e.Stats()
	entry := p.logger.WithField("instance", e.cfg.label()).
		WithField("from", from.String()).
		WithField("to", to.String())
	switch {
	case to == In:
		entry.WithField("layer", st.EnteredAtLayer).Debug("override range entered")
	case st.Skipped:
		entry.Debug("layer markers skipped past the override range")
	default:
		entry.WithField("layer", st.ResetBeforeLayer).Debug("override range left")
	}
}

func (p *Processor) report(sum *Summary) {
	for _, inst := range sum.Instances {
		entry := p.logger.WithField("instance", inst.Name).
			WithField("state", inst.State.String()).
			WithField("markers", inst.Stats.LayerMarkers)
		switch {
		case inst.Stats.EnteredAtLayer == gcode.NoLayer:
			entry.Warn("override range never reached; stream passed through unchanged")
		case inst.Stats.ResetAtEndOfInput:
			entry.Info("override range still open at end of stream; reset appended")
		default:
			entry.Info("override range applied")
		}
	}
	p.logger.WithField("lines_read", sum.LinesRead).
		WithField("lines_written", sum.LinesWritten).
		Debug("run complete")

	if p.metrics == nil {
		return
	}
	m := p.metrics
	m.LinesRead.Add(p.labels, float64(sum.LinesRead))
	m.LinesWritten.Add(p.labels, float64(sum.LinesWritten))
	m.ObserveDuration(p.labels, sum.Duration)
	for _, inst := range sum.Instances {
		l := p.instanceLabels(inst.Name, "")
		m.LayerMarkers.Add(l, float64(inst.Stats.LayerMarkers))
		m.StrippedFan.Add(l, float64(inst.Stats.StrippedFanLines))
		m.RangeState.Set(l, float64(inst.State))
		if inst.Stats.EnteredAtLayer != gcode.NoLayer {
			m.RangeStartLayer.Set(l, float64(inst.Stats.EnteredAtLayer))
		}
		m.Overrides.Add(p.instanceLabels(inst.Name, "print_speed"), float64(inst.Stats.PrintOverrides))
		m.Overrides.Add(p.instanceLabels(inst.Name, "fan_speed"), float64(inst.Stats.FanOverrides))
		m.Resets.Add(p.instanceLabels(inst.Name, "print_speed"), float64(inst.Stats.PrintResets))
		m.Resets.Add(p.instanceLabels(inst.Name, "fan_speed"), float64(inst.Stats.FanResets))
	}
}

func (p *Processor) instanceLabels(name, kind string) metrics.Labels {
	l := metrics.Labels{"instance": name}
	for k, v := range p.labels {
		l[k] = v
	}
	if kind != "" {
		l["kind"] = kind
	}
	return l
}

// splitEOL separates a line from its "\n" or "\r\n" terminator.
func splitEOL(raw string) (string, string) {
	if strings.HasSuffix(raw, "\r\n") {
		return raw[:len(raw)-2], "\r\n"
	}
	if strings.HasSuffix(raw, "\n") {
		return raw[:len(raw)-1], "\n"
	}
	return raw, ""
}

// lineWriter writes output lines with the terminator of the input line
// they came from. Injected lines reuse that terminator; the stream's
// first terminator is the default for lines with none.
type lineWriter struct {
	w       *bufio.Writer
	eol     string
	eolSeen bool
	pending bool
	lines   int
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{w: bufio.NewWriterSize(w, 64*1024), eol: "\n"}
}

func (lw *lineWriter) write(lines []string, eol string) error {
	if eol != "" && !lw.eolSeen {
		lw.eol = eol
		lw.eolSeen = true
	}
	for i, line := range lines {
		if lw.pending {
			// The previous line was the unterminated last input line.
			if _, err := lw.w.WriteString(lw.eol); err != nil {
				return err
			}
			lw.pending = false
		}
		term := eol
		if term == "" && i < len(lines)-1 {
			term = lw.eol
		}
		if _, err := lw.w.WriteString(line + term); err != nil {
			return err
		}
		lw.pending = term == ""
		lw.lines++
	}
	return nil
}

func (lw *lineWriter) flush() error {
	return lw.w.Flush()
}

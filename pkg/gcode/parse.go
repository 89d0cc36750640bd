// Package gcode classifies slicer GCode lines: commands, layer markers
// and part cooling fan commands.
package gcode

import (
	"regexp"
	"strconv"
	"strings"

	"klipper-layerspeed/pkg/pool"
)

// Command is a tokenized GCode command line.
type Command struct {
	Name    string
	Args    map[string]string
	Comment string
	Raw     string
}

var (
	reParenComment = regexp.MustCompile(`\([^)]*\)`)
)

// ParseLine tokenizes a single line. It returns nil for blank lines and
// lines that hold only a comment.
func ParseLine(line string) *Command {
	args := map[string]string{}
	name, comment, ok := tokenize(line, args)
	if !ok {
		return nil
	}
	return &Command{Name: name, Args: args, Comment: comment, Raw: line}
}

// tokenize fills args with the words of line and returns the command
// name and trailing comment.
func tokenize(line string, args map[string]string) (name, comment string, ok bool) {
	ln := strings.TrimSpace(line)
	if idx := strings.IndexByte(ln, ';'); idx >= 0 {
		comment = strings.TrimSpace(ln[idx+1:])
		ln = strings.TrimSpace(ln[:idx])
	}
	if ln == "" {
		return "", "", false
	}
	if strings.IndexByte(ln, '(') >= 0 {
		ln = strings.TrimSpace(reParenComment.ReplaceAllString(ln, " "))
	}

	fields := strings.Fields(ln)
	if len(fields) == 0 {
		return "", "", false
	}
	for _, f := range fields[1:] {
		if strings.Contains(f, "=") {
			kv := strings.SplitN(f, "=", 2)
			k := strings.ToUpper(strings.TrimSpace(kv[0]))
			if k != "" {
				args[k] = strings.TrimSpace(kv[1])
			}
			continue
		}
		if len(f) < 2 {
			// Bare flags such as "M106 S" carry an empty value.
			args[strings.ToUpper(f)] = ""
			continue
		}
		args[strings.ToUpper(f[:1])] = strings.TrimSpace(f[1:])
	}
	return strings.ToUpper(fields[0]), comment, true
}

// Float returns the numeric value of a word argument.
func (c *Command) Float(key string) (float64, bool) {
	raw, ok := c.Args[strings.ToUpper(key)]
	if !ok || raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Has reports whether the argument is present, even without a value.
func (c *Command) Has(key string) bool {
	_, ok := c.Args[strings.ToUpper(key)]
	return ok
}

// LayerMarkerPrefix starts every layer boundary comment.
const LayerMarkerPrefix = ";LAYER:"

// ParseLayerMarker extracts the zero-based layer index from a
// ";LAYER:<n>" comment. Trailing text after the digits is ignored.
func ParseLayerMarker(line string) (int, bool) {
	ln := strings.TrimSpace(line)
	if !strings.HasPrefix(ln, LayerMarkerPrefix) {
		return 0, false
	}
	rest := ln[len(LayerMarkerPrefix):]
	end := 0
	if end < len(rest) && (rest[end] == '+' || rest[end] == '-') {
		end++
	}
	digits := end
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// MaxFanDuty is full power on the M106 S scale.
const MaxFanDuty = 255

// FanValue is a part cooling fan duty as written in the stream. Raw keeps
// the original S text so it can be written back without reformatting.
type FanValue struct {
	Duty float64
	Raw  string
}

// String renders the value as an M106 S argument.
func (v FanValue) String() string {
	if v.Raw != "" {
		return v.Raw
	}
	return strconv.FormatFloat(v.Duty, 'f', -1, 64)
}

// ParseFanCommand recognizes M106/M107 for the part cooling fan. Commands
// addressing another fan index (P1, P2, ...) are not matched.
func ParseFanCommand(line string) (FanValue, bool) {
	ln := strings.TrimLeft(line, " \t")
	if len(ln) < 4 || (ln[0] != 'M' && ln[0] != 'm') {
		return FanValue{}, false
	}

	args := pool.GetArgsMap()
	defer pool.PutArgsMap(args)
	name, _, ok := tokenize(ln, args)
	if !ok || (name != "M106" && name != "M107") {
		return FanValue{}, false
	}
	cmd := Command{Name: name, Args: args}
	if cmd.Has("P") {
		p, ok := cmd.Float("P")
		if !ok || p != 0 {
			return FanValue{}, false
		}
	}
	if name == "M107" {
		return FanValue{Duty: 0, Raw: "0"}, true
	}
	if !cmd.Has("S") {
		return FanValue{Duty: MaxFanDuty, Raw: strconv.Itoa(MaxFanDuty)}, true
	}
	duty, ok := cmd.Float("S")
	if !ok || duty < 0 || duty > MaxFanDuty {
		return FanValue{}, false
	}
	return FanValue{Duty: duty, Raw: args["S"]}, true
}

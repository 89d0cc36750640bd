// layerspeed rewrites sliced GCode so that print speed (M220) and part fan
// speed (M106) are overridden for a range of layers and restored after it.
//
// Usage:
//
//	layerspeed apply [flags] [input.gcode]
//	layerspeed inspect [flags] [input.gcode]
//
// Examples:
//
//	# Half speed and 30% fan for layers 12-14
//	layerspeed apply --layer 12 --layers 3 --print-speed 50 --fan-speed 30 -o out.gcode in.gcode
//
//	# Apply every range of a profile in place
//	layerspeed apply --profile ranges.cfg --in-place part.gcode
//
//	# Stream through a pipe with JSON logs
//	LAYERSPEED_LOG_FORMAT=json layerspeed apply --layer 5 < in.gcode > out.gcode
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"klipper-layerspeed/pkg/config"
	"klipper-layerspeed/pkg/gcode"
	"klipper-layerspeed/pkg/speedchange"
)

// rangeReport tells whether a configured range can take effect on the
// inspected file.
type rangeReport struct {
	Name       string `json:"name" yaml:"name"`
	FirstLayer int    `json:"first_layer" yaml:"first_layer"`
	LastLayer  int    `json:"last_layer" yaml:"last_layer"`
	Status     string `json:"status" yaml:"status"`
}

type inspectReport struct {
	gcode.Metadata `yaml:",inline"`
	Ranges         []rangeReport `json:"ranges,omitempty" yaml:"ranges,omitempty"`
}

func newInspectCmd(a *app) *cobra.Command {
	var format, profile string
	cmd := &cobra.Command{
		Use:   "inspect [input.gcode]",
		Short: "Report slicer metadata, layer markers and existing overrides of a GCode file",
		Long: `inspect scans a GCode file, or stdin, and reports the slicer header values,
the extent of ;LAYER: markers, fan and M220 command counts and comments left
by earlier layerspeed runs. With --profile it also tells whether each
configured range falls inside the file's layers.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			input := "-"
			if len(args) == 1 {
				input = args[0]
			}
			in, err := openInput(cmd, input)
			if err != nil {
				return err
			}
			defer in.Close()

			meta, err := gcode.ScanMetadata(in)
			if err != nil {
				return err
			}
			report := inspectReport{Metadata: *meta}
			if profile != "" {
				configs, err := config.LoadProfile(profile)
				if err != nil {
					return err
				}
				report.Ranges = checkRanges(meta, configs)
			}
			for _, r := range report.Ranges {
				if r.Status != "ok" {
					a.logger.WithField("instance", r.Name).WithField("status", r.Status).Warn("range does not fully apply")
				}
			}
			return writeReport(cmd.OutOrStdout(), format, report)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or yaml")
	cmd.Flags().StringVar(&profile, "profile", "", "check the ranges of this profile against the file")
	return cmd
}

func checkRanges(meta *gcode.Metadata, configs []speedchange.Config) []rangeReport {
	reports := make([]rangeReport, 0, len(configs))
	for _, cfg := range configs {
		start, end := cfg.Range()
		r := rangeReport{Name: cfg.Name, FirstLayer: start, LastLayer: end, Status: "ok"}
		if meta.LastLayer == nil {
			r.Status = "no layer markers"
			reports = append(reports, r)
			continue
		}
		first, ok := meta.FirstLayerFrom(start)
		switch {
		case !ok:
			r.Status = "never reached"
		case first > end:
			r.Status = "skipped by layer markers"
		case end >= *meta.LastLayer:
			// No marker after the range: the reset lands at end of file.
			r.Status = "reset at end of file"
		}
		reports = append(reports, r)
	}
	return reports
}

func writeReport(w io.Writer, format string, report inspectReport) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		return writeText(w, report)
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

func writeText(w io.Writer, report inspectReport) error {
	meta := &report.Metadata
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "slicer:\t%s\n", orUnknown(meta.Slicer))
	fmt.Fprintf(tw, "flavor:\t%s\n", orUnknown(meta.Flavor))
	if meta.LayerCount != nil {
		fmt.Fprintf(tw, "declared layers:\t%d\n", *meta.LayerCount)
	}
	fmt.Fprintf(tw, "lines:\t%d\n", meta.Lines)
	if meta.FirstLayer != nil {
		fmt.Fprintf(tw, "layer markers:\t%d (%d..%d)\n", meta.LayerMarkers, *meta.FirstLayer, *meta.LastLayer)
	} else {
		fmt.Fprintf(tw, "layer markers:\t0\n")
	}
	fmt.Fprintf(tw, "fan commands:\t%d\n", meta.FanCommands)
	fmt.Fprintf(tw, "speed commands:\t%d\n", meta.SpeedCommands)
	fmt.Fprintf(tw, "annotations:\t%d\n", len(meta.Annotations))
	for _, a := range meta.Annotations {
		fmt.Fprintf(tw, "\t%s\n", a)
	}
	for _, r := range report.Ranges {
		fmt.Fprintf(tw, "range %s:\tlayers %d..%d, %s\n", r.Name, r.FirstLayer, r.LastLayer, r.Status)
	}
	return tw.Flush()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

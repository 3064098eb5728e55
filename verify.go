package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// RunOutputKind distinguishes image outputs from JSON sidecars
type RunOutputKind int

const (
	OutputImage RunOutputKind = iota
	OutputJSON
)

// expectedOutput describes one file a complete run produces
type expectedOutput struct {
	Suffix   string
	Kind     RunOutputKind
	Optional bool
}

// Every output a full run (detail + full-page + rings) writes. The
// thumbnail is optional because its failure never fails a run.
var runOutputs = []expectedOutput{
	{Suffix: "_map_full.png", Kind: OutputImage},
	{Suffix: "_map_thumb.png", Kind: OutputImage, Optional: true},
	{Suffix: "_map_fullpage.png", Kind: OutputImage},
	{Suffix: "_map_metadata.json", Kind: OutputJSON},
	{Suffix: "_map_legend.json", Kind: OutputJSON},
	{Suffix: "_ring_map.png", Kind: OutputImage},
	{Suffix: "_ring_metadata.json", Kind: OutputJSON},
}

// RunOutputReport is the result of verifying a run's output files
type RunOutputReport struct {
	Dir     string
	RunID   string
	OK      bool
	Checked int
	Missing []string
	Invalid []string // present but empty, truncated, or unparseable
}

// Print logs the report details
func (r *RunOutputReport) Print() {
	logger := slog.With("dir", r.Dir, "run_id", r.RunID, "checked", r.Checked)

	if r.OK {
		logger.Info("run output check PASSED")
		return
	}

	logger.Error("run output check FAILED",
		"missing", len(r.Missing),
		"invalid", len(r.Invalid))
	for _, name := range r.Missing {
		slog.Error("missing output file", "file", name)
	}
	for _, name := range r.Invalid {
		slog.Error("invalid output file", "file", name)
	}
}

// VerifyRunOutputs checks that a run's expected output files exist,
// images carry a PNG header, and JSON sidecars parse.
func VerifyRunOutputs(dir, runID string) (*RunOutputReport, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to access output directory: %w", err)
	}

	report := &RunOutputReport{
		Dir:   dir,
		RunID: runID,
	}

	for _, expected := range runOutputs {
		name := runID + expected.Suffix
		path := filepath.Join(dir, name)

		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) && expected.Optional {
				continue
			}
			report.Missing = append(report.Missing, name)
			continue
		}
		report.Checked++

		switch expected.Kind {
		case OutputImage:
			if !bytes.HasPrefix(data, pngMagic) {
				report.Invalid = append(report.Invalid, name)
			}
		case OutputJSON:
			var payload any
			if err := json.Unmarshal(data, &payload); err != nil {
				report.Invalid = append(report.Invalid, name)
			}
		}
	}

	report.OK = len(report.Missing) == 0 && len(report.Invalid) == 0
	return report, nil
}

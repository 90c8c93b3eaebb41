package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/ahrav/go-acj/internal/domain"
)

// ErrNoExports is returned by CombineDir when dir holds no session exports.
var ErrNoExports = errors.New("no session exports found")

// CombinedHeader is the column layout written by Combine: one row per trial
// with the session fields repeated on every row.
var CombinedHeader = []string{
	"participant_id",
	"session_id",
	"trial_num",
	"round_type",
	"left_stimulus",
	"right_stimulus",
	"comparison_order",
	"response",
	"reaction_time",
	"start_time",
	"end_time",
	"duration",
}

// CombineReport counts what Combine wrote.
type CombineReport struct {
	Sessions int
	Trials   int
}

// ReadExportFile decodes a session export written by DataManager.Close.
func ReadExportFile(path string) (SessionExport, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return SessionExport{}, fmt.Errorf("failed to read session export: %w", err)
	}
	var export SessionExport
	if err := json.Unmarshal(data, &export); err != nil {
		return SessionExport{}, fmt.Errorf("%w: %s: %w", ErrMalformedTrials, filepath.Base(path), err)
	}
	return export, nil
}

// CombineDir reads every *.json export in dir in file name order and writes
// their trials to w.
func CombineDir(dir string, w io.Writer) (CombineReport, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return CombineReport{}, fmt.Errorf("failed to list session exports: %w", err)
	}
	if len(paths) == 0 {
		return CombineReport{}, fmt.Errorf("%w in %s", ErrNoExports, dir)
	}
	slices.Sort(paths)

	exports := make([]SessionExport, 0, len(paths))
	for _, p := range paths {
		export, err := ReadExportFile(p)
		if err != nil {
			return CombineReport{}, err
		}
		exports = append(exports, export)
	}
	return Combine(w, exports)
}

// Combine writes CombinedHeader and one row per trial of every export to w.
// Reaction times use the trial file convention: seconds with millisecond
// precision, or NA for missed trials.
func Combine(w io.Writer, exports []SessionExport) (CombineReport, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(CombinedHeader); err != nil {
		return CombineReport{}, fmt.Errorf("failed to write header: %w", err)
	}

	var report CombineReport
	for _, export := range exports {
		start := formatTime(export.StartTime)
		end := formatTime(export.EndTime)
		duration := strconv.FormatFloat(export.Duration, 'f', 3, 64)

		for _, rec := range export.Trials {
			participant := export.ParticipantID
			if participant == "" {
				participant = rec.ParticipantID
			}
			response := rec.Response
			if response == "" || rec.Missed() {
				response = domain.ResponseMissed
			}
			row := []string{
				participant,
				export.SessionID,
				strconv.Itoa(rec.TrialNum),
				string(rec.RoundType),
				string(rec.Left),
				string(rec.Right),
				strconv.Itoa(rec.Order),
				string(response),
				formatRT(rec, response),
				start,
				end,
				duration,
			}
			if err := cw.Write(row); err != nil {
				return report, fmt.Errorf("failed to write combined row: %w", err)
			}
			report.Trials++
		}
		report.Sessions++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return report, fmt.Errorf("failed to flush combined rows: %w", err)
	}
	return report, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

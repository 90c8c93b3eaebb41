// Package storage persists trial data for judgement sessions: one CSV row per
// trial while the session runs and a JSON export of the whole session when it
// ends.
package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ahrav/go-acj/internal/domain"
	"github.com/ahrav/go-acj/internal/ports"
)

// Output formats accepted by WithFormats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// MissingRT is written in the rt column of a trial without a response.
const MissingRT = "NA"

// AnonymousParticipant names files for sessions without a participant ID.
const AnonymousParticipant = "anonymous"

// CSVHeader is the column layout of trial files.
var CSVHeader = []string{"trial", "round_type", "left_image", "right_image", "response", "rt"}

// ErrClosed is returned by a DataManager after Close.
var ErrClosed = errors.New("data manager closed")

var _ ports.TrialRecorder = (*DataManager)(nil)

// DataManager implements ports.TrialRecorder on the local file system.
//
// Trials are appended to <dir>/<participant>_<start>.csv as they arrive so a
// crash loses at most the row being written. Close adds
// <dir>/<participant>_<start>.json holding the session summary and every
// trial. An existing file name is never overwritten; a numeric suffix is
// appended instead.
type DataManager struct {
	mu       sync.Mutex
	csvPath  string
	jsonPath string
	file     *os.File
	writer   *csv.Writer
	trials   []domain.TrialRecord
	closed   bool
	logger   *slog.Logger
	writeCSV bool
	saveJSON bool
}

// Option configures a DataManager.
type Option func(*DataManager)

// WithFormats enables only the listed formats. Unknown names are ignored.
func WithFormats(formats ...string) Option {
	return func(dm *DataManager) {
		dm.writeCSV, dm.saveJSON = false, false
		for _, f := range formats {
			switch f {
			case FormatCSV:
				dm.writeCSV = true
			case FormatJSON:
				dm.saveJSON = true
			}
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(dm *DataManager) { dm.logger = l } }

// NewDataManager creates dir if needed and opens the trial file for
// participantID. start is formatted into the file name.
func NewDataManager(dir, participantID string, start time.Time, opts ...Option) (*DataManager, error) {
	dm := &DataManager{writeCSV: true, saveJSON: true}
	for _, opt := range opts {
		opt(dm)
	}
	if dm.logger == nil {
		dm.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if participantID == "" {
		participantID = AnonymousParticipant
	}
	base := filepath.Join(dir, fmt.Sprintf("%s_%s", participantID, start.Format("20060102_150405")))
	base = uniqueBase(base)
	dm.csvPath = base + ".csv"
	dm.jsonPath = base + ".json"

	if dm.writeCSV {
		f, err := os.OpenFile(dm.csvPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("failed to create trial file: %w", err)
		}
		dm.file = f
		dm.writer = csv.NewWriter(f)
		if err := dm.writeRow(CSVHeader); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	dm.logger.Info("trial data file opened", "csv", dm.csvPath, "json", dm.jsonPath)
	return dm, nil
}

// uniqueBase returns base, or base_1, base_2 and so on, whichever is the
// first for which neither the CSV nor the JSON file exists.
func uniqueBase(base string) string {
	candidate := base
	for i := 1; exists(candidate+".csv") || exists(candidate+".json"); i++ {
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
	return candidate
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CSVPath returns the trial file path.
func (dm *DataManager) CSVPath() string { return dm.csvPath }

// JSONPath returns the session export path written by Close.
func (dm *DataManager) JSONPath() string { return dm.jsonPath }

// SaveTrial implements ports.TrialRecorder. The row is flushed before
// SaveTrial returns.
func (dm *DataManager) SaveTrial(_ context.Context, rec domain.TrialRecord) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.closed {
		return ErrClosed
	}
	dm.trials = append(dm.trials, rec)
	if !dm.writeCSV {
		return nil
	}
	return dm.writeRow(TrialRow(rec))
}

// Close implements ports.TrialRecorder. It closes the trial file and writes
// the JSON export. Calling Close twice returns ErrClosed.
func (dm *DataManager) Close(_ context.Context, summary ports.SessionSummary) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.closed {
		return ErrClosed
	}
	dm.closed = true

	var errs []error
	if dm.file != nil {
		if err := dm.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close trial file: %w", err))
		}
	}
	if dm.saveJSON {
		if err := dm.writeExport(summary); err != nil {
			errs = append(errs, err)
		}
	}
	dm.logger.Info("trial data saved", "trials", len(dm.trials), "csv", dm.csvPath)
	return errors.Join(errs...)
}

// SessionExport is the JSON document written on Close.
type SessionExport struct {
	ports.SessionSummary
	Trials []domain.TrialRecord `json:"trials"`
}

func (dm *DataManager) writeExport(summary ports.SessionSummary) error {
	trials := dm.trials
	if trials == nil {
		trials = []domain.TrialRecord{}
	}
	data, err := json.MarshalIndent(SessionExport{SessionSummary: summary, Trials: trials}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session export: %w", err)
	}
	if err := os.WriteFile(dm.jsonPath, data, 0o640); err != nil {
		return fmt.Errorf("failed to write session export: %w", err)
	}
	return nil
}

func (dm *DataManager) writeRow(row []string) error {
	if err := dm.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write trial row: %w", err)
	}
	dm.writer.Flush()
	if err := dm.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush trial row: %w", err)
	}
	return nil
}

// TrialRow renders rec in CSVHeader column order. Reaction times are written
// in seconds with millisecond precision.
func TrialRow(rec domain.TrialRecord) []string {
	response := rec.Response
	if response == "" || rec.Missed() {
		response = domain.ResponseMissed
	}
	return []string{
		strconv.Itoa(rec.TrialNum),
		string(rec.RoundType),
		string(rec.Left),
		string(rec.Right),
		string(response),
		formatRT(rec, response),
	}
}

func formatRT(rec domain.TrialRecord, response domain.Response) string {
	if response == domain.ResponseMissed || rec.ReactionTime <= 0 {
		return MissingRT
	}
	return strconv.FormatFloat(rec.ReactionTime.Seconds(), 'f', 3, 64)
}

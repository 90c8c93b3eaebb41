package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ahrav/go-acj/internal/domain"
)

// ErrMalformedTrials is returned when a trial file cannot be parsed.
var ErrMalformedTrials = errors.New("malformed trial file")

// ReadTrialsFile reads a trial file written by DataManager.
func ReadTrialsFile(path string) ([]domain.TrialRecord, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open trial file: %w", err)
	}
	defer f.Close()
	return ReadTrials(f)
}

// ReadTrials parses trial rows from r. Columns are located by header name so
// files with extra or reordered columns are accepted; trial, left_image,
// right_image and response are required. The winner of each record is
// derived from the response column.
func ReadTrials(r io.Reader) ([]domain.TrialRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrMalformedTrials)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTrials, err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{"trial", "left_image", "right_image", "response"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedTrials, required)
		}
	}
	field := func(row []string, name string) string {
		if i, ok := cols[name]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var records []domain.TrialRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedTrials, err)
		}

		rec, err := parseRow(field, row)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedTrials, line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(field func([]string, string) string, row []string) (domain.TrialRecord, error) {
	trial, err := strconv.Atoi(field(row, "trial"))
	if err != nil {
		return domain.TrialRecord{}, fmt.Errorf("invalid trial number: %w", err)
	}
	rec := domain.TrialRecord{
		TrialNum:  trial,
		RoundType: domain.RoundType(field(row, "round_type")),
		Left:      domain.ItemID(field(row, "left_image")),
		Right:     domain.ItemID(field(row, "right_image")),
		Response:  domain.Response(strings.ToLower(field(row, "response"))),
	}
	rec.PairKey = domain.MakePairKey(rec.Left, rec.Right).String()

	switch rec.Response {
	case domain.ResponseLeft:
		rec.Winner = rec.Left
	case domain.ResponseRight:
		rec.Winner = rec.Right
	case domain.ResponseMissed, "":
		rec.Response = domain.ResponseMissed
		return rec, nil
	default:
		return domain.TrialRecord{}, fmt.Errorf("unknown response %q", rec.Response)
	}

	if rt := field(row, "rt"); rt != "" && rt != MissingRT {
		secs, err := strconv.ParseFloat(rt, 64)
		if err != nil {
			return domain.TrialRecord{}, fmt.Errorf("invalid rt: %w", err)
		}
		rec.ReactionTime = time.Duration(math.Round(secs * float64(time.Second)))
	}
	return rec, nil
}

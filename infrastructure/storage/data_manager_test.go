package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-acj/internal/domain"
	"github.com/ahrav/go-acj/internal/ports"
)

var testStart = time.Date(2024, 3, 9, 14, 5, 30, 0, time.UTC)

func answered(trial int, left, right domain.ItemID, resp domain.Response, rt time.Duration) domain.TrialRecord {
	rec := domain.TrialRecord{
		TrialNum:     trial,
		RoundType:    domain.RoundSimilarity,
		Left:         left,
		Right:        right,
		Response:     resp,
		ReactionTime: rt,
		PairKey:      domain.MakePairKey(left, right).String(),
		Order:        domain.PresentationOrder(domain.NewPair(left, right)),
	}
	switch resp {
	case domain.ResponseLeft:
		rec.Winner = left
	case domain.ResponseRight:
		rec.Winner = right
	}
	return rec
}

func TestDataManager_WritesCSVAndJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	dm, err := NewDataManager(dir, "p01", testStart)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "p01_20240309_140530.csv"), dm.CSVPath())
	assert.Equal(t, filepath.Join(dir, "p01_20240309_140530.json"), dm.JSONPath())

	ctx := context.Background()
	trials := []domain.TrialRecord{
		answered(1, "a.png", "b.png", domain.ResponseLeft, 850*time.Millisecond),
		answered(2, "c.png", "a.png", domain.ResponseMissed, 0),
		answered(3, "b.png", "c.png", domain.ResponseRight, 1234*time.Millisecond),
	}
	for _, tr := range trials {
		require.NoError(t, dm.SaveTrial(ctx, tr))
	}

	// Rows are flushed as they are saved.
	data, err := os.ReadFile(dm.CSVPath())
	require.NoError(t, err)
	want := strings.Join([]string{
		"trial,round_type,left_image,right_image,response,rt",
		"1,similarity,a.png,b.png,left,0.850",
		"2,similarity,c.png,a.png,missed,NA",
		"3,similarity,b.png,c.png,right,1.234",
		"",
	}, "\n")
	assert.Equal(t, want, string(data))

	summary := ports.SessionSummary{
		SessionID:     "s-1",
		ParticipantID: "p01",
		StartTime:     testStart,
		EndTime:       testStart.Add(time.Minute),
		Trials:        3,
		Missed:        1,
		Ranking:       []domain.ItemScore{{Item: "c.png", Quality: 0.4}},
	}
	require.NoError(t, dm.Close(ctx, summary))

	raw, err := os.ReadFile(dm.JSONPath())
	require.NoError(t, err)
	var export struct {
		SessionID     string               `json:"session_id"`
		ParticipantID string               `json:"participant_id"`
		Missed        int                  `json:"missed"`
		Trials        []domain.TrialRecord `json:"trials"`
		Ranking       []domain.ItemScore   `json:"ranking"`
	}
	require.NoError(t, json.Unmarshal(raw, &export))
	assert.Equal(t, "s-1", export.SessionID)
	assert.Equal(t, 1, export.Missed)
	assert.Equal(t, trials, export.Trials)
	assert.Equal(t, summary.Ranking, export.Ranking)

	assert.ErrorIs(t, dm.SaveTrial(ctx, trials[0]), ErrClosed)
	assert.ErrorIs(t, dm.Close(ctx, summary), ErrClosed)
}

func TestDataManager_UniqueFileNames(t *testing.T) {
	dir := t.TempDir()

	var paths []string
	for range 3 {
		dm, err := NewDataManager(dir, "p02", testStart)
		require.NoError(t, err)
		paths = append(paths, dm.CSVPath())
		require.NoError(t, dm.Close(context.Background(), ports.SessionSummary{}))
	}
	assert.Equal(t, []string{
		filepath.Join(dir, "p02_20240309_140530.csv"),
		filepath.Join(dir, "p02_20240309_140530_1.csv"),
		filepath.Join(dir, "p02_20240309_140530_2.csv"),
	}, paths)
}

func TestDataManager_Formats(t *testing.T) {
	ctx := context.Background()

	t.Run("json only", func(t *testing.T) {
		dm, err := NewDataManager(t.TempDir(), "", testStart, WithFormats(FormatJSON))
		require.NoError(t, err)
		assert.Contains(t, filepath.Base(dm.CSVPath()), AnonymousParticipant)
		require.NoError(t, dm.SaveTrial(ctx, answered(1, "a", "b", domain.ResponseLeft, time.Second)))
		require.NoError(t, dm.Close(ctx, ports.SessionSummary{}))

		assert.NoFileExists(t, dm.CSVPath())
		assert.FileExists(t, dm.JSONPath())
	})

	t.Run("csv only", func(t *testing.T) {
		dm, err := NewDataManager(t.TempDir(), "p03", testStart, WithFormats(FormatCSV))
		require.NoError(t, err)
		require.NoError(t, dm.Close(ctx, ports.SessionSummary{}))

		assert.FileExists(t, dm.CSVPath())
		assert.NoFileExists(t, dm.JSONPath())
	})
}

func TestTrialRow(t *testing.T) {
	tests := []struct {
		name string
		rec  domain.TrialRecord
		want []string
	}{
		{
			name: "answered",
			rec:  answered(7, "x", "y", domain.ResponseRight, 2500*time.Millisecond),
			want: []string{"7", "similarity", "x", "y", "right", "2.500"},
		},
		{
			name: "missing response is missed",
			rec:  domain.TrialRecord{TrialNum: 2, Left: "x", Right: "y"},
			want: []string{"2", "", "x", "y", "missed", "NA"},
		},
		{
			name: "missing reaction time",
			rec:  answered(3, "x", "y", domain.ResponseLeft, 0),
			want: []string{"3", "similarity", "x", "y", "left", "NA"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrialRow(tt.rec))
		})
	}
}

func TestReadTrials(t *testing.T) {
	dir := t.TempDir()
	dm, err := NewDataManager(dir, "p04", testStart)
	require.NoError(t, err)

	ctx := context.Background()
	written := []domain.TrialRecord{
		answered(1, "a", "b", domain.ResponseLeft, 850*time.Millisecond),
		answered(2, "b", "c", domain.ResponseMissed, 0),
		answered(3, "c", "a", domain.ResponseRight, 1234*time.Millisecond),
	}
	for _, tr := range written {
		require.NoError(t, dm.SaveTrial(ctx, tr))
	}
	require.NoError(t, dm.Close(ctx, ports.SessionSummary{}))

	got, err := ReadTrialsFile(dm.CSVPath())
	require.NoError(t, err)
	assert.Equal(t, written, got)
}

func TestReadTrials_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: "empty file"},
		{name: "missing column", input: "trial,left_image,right_image\n1,a,b\n", want: `missing column "response"`},
		{name: "bad trial number", input: "trial,left_image,right_image,response\nx,a,b,left\n", want: "line 2: invalid trial number"},
		{name: "unknown response", input: "trial,left_image,right_image,response\n1,a,b,up\n", want: `unknown response "up"`},
		{name: "bad rt", input: "trial,left_image,right_image,response,rt\n1,a,b,left,fast\n", want: "invalid rt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTrials(strings.NewReader(tt.input))
			require.ErrorIs(t, err, ErrMalformedTrials)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestReadTrials_ReorderedColumns(t *testing.T) {
	input := "Response,Right_Image,Left_Image,Trial,extra\nleft,b,a,1,zz\nRIGHT,c,b,2,zz\n"
	got, err := ReadTrials(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.ItemID("a"), got[0].Winner)
	assert.Equal(t, domain.ItemID("c"), got[1].Winner)
	assert.Equal(t, "b|c", got[1].PairKey)
	assert.Zero(t, got[0].ReactionTime)
}

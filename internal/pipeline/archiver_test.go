package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlobArchiver struct {
	tradeCutoff  time.Time
	signalCutoff time.Time
	tradeErr     error
	signalErr    error
}

func (f *fakeBlobArchiver) ArchiveTrades(_ context.Context, before time.Time) (int64, error) {
	f.tradeCutoff = before
	if f.tradeErr != nil {
		return 0, f.tradeErr
	}
	return 10, nil
}

func (f *fakeBlobArchiver) ArchiveSignals(_ context.Context, before time.Time) (int64, error) {
	f.signalCutoff = before
	if f.signalErr != nil {
		return 0, f.signalErr
	}
	return 4, nil
}

func TestArchiverRunUsesRetentionCutoff(t *testing.T) {
	blob := &fakeBlobArchiver{}
	archiver := NewArchiver(blob, 90, testLogger())

	start := time.Now().UTC()
	require.NoError(t, archiver.Run(context.Background()))

	want := start.Add(-90 * 24 * time.Hour)
	assert.WithinDuration(t, want, blob.tradeCutoff, time.Minute)
	assert.Equal(t, blob.tradeCutoff, blob.signalCutoff)
}

func TestArchiverRunStopsOnTradeFailure(t *testing.T) {
	archErr := errors.New("s3 put failed")
	blob := &fakeBlobArchiver{tradeErr: archErr}
	archiver := NewArchiver(blob, 90, testLogger())

	err := archiver.Run(context.Background())
	require.ErrorIs(t, err, archErr)
	assert.True(t, blob.signalCutoff.IsZero(), "signals must not archive after trade failure")
}

func TestParseCron(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{name: "daily at 3am", expr: "0 3 * * *"},
		{name: "monthly", expr: "0 3 1 * *"},
		{name: "value list", expr: "0,30 * * * *"},
		{name: "all wildcards", expr: "* * * * *"},
		{name: "too few fields", expr: "0 3 * *", wantErr: true},
		{name: "too many fields", expr: "0 3 * * * *", wantErr: true},
		{name: "non-numeric field", expr: "x 3 * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCron(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2026, 5, 1, 10, 15, 30, 0, time.UTC)

	tests := []struct {
		name string
		expr string
		want time.Time
	}{
		{
			name: "daily at 3am rolls to tomorrow",
			expr: "0 3 * * *",
			want: time.Date(2026, 5, 2, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "next half hour",
			expr: "30 * * * *",
			want: time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC),
		},
		{
			name: "every minute starts at next boundary",
			expr: "* * * * *",
			want: time.Date(2026, 5, 1, 10, 16, 0, 0, time.UTC),
		},
		{
			name: "first of month",
			expr: "0 0 1 * *",
			want: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nextCronTime(tt.expr, after)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextCronTimeRejectsInvalidExpression(t *testing.T) {
	_, err := nextCronTime("not a cron", time.Now())
	require.Error(t, err)
}

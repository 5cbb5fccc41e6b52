package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BrentShift/internal/domain/models"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// writeShiftCSV writes 81 days of prices whose daily returns drop from about
// +1% to about -1% after the 40th return.
func writeShiftCSV(t *testing.T) string {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 11))
	var b strings.Builder
	b.WriteString("Date,Price\n")
	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 60.0
	for i := 0; i <= 80; i++ {
		fmt.Fprintf(&b, "%s,%.6f\n", day.Format("02-Jan-06"), price)
		r := 1.0
		if i >= 40 {
			r = -1.0
		}
		r += 0.3 * rng.NormFloat64()
		price *= 1 + r/100
		day = day.AddDate(0, 0, 1)
	}
	path := filepath.Join(t.TempDir(), "brent.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestAnalyzeLocalCSV(t *testing.T) {
	path := writeShiftCSV(t)
	out, _, err := execute(t, "analyze", "--csv", path, "--chains", "2", "--warmup", "400", "--samples", "400", "--seed", "42")
	require.NoError(t, err)

	var rec models.ChangePointRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.NotNil(t, rec.Result)
	assert.Equal(t, 80, rec.N)
	assert.Equal(t, models.ColumnDailyReturn, rec.Column)
	assert.InDelta(t, 39, rec.Result.TauIndex, 3)
	assert.Less(t, rec.Result.MeanShift, -1.5)
}

func TestAnalyzeVerboseReportsProgress(t *testing.T) {
	path := writeShiftCSV(t)
	_, stderr, err := execute(t, "analyze", "--csv", path, "-v", "--chains", "1", "--diagnostics=false", "--warmup", "100", "--samples", "100", "--every", "50")
	require.NoError(t, err)
	assert.Contains(t, stderr, "chain 0")
}

func TestAnalyzeSingleChain(t *testing.T) {
	path := writeShiftCSV(t)
	out, _, err := execute(t, "analyze", "--csv", path, "--chains", "1", "--diagnostics=false", "--warmup", "200", "--samples", "200")
	require.NoError(t, err)
	var rec models.ChangePointRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.NotNil(t, rec.Result)
	assert.False(t, rec.Result.Converged)
	assert.InDelta(t, 39, rec.Result.TauIndex, 3)

	_, _, err = execute(t, "analyze", "--csv", path, "--chains", "1", "--warmup", "50", "--samples", "50")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_INSUFFICIENT_CHAINS")
}

func TestAnalyzeErrors(t *testing.T) {
	_, _, err := execute(t, "analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--csv is required")

	_, _, err = execute(t, "analyze", "--csv", "x.csv", "--column", "volume")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown column")

	path := writeShiftCSV(t)
	_, _, err = execute(t, "analyze", "--csv", path, "--start", "2020-03-21", "--samples", "50", "--warmup", "50")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_INSUFFICIENT_DATA")
}

func TestEventsTable(t *testing.T) {
	out, _, err := execute(t, "events")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Greater(t, len(lines), 1)
	assert.True(t, strings.HasPrefix(lines[0], "DATE"))
	assert.Contains(t, out, "OPEC")

	out, _, err = execute(t, "events", "--json")
	require.NoError(t, err)
	var evs []models.Event
	require.NoError(t, json.Unmarshal([]byte(out), &evs))
	assert.Len(t, evs, len(lines)-1)
}

func TestWatchNeedsServer(t *testing.T) {
	_, _, err := execute(t, "watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--server")
}

func TestSamplerFlags(t *testing.T) {
	analyze, _, err := newRootCmd().Find([]string{"analyze"})
	require.NoError(t, err)

	target := analyze.Flags().Lookup("target-acceptance")
	require.NotNil(t, target)
	assert.Contains(t, target.Usage, "sigma")
	assert.NotContains(t, target.Usage, "tau")

	diag := analyze.Flags().Lookup("diagnostics")
	require.NotNil(t, diag)
	assert.Equal(t, "true", diag.DefValue)
}

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wear.report/internal/db"
	"github.com/banshee-data/wear.report/internal/fsutil"
	"github.com/banshee-data/wear.report/internal/monitoring"
	"github.com/banshee-data/wear.report/internal/testutil"
	"github.com/banshee-data/wear.report/internal/timeutil"
)

var start = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) (*env, *fsutil.MemoryFileSystem, *bytes.Buffer) {
	t.Helper()
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })
	mem := fsutil.NewMemoryFileSystem()
	var out bytes.Buffer
	return &env{stdout: &out, fsys: mem, clock: timeutil.NewMockClock(start)}, mem, &out
}

func TestWearCommand(t *testing.T) {
	e, mem, out := newTestEnv(t)
	ts := testutil.Recording(t, 0.5, start,
		testutil.Segment{Duration: 12 * time.Hour, Worn: true},
		testutil.Segment{Duration: 12 * time.Hour},
		testutil.Segment{Duration: 12 * time.Hour, Worn: true},
	)
	mem.Add("rec.csv", testutil.CSV(t, ts))

	require.NoError(t, e.run([]string{"wear", "-rate", "0.5", "rec.csv"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, "window,start,end,wear", lines[0])
	assert.Len(t, lines, 1+141)
	assert.Equal(t, "0,2026-01-05T08:00:00Z,2026-01-05T08:59:58Z,1", lines[1])

	out.Reset()
	require.NoError(t, e.run([]string{"wear", "-rate", "0.5", "-summary", "rec.csv"}))
	lines = strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "141,24,11.25,2,2026-01-05T08:00:00Z,"), lines[1])
}

func TestWearCommandEDF(t *testing.T) {
	e, mem, out := newTestEnv(t)
	ts := testutil.Recording(t, 0.5, time.Time{},
		testutil.Segment{Duration: 12 * time.Hour, Worn: true},
		testutil.Segment{Duration: 12 * time.Hour},
		testutil.Segment{Duration: 12 * time.Hour, Worn: true},
	)
	mem.Add("night.edf", testutil.EDF(t, ts))

	require.NoError(t, e.run([]string{"wear", "-rate", "0.5", "-summary", "night.edf"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "141,24,11.25,2,,", lines[1], "untimed without -start")

	out.Reset()
	require.NoError(t, e.run([]string{"wear", "-rate", "0.5", "-summary", "-start", "2026-01-05T08:00:00Z", "night.edf"}))
	lines = strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "141,24,11.25,2,2026-01-05T08:00:00Z,"), lines[1])

	assert.Error(t, e.run([]string{"wear", "-rate", "0.5", "-start", "whenever", "night.edf"}))
}

func TestWearCommandRecordsRun(t *testing.T) {
	e, mem, _ := newTestEnv(t)
	ts := testutil.Recording(t, 0.5, start,
		testutil.Segment{Duration: 6 * time.Hour, Worn: true},
	)
	mem.Add("rec.csv", testutil.CSV(t, ts))
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	require.NoError(t, e.run([]string{"wear", "-rate", "0.5", "-db", dbPath, "rec.csv"}))

	store, err := db.NewDB(dbPath)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.Runs("rec.csv")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, db.KindWear, runs[0].Kind)
	assert.Equal(t, ts.Len(), runs[0].Samples)
}

func TestCountsCommand(t *testing.T) {
	e, mem, out := newTestEnv(t)
	ts := testutil.Recording(t, 30, start, testutil.Segment{Duration: 3 * time.Minute, Worn: true})
	mem.Add("rec.csv", testutil.CSV(t, ts))

	outPath := filepath.Join(t.TempDir(), "counts.csv")
	require.NoError(t, e.run([]string{"counts", "-rate", "30", "-o", outPath, "rec.csv"}))
	assert.Empty(t, out.String(), "report goes to the output file")

	got, ok := mem.Contents(outPath)
	require.True(t, ok)
	lines := strings.Split(strings.TrimSpace(string(got)), "\n")
	assert.Equal(t, "minute,start,count", lines[0])
	require.Len(t, lines, 1+3)
	assert.True(t, strings.HasPrefix(lines[2], "1,2026-01-05T08:01:00Z,"), lines[2])
}

func TestWindowsCommand(t *testing.T) {
	e, mem, out := newTestEnv(t)
	ts := testutil.Recording(t, 1, start, testutil.Segment{Duration: 10 * time.Minute, Worn: true})
	mem.Add("rec.csv", testutil.CSV(t, ts))

	require.NoError(t, e.run([]string{"windows", "-rate", "1", "-window-sec", "60", "rec.csv"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, "window,start,end,var_norm", lines[0])
	assert.Len(t, lines, 1+10)

	out.Reset()
	require.NoError(t, e.run([]string{"windows", "-rate", "1", "-window", "PT2M", "rec.csv"}))
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 1+5)

	assert.Error(t, e.run([]string{"windows", "-rate", "1", "-window", "PT2M", "-window-sec", "60", "rec.csv"}))
	assert.Error(t, e.run([]string{"windows", "-rate", "1", "-window", "P1Y2", "rec.csv"}))
}

func TestQuestionnaireCommand(t *testing.T) {
	e, _, out := newTestEnv(t)

	require.NoError(t, e.run([]string{"questionnaire", "sum", "q1=2", "q2=3.5"}))
	assert.Equal(t, "total=5.5\n", out.String())

	out.Reset()
	require.NoError(t, e.run([]string{"questionnaire", "-list"}))
	assert.Equal(t, "mean\nsum\n", out.String())

	assert.Error(t, e.run([]string{"questionnaire", "nope", "q=1"}))
	assert.Error(t, e.run([]string{"questionnaire", "sum", "q1"}))
}

func TestRunErrors(t *testing.T) {
	e, _, out := newTestEnv(t)

	assert.Error(t, e.run(nil))
	assert.Error(t, e.run([]string{"frobnicate"}))
	assert.Error(t, e.run([]string{"wear"}), "missing input")
	assert.Error(t, e.run([]string{"wear", "missing.csv"}))
	assert.Error(t, e.run([]string{"counts", "-unit", "furlongs", "x.csv"}))

	out.Reset()
	require.NoError(t, e.run([]string{"version"}))
	assert.True(t, strings.HasPrefix(out.String(), "wear-report "))
}

func TestMigrateCommand(t *testing.T) {
	e, _, out := newTestEnv(t)
	dbPath := filepath.Join(t.TempDir(), "m.db")

	require.NoError(t, e.run([]string{"migrate", "-db", dbPath, "up"}))
	assert.Contains(t, out.String(), "Current version: 3")

	out.Reset()
	require.NoError(t, e.run([]string{"migrate", "-db", dbPath, "status"}))
	assert.Contains(t, out.String(), "Pending: 0")

	assert.Error(t, e.run([]string{"migrate", "-db", dbPath}))
}

package csvlog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eucdash/wheelcore/internal/wheel"
)

func sampleState() *wheel.WheelState {
	s := wheel.NewWheelState()
	s.Speed = 2550
	s.Voltage = 8412
	s.Current = 310
	s.PhaseCurrent = 520
	s.Power = 2604
	s.BatteryLevel = 77
	s.WheelDistance = 1200
	s.TotalDistance = 543210
	s.Temperature = 3150
	s.Temperature2 = 2980
	s.Angle = 1.5
	s.Roll = -0.25
	s.ModeStr = "ride"
	s.Alert = ""
	s.Timestamp = 1700000000000
	return s
}

func readRows(t *testing.T, dir string) [][]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriter_RecordSampleWritesHeaderAndRow(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{Enabled: true, Dir: dir}, nil)
	defer w.Close()

	w.RecordSample(sampleState())

	rows := readRows(t, dir)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])

	row := rows[1]
	assert.Equal(t, "25.50", row[2])  // speed
	assert.Equal(t, "84.12", row[3])  // voltage
	assert.Equal(t, "77", row[9])     // battery_level
	assert.Equal(t, "1200", row[10])  // distance
	assert.Equal(t, "543210", row[11]) // totaldistance
	assert.Equal(t, "31", row[12])    // system_temp
	assert.Equal(t, "29", row[13])    // temp2
	assert.Equal(t, "ride", row[16])  // mode
}

func TestWriter_DisabledSkipsWrites(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{Enabled: false, Dir: dir}, nil)
	defer w.Close()

	w.RecordSample(sampleState())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriter_RotatesAfterMaxRows(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{Enabled: true, Dir: dir}, nil)
	defer w.Close()

	w.rows = maxRowsPerFile
	w.writer = nil
	w.RecordSample(sampleState())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriter_SetEnabledFalseClosesFile(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{Enabled: true, Dir: dir}, nil)

	w.RecordSample(sampleState())
	assert.NotNil(t, w.writer)

	w.SetEnabled(false)
	assert.Nil(t, w.writer)
}

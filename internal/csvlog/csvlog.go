// Package csvlog records WheelState samples to rotating CSV files in the
// interchange format WheelLog's own ride logs use. Grounded on the
// teacher's internal/logger/logger.go rotation and row-building style;
// Writer implements the connection.LogSink interface so it plugs
// directly into Manager.AttachLogSink.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eucdash/wheelcore/internal/wheel"
)

const maxRowsPerFile = 100_000

// Config configures a Writer.
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Dir     string `yaml:"dir" json:"dir"`
	InMiles bool   `yaml:"in_miles" json:"inMiles"`
}

var csvHeader = []string{
	"date", "time",
	"speed", "voltage", "phase_current", "current", "power", "torque", "pwm",
	"battery_level", "distance", "totaldistance", "system_temp", "temp2",
	"tilt", "roll", "mode", "alert",
}

// Writer records one CSV row per RecordSample call, rotating to a new
// file every maxRowsPerFile rows. Safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	dir     string
	inMiles bool
	enabled bool
	log     *logrus.Entry

	file   *os.File
	writer *csv.Writer
	rows   int
}

// New returns a Writer. log may be nil.
func New(cfg Config, log *logrus.Entry) *Writer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "/var/log/wheelcore"
	}
	return &Writer{
		dir:     dir,
		inMiles: cfg.InMiles,
		enabled: cfg.Enabled,
		log:     log,
	}
}

// SetEnabled toggles logging at runtime, closing the open file when
// disabled.
func (w *Writer) SetEnabled(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enabled = on
	if !on {
		w.closeFile()
	}
}

// RecordSample writes one row for state, rotating the file if needed.
// Implements connection.LogSink.
func (w *Writer) RecordSample(state *wheel.WheelState) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.enabled || state == nil {
		return
	}

	now := time.UnixMilli(state.Timestamp)
	if state.Timestamp == 0 {
		now = time.Now()
	}

	if w.writer == nil || w.rows >= maxRowsPerFile {
		if err := w.rotateFile(now); err != nil {
			w.log.WithError(err).Warn("csvlog: rotate failed")
			return
		}
	}

	row := w.buildRow(now, state)
	if err := w.writer.Write(row); err != nil {
		w.log.WithError(err).Warn("csvlog: write failed")
		return
	}
	w.writer.Flush()
	w.rows++
}

// Close flushes and closes the current file.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeFile()
}

func (w *Writer) rotateFile(now time.Time) error {
	w.closeFile()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("csvlog: mkdir %s: %w", w.dir, err)
	}

	filename := fmt.Sprintf("wheellog_%s.csv", now.Format("2006-01-02_150405"))
	path := filepath.Join(w.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csvlog: create %s: %w", path, err)
	}

	w.file = f
	w.writer = csv.NewWriter(f)
	w.rows = 0

	if err := w.writer.Write(csvHeader); err != nil {
		return err
	}
	w.writer.Flush()

	w.log.WithField("path", path).Info("csvlog: opened file")
	return nil
}

func (w *Writer) closeFile() {
	if w.writer != nil {
		w.writer.Flush()
		w.writer = nil
	}
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
}

// buildRow renders state as one CSV row: numeric columns fixed at 2
// decimal places (pwm is a 0-100 percentage, not 0-1),
// battery_level/distance/totaldistance/system_temp/temp2 as integers.
func (w *Writer) buildRow(ts time.Time, s *wheel.WheelState) []string {
	distance := float64(s.WheelDistance)
	total := float64(s.TotalDistance)
	if w.inMiles {
		distance *= wheel.KmToMiles / 1000
		total *= wheel.KmToMiles / 1000
	}

	return []string{
		ts.Format("2006-01-02"),
		ts.Format("15:04:05.000"),
		fmt.Sprintf("%.2f", float64(s.Speed)/100),
		fmt.Sprintf("%.2f", float64(s.Voltage)/100),
		fmt.Sprintf("%.2f", float64(s.PhaseCurrent)/100),
		fmt.Sprintf("%.2f", float64(s.Current)/100),
		fmt.Sprintf("%.2f", float64(s.Power)/100),
		fmt.Sprintf("%.2f", s.Torque),
		fmt.Sprintf("%.2f", s.CalculatedPwm*100),
		fmt.Sprintf("%d", s.BatteryLevel),
		fmt.Sprintf("%d", int64(distance)),
		fmt.Sprintf("%d", int64(total)),
		fmt.Sprintf("%d", s.Temperature/100),
		fmt.Sprintf("%d", s.Temperature2/100),
		fmt.Sprintf("%.2f", s.Angle),
		fmt.Sprintf("%.2f", s.Roll),
		s.ModeStr,
		s.Alert,
	}
}

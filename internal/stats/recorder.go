package stats

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

// GlobalDeviceID is the pseudo device under which stats aggregate across
// all real devices.
const GlobalDeviceID = "__global__"

const (
	MetricVideosWatched   = "videos_watched"
	MetricWatchTime       = "watch_time_seconds"
	MetricSegmentsSkipped = "segments_skipped"
	MetricTimeSaved       = "time_saved_seconds"
	MetricLastSeen        = "last_seen"
)

// Recorder persists playback statistics. Every write updates both the
// device row and the __global__ row in one transaction, so concurrent
// writers can never skew the aggregate. Writes go through the single-writer
// pool, which serializes them.
type Recorder struct {
	writer *sql.DB
	reader *sql.DB
	logger *log.Logger
	now    func() time.Time
}

// DBPair matches db.DBPair for dependency injection.
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// NewRecorder creates a stats recorder backed by the shared database.
func NewRecorder(dbPair DBPair, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{
		writer: dbPair.Writer(),
		reader: dbPair.Reader(),
		logger: logger,
		now:    time.Now,
	}
}

// Increment adds amount to a metric, upsert-additive.
func (r *Recorder) Increment(deviceID, metric string, amount float64) error {
	return r.dualWrite(deviceID, metric, amount, `
		INSERT INTO stats(device_id, metric, value) VALUES(?, ?, ?)
		ON CONFLICT(device_id, metric) DO UPDATE SET value = value + excluded.value
	`)
}

// Set stores a metric value, upsert-replace.
func (r *Recorder) Set(deviceID, metric string, value float64) error {
	return r.dualWrite(deviceID, metric, value, `
		INSERT INTO stats(device_id, metric, value) VALUES(?, ?, ?)
		ON CONFLICT(device_id, metric) DO UPDATE SET value = excluded.value
	`)
}

func (r *Recorder) dualWrite(deviceID, metric string, value float64, query string) error {
	if deviceID == "" {
		deviceID = GlobalDeviceID
	}
	tx, err := r.writer.Begin()
	if err != nil {
		return fmt.Errorf("begin stats tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(query, deviceID, metric, value); err != nil {
		return fmt.Errorf("write stats %s/%s: %w", deviceID, metric, err)
	}
	if deviceID != GlobalDeviceID {
		if _, err := tx.Exec(query, GlobalDeviceID, metric, value); err != nil {
			return fmt.Errorf("write stats %s/%s: %w", GlobalDeviceID, metric, err)
		}
	}
	return tx.Commit()
}

// RecordVideoStarted counts a newly observed video.
func (r *Recorder) RecordVideoStarted(deviceID string) error {
	return r.Increment(deviceID, MetricVideosWatched, 1)
}

// RecordWatchTime accumulates seconds spent in the playing state.
func (r *Recorder) RecordWatchTime(deviceID string, seconds float64) error {
	if seconds <= 0 {
		return nil
	}
	return r.Increment(deviceID, MetricWatchTime, seconds)
}

// RecordSegmentSkip counts one fired skip: the segment count, the saved
// duration, a tick per category and the saved duration split across
// categories.
func (r *Recorder) RecordSegmentSkip(deviceID string, count int, savedSeconds float64, categories []string) error {
	if count > 0 {
		if err := r.Increment(deviceID, MetricSegmentsSkipped, float64(count)); err != nil {
			return err
		}
	}
	if savedSeconds > 0 {
		if err := r.Increment(deviceID, MetricTimeSaved, savedSeconds); err != nil {
			return err
		}
	}
	if len(categories) > 0 {
		perCategory := savedSeconds / float64(len(categories))
		for _, category := range categories {
			if err := r.Increment(deviceID, "skip_category_"+category, 1); err != nil {
				return err
			}
			if savedSeconds > 0 {
				if err := r.Increment(deviceID, "time_saved_category_"+category, perCategory); err != nil {
					return err
				}
			}
		}
	}
	return r.MarkDeviceSeen(deviceID)
}

// MarkDeviceSeen stamps the wall-clock last_seen metric.
func (r *Recorder) MarkDeviceSeen(deviceID string) error {
	return r.Set(deviceID, MetricLastSeen, float64(r.now().Unix()))
}

// Snapshot maps device id to metric name to value.
type Snapshot map[string]map[string]float64

// LoadAll reads every stats row.
func (r *Recorder) LoadAll() (Snapshot, error) {
	return r.load("SELECT device_id, metric, value FROM stats")
}

// LoadDevice reads the rows for one device plus the global aggregate.
func (r *Recorder) LoadDevice(deviceID string) (Snapshot, error) {
	return r.load("SELECT device_id, metric, value FROM stats WHERE device_id IN (?, ?)", deviceID, GlobalDeviceID)
}

func (r *Recorder) load(query string, args ...any) (Snapshot, error) {
	rows, err := r.reader.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("read stats: %w", err)
	}
	defer rows.Close()

	snapshot := make(Snapshot)
	for rows.Next() {
		var deviceID, metric string
		var value float64
		if err := rows.Scan(&deviceID, &metric, &value); err != nil {
			return nil, err
		}
		if snapshot[deviceID] == nil {
			snapshot[deviceID] = make(map[string]float64)
		}
		snapshot[deviceID][metric] = value
	}
	return snapshot, rows.Err()
}

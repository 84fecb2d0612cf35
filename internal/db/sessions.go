package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/depthcam/internal/camera"
)

var ErrSessionNotFound = errors.New("capture session not found")

// Session is one Start..Stop run of a camera.
type Session struct {
	ID           string     `json:"session_id"`
	CameraID     string     `json:"camera_id"`
	Device       string     `json:"device"`
	CallbackType string     `json:"callback_type"`
	Started      time.Time  `json:"started"`
	Stopped      *time.Time `json:"stopped,omitempty"`
}

// SessionStats is a counter snapshot recorded during a session.
type SessionStats struct {
	SessionID          string    `json:"session_id"`
	Iterations         uint64    `json:"iterations"`
	Captured           uint64    `json:"captured"`
	Delivered          uint64    `json:"delivered"`
	CaptureFailures    uint64    `json:"capture_failures"`
	ProcessFailures    uint64    `json:"process_failures"`
	DepthFailures      uint64    `json:"depth_failures"`
	PointCloudFailures uint64    `json:"point_cloud_failures"`
	PoolExhausted      uint64    `json:"pool_exhausted"`
	BuffersInUse       int       `json:"buffers_in_use"`
	Recorded           time.Time `json:"recorded"`
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*1e9)).UTC()
}

// StartSession records the start of a capture run and returns its ID.
func (db *DB) StartSession(cameraID, device string, cb camera.CallbackType) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO capture_sessions (session_id, camera_id, device, callback_type, started_unix)
		VALUES (?, ?, ?, ?, ?)`,
		id, cameraID, device, cb.String(), unixSeconds(time.Now()))
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

// EndSession stamps the stop time. Ending a session twice keeps the first
// stop time.
func (db *DB) EndSession(id string) error {
	res, err := db.Exec(`UPDATE capture_sessions SET stopped_unix = COALESCE(stopped_unix, ?) WHERE session_id = ?`,
		unixSeconds(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// RecordStats appends a snapshot of the camera counters to the session.
func (db *DB) RecordStats(id string, s camera.Stats) error {
	_, err := db.Exec(`INSERT INTO session_stats (
			session_id, iterations, captured, delivered, capture_failures, process_failures,
			depth_failures, point_cloud_failures, pool_exhausted, buffers_in_use, recorded_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, int64(s.Iterations), int64(s.Captured), int64(s.Delivered), int64(s.CaptureFailures),
		int64(s.ProcessFailures), int64(s.DepthFailures), int64(s.PointCloudFailures),
		int64(s.PoolExhausted), s.BuffersInUse(), unixSeconds(time.Now()))
	if err != nil {
		// The foreign key rejects unknown sessions.
		if _, lookupErr := db.Session(id); errors.Is(lookupErr, ErrSessionNotFound) {
			return lookupErr
		}
		return fmt.Errorf("failed to record stats: %w", err)
	}
	return nil
}

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var (
		s       Session
		started float64
		stopped sql.NullFloat64
	)
	if err := row.Scan(&s.ID, &s.CameraID, &s.Device, &s.CallbackType, &started, &stopped); err != nil {
		return Session{}, err
	}
	s.Started = fromUnixSeconds(started)
	if stopped.Valid {
		t := fromUnixSeconds(stopped.Float64)
		s.Stopped = &t
	}
	return s, nil
}

const sessionColumns = `session_id, camera_id, device, callback_type, started_unix, stopped_unix`

func (db *DB) Session(id string) (Session, error) {
	s, err := scanSession(db.QueryRow(`SELECT `+sessionColumns+` FROM capture_sessions WHERE session_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, err
}

// Sessions returns up to limit sessions, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+sessionColumns+` FROM capture_sessions
		ORDER BY started_unix DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestStats returns the most recent snapshot for the session.
func (db *DB) LatestStats(id string) (SessionStats, error) {
	var (
		s        SessionStats
		recorded float64
		counters [8]int64
	)
	err := db.QueryRow(`SELECT session_id, iterations, captured, delivered, capture_failures,
			process_failures, depth_failures, point_cloud_failures, pool_exhausted,
			buffers_in_use, recorded_unix
		FROM session_stats WHERE session_id = ? ORDER BY stat_id DESC LIMIT 1`, id).Scan(
		&s.SessionID, &counters[0], &counters[1], &counters[2], &counters[3],
		&counters[4], &counters[5], &counters[6], &counters[7], &s.BuffersInUse, &recorded)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionStats{}, fmt.Errorf("%w: no stats for %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return SessionStats{}, err
	}
	s.Iterations = uint64(counters[0])
	s.Captured = uint64(counters[1])
	s.Delivered = uint64(counters[2])
	s.CaptureFailures = uint64(counters[3])
	s.ProcessFailures = uint64(counters[4])
	s.DepthFailures = uint64(counters[5])
	s.PointCloudFailures = uint64(counters[6])
	s.PoolExhausted = uint64(counters[7])
	s.Recorded = fromUnixSeconds(recorded)
	return s, nil
}

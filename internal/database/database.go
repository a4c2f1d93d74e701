package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

// Activity log actions
const (
	ActionEnable          = "enable"
	ActionDisable         = "disable"
	ActionSmartConnectOn  = "smart_connect_on"
	ActionSmartConnectOff = "smart_connect_off"
	ActionExternalChange  = "external_change"
	ActionRefreshFailed   = "refresh_failed"
)

type LogEntry struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	Router        string    `json:"router"`
	ProfileID     int       `json:"profile_id"`
	RadioType     string    `json:"radio_type"`
	SSID          string    `json:"ssid,omitempty"`
	Action        string    `json:"action"`
	Source        string    `json:"source"` // "api", "service", "mqtt", "poll"
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
}

// SwitchState is the last polled state of one switch
type SwitchState struct {
	Enabled   bool
	Available bool
	LastSeen  time.Time
}

func Initialize(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite has a single writer
	db.SetMaxOpenConns(1)

	// Create tables
	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		correlation_id TEXT NOT NULL,
		router TEXT NOT NULL,
		profile_id INTEGER,
		radio_type TEXT,
		ssid TEXT,
		action TEXT NOT NULL,
		source TEXT,
		success BOOLEAN DEFAULT FALSE,
		message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_logs_router ON logs(router);
	CREATE INDEX IF NOT EXISTS idx_logs_action ON logs(action);

	CREATE TABLE IF NOT EXISTS switch_states (
		router TEXT NOT NULL,
		unique_id TEXT NOT NULL,
		enabled BOOLEAN DEFAULT FALSE,
		available BOOLEAN DEFAULT FALSE,
		last_seen DATETIME,
		PRIMARY KEY (router, unique_id)
	);
	`

	_, err := db.Exec(schema)
	return err
}

// LogEvent stores entry, assigning a correlation id when it has none.
func (db *DB) LogEvent(entry *LogEntry) error {
	if entry.CorrelationID == "" {
		entry.CorrelationID = uuid.NewString()
	}

	query := `
		INSERT INTO logs (correlation_id, router, profile_id, radio_type, ssid, action, source, success, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.Exec(query, entry.CorrelationID, entry.Router, entry.ProfileID, entry.RadioType,
		entry.SSID, entry.Action, entry.Source, entry.Success, entry.Message)
	return err
}

const selectLogs = `
	SELECT id, timestamp, correlation_id, router, COALESCE(profile_id, 0), COALESCE(radio_type, ''),
	       COALESCE(ssid, ''), action, COALESCE(source, ''), success, COALESCE(message, '')
	FROM logs
`

func scanLogs(rows *sql.Rows) ([]LogEntry, error) {
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var log LogEntry
		err := rows.Scan(&log.ID, &log.Timestamp, &log.CorrelationID, &log.Router, &log.ProfileID,
			&log.RadioType, &log.SSID, &log.Action, &log.Source, &log.Success, &log.Message)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	return logs, rows.Err()
}

func (db *DB) GetLogs(limit int, offset int) ([]LogEntry, error) {
	rows, err := db.Query(selectLogs+`ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}

func (db *DB) GetLogsByRouter(router string, limit int) ([]LogEntry, error) {
	rows, err := db.Query(selectLogs+`WHERE router = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, router, limit)
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}

func (db *DB) GetRecentActivity(hours int) ([]LogEntry, error) {
	rows, err := db.Query(selectLogs+`WHERE timestamp > datetime('now', '-' || ? || ' hours')
		ORDER BY timestamp DESC, id DESC`, hours)
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}

func (db *DB) UpdateSwitchState(router, uniqueID string, enabled, available bool) error {
	query := `
		INSERT INTO switch_states (router, unique_id, enabled, available, last_seen)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(router, unique_id) DO UPDATE SET
			enabled = excluded.enabled,
			available = excluded.available,
			last_seen = excluded.last_seen
	`
	_, err := db.Exec(query, router, uniqueID, enabled, available)
	return err
}

// GetSwitchState returns the stored state, or false when the switch was never seen.
func (db *DB) GetSwitchState(router, uniqueID string) (SwitchState, bool, error) {
	var state SwitchState
	query := `SELECT enabled, available, last_seen FROM switch_states WHERE router = ? AND unique_id = ?`
	err := db.QueryRow(query, router, uniqueID).Scan(&state.Enabled, &state.Available, &state.LastSeen)
	if err == sql.ErrNoRows {
		return SwitchState{}, false, nil
	}
	if err != nil {
		return SwitchState{}, false, err
	}
	return state, true, nil
}

// DeleteOldLogs deletes log entries older than the specified number of days
func (db *DB) DeleteOldLogs(daysToKeep int) (int64, error) {
	query := `DELETE FROM logs WHERE timestamp < datetime('now', '-' || ? || ' days')`
	result, err := db.Exec(query, daysToKeep)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

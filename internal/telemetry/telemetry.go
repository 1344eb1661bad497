package telemetry

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS room_cycles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at TIMESTAMP NOT NULL,
	room TEXT NOT NULL,
	temperature REAL,
	humidity REAL,
	target REAL NOT NULL,
	cover_position INTEGER NOT NULL,
	fan_speed INTEGER,
	hvac_mode TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_room_cycles_room_time ON room_cycles (room, recorded_at);
`

// Recorder appends per-room cycle snapshots to a local SQLite database for
// offline analysis. Nothing in the control path reads it back.
type Recorder struct {
	db *sql.DB
}

func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening telemetry db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing telemetry schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Telemetry database opened")
	return &Recorder{db: db}, nil
}

// RecordCycle writes one row per room with a valid temperature reading.
// Failures are logged, never propagated; telemetry must not break control.
func (r *Recorder) RecordCycle(roomStates map[string]model.RoomState, recommendations map[string]int, hvacMode string) {
	now := time.Now().UTC()

	for room, state := range roomStates {
		if state.CurrentTemperature == nil {
			continue
		}

		var fanSpeed any
		if v, ok := recommendations[room]; ok {
			fanSpeed = v
		}

		var humidity any
		if state.CurrentHumidity != nil {
			humidity = *state.CurrentHumidity
		}

		_, err := r.db.Exec(
			`INSERT INTO room_cycles (recorded_at, room, temperature, humidity, target, cover_position, fan_speed, hvac_mode)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			now, room, *state.CurrentTemperature, humidity, state.TargetTemperature,
			state.CoverPosition, fanSpeed, hvacMode,
		)
		if err != nil {
			log.Warn().Err(err).Str("room", room).Msg("Failed to record telemetry row")
		}
	}
}

// Prune deletes rows older than the retention window.
func (r *Recorder) Prune(retention time.Duration) error {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := r.db.Exec(`DELETE FROM room_cycles WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("pruning telemetry: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Info().Int64("rows", n).Msg("Pruned old telemetry rows")
	}
	return nil
}

func (r *Recorder) Close() error {
	return r.db.Close()
}

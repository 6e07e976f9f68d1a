package journal

import (
	"context"
	"database/sql"
	"time"

	"github.com/stallwatch/stallwatch/internal/alarm"
	"github.com/stallwatch/stallwatch/internal/monitor"
)

// Repository persists the engine's observational records: the periodic
// committed-memory log and completed alarm episodes.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertVMRecord(ctx context.Context, record monitor.VMRecord) error {
	initFlag := 0
	if record.Init {
		initFlag = 1
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO vm_log (ts,committed_bytes,delta_bytes,init) VALUES (?,?,?,?)`,
		record.Timestamp.UTC(), int64(record.Value), record.Delta, initFlag)
	return err
}

func (r *Repository) InsertEpisode(ctx context.Context, episode alarm.Episode) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO alarm_events (started_at,ended_at,duration_secs,playbacks,reason) VALUES (?,?,?,?,?)`,
		episode.StartedAt.UTC(), episode.EndedAt.UTC(), episode.Duration.Seconds(), episode.Playbacks, episode.Reason)
	return err
}

// RecentVMRecords returns the newest committed-memory records, newest first.
func (r *Repository) RecentVMRecords(ctx context.Context, limit int) ([]monitor.VMRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT ts,committed_bytes,delta_bytes,init FROM vm_log ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]monitor.VMRecord, 0, limit)
	for rows.Next() {
		var record monitor.VMRecord
		var value int64
		var initFlag int
		if err := rows.Scan(&record.Timestamp, &value, &record.Delta, &initFlag); err != nil {
			return nil, err
		}
		record.Value = uint64(value)
		record.Init = initFlag == 1
		out = append(out, record)
	}
	return out, rows.Err()
}

// RecentEpisodes returns the newest completed alarm episodes, newest first.
func (r *Repository) RecentEpisodes(ctx context.Context, limit int) ([]alarm.Episode, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT started_at,ended_at,duration_secs,playbacks,reason FROM alarm_events ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]alarm.Episode, 0, limit)
	for rows.Next() {
		var episode alarm.Episode
		var durationSecs float64
		if err := rows.Scan(&episode.StartedAt, &episode.EndedAt, &durationSecs, &episode.Playbacks, &episode.Reason); err != nil {
			return nil, err
		}
		episode.Duration = time.Duration(durationSecs * float64(time.Second))
		out = append(out, episode)
	}
	return out, rows.Err()
}

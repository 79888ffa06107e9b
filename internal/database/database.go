package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/rpsarena/client/internal/logger"
)

// DB represents the database connection
type DB struct {
	*sql.DB
	log *logger.Logger
}

// Config holds database configuration. URL wins over the individual fields.
type Config struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// DSN returns the lib/pq connection string.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName,
	)
}

// Event is one analytics event row.
type Event struct {
	MatchID   string
	Type      string
	Session   string
	Timestamp time.Time
	Data      map[string]interface{}
}

// Match is a finished match as seen by one client.
type Match struct {
	MatchID  string    `json:"matchId"`
	Winner   string    `json:"winner"`
	IsDraw   bool      `json:"isDraw"`
	Score1   int       `json:"score1"`
	Score2   int       `json:"score2"`
	Duration float64   `json:"duration"`
	EndedAt  time.Time `json:"endedAt"`
}

// FailedEvent is a message the analytics consumer could not process.
type FailedEvent struct {
	Topic     string
	Partition int32
	Offset    int64
	Message   string
	Error     string
}

// NewDB creates a new database connection with connection pooling
func NewDB(config Config) (*DB, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	log := logger.Default().With("database")
	log.Info("connected to database", logger.Fields{"host": config.Host, "dbname": config.DBName})

	return &DB{DB: db, log: log}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS client_events (
	id SERIAL PRIMARY KEY,
	match_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	session TEXT,
	event_time TIMESTAMP NOT NULL,
	data JSONB
);

CREATE INDEX IF NOT EXISTS idx_client_events_match ON client_events(match_id);

CREATE TABLE IF NOT EXISTS client_matches (
	match_id TEXT PRIMARY KEY,
	winner TEXT,
	is_draw BOOLEAN DEFAULT FALSE,
	score1 INT DEFAULT 0,
	score2 INT DEFAULT 0,
	duration FLOAT DEFAULT 0,
	ended_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS failed_events (
	id SERIAL PRIMARY KEY,
	topic TEXT,
	partition INT,
	"offset" BIGINT,
	message TEXT,
	error TEXT,
	timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// EnsureSchema creates the analytics tables if they are missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("error initializing schema: %w", err)
	}
	db.log.Info("database schema ensured")
	return nil
}

func (db *DB) InsertEvent(ctx context.Context, e Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("error marshaling event data: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO client_events (match_id, event_type, session, event_time, data)
		VALUES ($1, $2, $3, $4, $5)`,
		e.MatchID, e.Type, e.Session, e.Timestamp, data,
	)
	if err != nil {
		return fmt.Errorf("error inserting event: %w", err)
	}
	return nil
}

// RecordMatch stores a finished match. Replays of the same event overwrite.
func (db *DB) RecordMatch(ctx context.Context, m Match) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO client_matches (match_id, winner, is_draw, score1, score2, duration, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (match_id) DO UPDATE
		SET winner = EXCLUDED.winner, is_draw = EXCLUDED.is_draw,
			score1 = EXCLUDED.score1, score2 = EXCLUDED.score2,
			duration = EXCLUDED.duration, ended_at = EXCLUDED.ended_at`,
		m.MatchID, m.Winner, m.IsDraw, m.Score1, m.Score2, m.Duration, m.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("error recording match: %w", err)
	}
	return nil
}

func (db *DB) InsertFailedEvent(ctx context.Context, f FailedEvent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO failed_events (topic, partition, "offset", message, error)
		VALUES ($1, $2, $3, $4, $5)`,
		f.Topic, f.Partition, f.Offset, f.Message, f.Error,
	)
	if err != nil {
		return fmt.Errorf("error storing failed event: %w", err)
	}
	return nil
}

// RecentMatches returns the latest finished matches, newest first.
func (db *DB) RecentMatches(ctx context.Context, limit int) ([]Match, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT match_id, COALESCE(winner, ''), is_draw, score1, score2, duration, ended_at
		FROM client_matches
		ORDER BY ended_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("error getting recent matches: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.MatchID, &m.Winner, &m.IsDraw, &m.Score1, &m.Score2, &m.Duration, &m.EndedAt); err != nil {
			return nil, fmt.Errorf("error scanning match row: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

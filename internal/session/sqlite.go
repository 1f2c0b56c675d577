package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite. Timestamps are stored as unix nanoseconds.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			preferences TEXT NOT NULL,
			weather_data TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, updated_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			language TEXT NOT NULL,
			is_voice_input INTEGER NOT NULL DEFAULT 0,
			ts INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq)`,
		`CREATE TABLE IF NOT EXISTS suggestions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			theme TEXT NOT NULL,
			suggestion TEXT NOT NULL,
			confidence REAL NOT NULL,
			weather_context TEXT NOT NULL,
			ts INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_suggestions_session ON suggestions(session_id, seq)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, sess *Session) error {
	prefs, err := json.Marshal(sess.Preferences)
	if err != nil {
		return err
	}
	weatherData, err := marshalWeather(sess.WeatherData)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	created := sess.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := sess.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, preferences, weather_data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.SessionID, sess.UserID, string(prefs), weatherData, created.UnixNano(), updated.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrExists
		}
		return err
	}
	for _, m := range sess.Messages {
		if err := insertMessage(ctx, tx, sess.SessionID, m); err != nil {
			return err
		}
	}
	for _, sug := range sess.AISuggestions {
		if err := insertSuggestion(ctx, tx, sess.SessionID, sug); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	var (
		sess        Session
		prefs       string
		weatherData sql.NullString
		created     int64
		updated     int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, preferences, weather_data, created_at, updated_at
		 FROM sessions WHERE session_id = ?`, id).
		Scan(&sess.SessionID, &sess.UserID, &prefs, &weatherData, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(prefs), &sess.Preferences); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	if weatherData.Valid && weatherData.String != "" {
		var w WeatherData
		if err := json.Unmarshal([]byte(weatherData.String), &w); err != nil {
			return nil, fmt.Errorf("decode weather data: %w", err)
		}
		sess.WeatherData = &w
	}
	sess.CreatedAt = time.Unix(0, created).UTC()
	sess.UpdatedAt = time.Unix(0, updated).UTC()

	if sess.Messages, err = s.messages(ctx, id); err != nil {
		return nil, err
	}
	if sess.AISuggestions, err = s.suggestions(ctx, id); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SQLiteStore) messages(ctx context.Context, id string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, content, language, is_voice_input, ts FROM messages
		 WHERE session_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m     Message
			typ   string
			voice int
			ts    int64
		)
		if err := rows.Scan(&typ, &m.Content, &m.Language, &voice, &ts); err != nil {
			return nil, err
		}
		m.Type = MessageType(typ)
		m.IsVoiceInput = voice != 0
		m.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) suggestions(ctx context.Context, id string) ([]Suggestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT theme, suggestion, confidence, weather_context, ts FROM suggestions
		 WHERE session_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Suggestion
	for rows.Next() {
		var (
			sug  Suggestion
			wctx string
			ts   int64
		)
		if err := rows.Scan(&sug.Theme, &sug.Suggestion, &sug.Confidence, &wctx, &ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(wctx), &sug.WeatherContext); err != nil {
			return nil, fmt.Errorf("decode weather context: %w", err)
		}
		sug.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, sug)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Update(ctx context.Context, id string, patch Patch) (*Session, error) {
	sets := []string{"updated_at = ?"}
	args := []any{s.now().UTC().UnixNano()}

	if patch.Preferences != nil {
		prefs, err := json.Marshal(patch.Preferences)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "preferences = ?")
		args = append(args, string(prefs))
	}
	if patch.WeatherData != nil {
		w, err := marshalWeather(patch.WeatherData)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "weather_data = ?")
		args = append(args, w)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET `+strings.Join(sets, ", ")+` WHERE session_id = ?`, args...)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, id string, msg Message) error {
	return s.appendTx(ctx, id, func(tx *sql.Tx) error {
		return insertMessage(ctx, tx, id, msg)
	})
}

func (s *SQLiteStore) AppendSuggestion(ctx context.Context, id string, sug Suggestion) error {
	return s.appendTx(ctx, id, func(tx *sql.Tx) error {
		return insertSuggestion(ctx, tx, id, sug)
	})
}

// appendTx touches updated_at and runs insert in one transaction.
func (s *SQLiteStore) appendTx(ctx context.Context, id string, insert func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE session_id = ?`, s.now().UTC().UnixNano(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := insert(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Summary, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM sessions WHERE user_id = ?
		 ORDER BY updated_at DESC LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	result := make([]Summary, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		result = append(result, sess.Summarize())
	}
	return result, total, nil
}

func (s *SQLiteStore) DeleteIdle(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE updated_at < ?`, cutoff.UTC().UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, id string, m Message) error {
	voice := 0
	if m.IsVoiceInput {
		voice = 1
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, type, content, language, is_voice_input, ts)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(m.Type), m.Content, m.Language, voice, m.Timestamp.UTC().UnixNano())
	return err
}

func insertSuggestion(ctx context.Context, tx *sql.Tx, id string, sug Suggestion) error {
	wctx, err := json.Marshal(sug.WeatherContext)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO suggestions (session_id, theme, suggestion, confidence, weather_context, ts)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, sug.Theme, sug.Suggestion, sug.Confidence, string(wctx), sug.Timestamp.UTC().UnixNano())
	return err
}

func marshalWeather(w *WeatherData) (sql.NullString, error) {
	if w == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(w)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

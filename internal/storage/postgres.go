package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/voxhr/complaint-bot/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func (s *PostgresStorage) GetOrCreateUser(ctx context.Context, id int64, displayName string) (*models.UserProfile, error) {
	query := `
		INSERT INTO users (id, display_name, last_seen_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE users.display_name END,
		    last_seen_at = NOW()
		RETURNING id, display_name, department, created_at, last_seen_at`

	user := &models.UserProfile{}
	err := s.db.QueryRowContext(ctx, query, id, displayName).Scan(
		&user.ID,
		&user.DisplayName,
		&user.Department,
		&user.CreatedAt,
		&user.LastSeenAt,
	)
	if err != nil {
		return nil, fmt.Errorf("error upserting user: %v", err)
	}
	return user, nil
}

func (s *PostgresStorage) SetUserDepartment(ctx context.Context, id int64, department string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET department = $1 WHERE id = $2`, department, id)
	if err != nil {
		return fmt.Errorf("error updating department: %v", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) CreateSession(ctx context.Context, session *models.ComplaintSession) error {
	transcript, err := json.Marshal(session.Transcript)
	if err != nil {
		return fmt.Errorf("error marshaling transcript: %v", err)
	}

	query := `
		INSERT INTO sessions (session_id, complaint_id, user_id, status, start_time, end_time, department, transcript)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.db.ExecContext(ctx, query,
		session.SessionID,
		session.ComplaintID,
		session.UserID,
		session.Status,
		session.StartTime,
		session.EndTime,
		session.Department,
		transcript,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return models.ErrAlreadyExists
		}
		return fmt.Errorf("error creating session: %v", err)
	}
	return nil
}

const sessionColumns = `session_id, complaint_id, user_id, status, start_time, end_time, department, transcript`

func (s *PostgresStorage) scanSession(row interface{ Scan(...any) error }) (*models.ComplaintSession, error) {
	session := &models.ComplaintSession{}
	var transcript []byte
	err := row.Scan(
		&session.SessionID,
		&session.ComplaintID,
		&session.UserID,
		&session.Status,
		&session.StartTime,
		&session.EndTime,
		&session.Department,
		&transcript,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(transcript, &session.Transcript); err != nil {
		return nil, fmt.Errorf("error unmarshaling transcript: %v", err)
	}
	return session, nil
}

func (s *PostgresStorage) GetSession(ctx context.Context, sessionID string) (*models.ComplaintSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, sessionID)
	session, err := s.scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying session: %v", err)
	}
	return session, nil
}

func (s *PostgresStorage) GetOpenSessionByUser(ctx context.Context, userID int64) (*models.ComplaintSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 AND status = 'open'`, userID)
	session, err := s.scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying open session: %v", err)
	}
	return session, nil
}

func (s *PostgresStorage) AppendTranscript(ctx context.Context, sessionID string, entry models.TranscriptEntry) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error marshaling transcript entry: %v", err)
	}

	// Single atomic push; concurrent appends never reorder or coalesce.
	// The status condition keeps terminal transcripts immutable.
	query := `
		UPDATE sessions
		SET transcript = transcript || $2::jsonb
		WHERE session_id = $1 AND status = 'open'`

	result, err := s.db.ExecContext(ctx, query, sessionID, encoded)
	if err != nil {
		return fmt.Errorf("error appending transcript entry: %v", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) CloseSession(ctx context.Context, sessionID string, status models.SessionStatus, endTime time.Time) error {
	query := `
		UPDATE sessions
		SET status = $2, end_time = $3
		WHERE session_id = $1 AND status = 'open'`

	result, err := s.db.ExecContext(ctx, query, sessionID, status, endTime)
	if err != nil {
		return fmt.Errorf("error closing session: %v", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) ComplaintIDExists(ctx context.Context, complaintID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE complaint_id = $1)`, complaintID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking complaint id: %v", err)
	}
	return exists, nil
}

func (s *PostgresStorage) CountSessionsOnDay(ctx context.Context, day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE start_time >= $1 AND start_time < $2`, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting sessions: %v", err)
	}
	return count, nil
}

func (s *PostgresStorage) ListSessionsByStatus(ctx context.Context, status models.SessionStatus, limit, offset int) ([]*models.ComplaintSession, error) {
	// A non-positive limit means unlimited, same as the in-memory store;
	// NULLIF turns it into LIMIT NULL.
	if limit < 0 {
		limit = 0
	}
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE status = $1
		ORDER BY start_time DESC
		LIMIT NULLIF($2, 0) OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("error querying sessions by status: %v", err)
	}
	defer rows.Close()

	return s.collectSessions(rows)
}

func (s *PostgresStorage) ListOpenSessionsIdleSince(ctx context.Context, cutoff time.Time) ([]*models.ComplaintSession, error) {
	// Last activity is the newest transcript entry, or the start time for an
	// empty transcript.
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE status = 'open'
		  AND COALESCE((transcript -> -1 ->> 'timestamp')::timestamptz, start_time) <= $1`

	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("error querying idle sessions: %v", err)
	}
	defer rows.Close()

	return s.collectSessions(rows)
}

func (s *PostgresStorage) ListUnanalyzedSessions(ctx context.Context, limit int) ([]*models.ComplaintSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions se
		WHERE se.status = 'submitted'
		  AND NOT EXISTS (SELECT 1 FROM analyses a WHERE a.session_id = se.session_id)
		ORDER BY se.start_time
		LIMIT NULLIF($1, 0)`

	if limit < 0 {
		limit = 0
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying unanalyzed sessions: %v", err)
	}
	defer rows.Close()

	return s.collectSessions(rows)
}

func (s *PostgresStorage) collectSessions(rows *sql.Rows) ([]*models.ComplaintSession, error) {
	var sessions []*models.ComplaintSession
	for rows.Next() {
		session, err := s.scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning session: %v", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *PostgresStorage) SaveAnalysis(ctx context.Context, record *models.AnalysisRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("error marshaling analysis: %v", err)
	}

	query := `
		INSERT INTO analyses (session_id, complaint_id, user_id, department, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = s.db.ExecContext(ctx, query,
		record.SessionID,
		record.ComplaintID,
		record.UserID,
		record.Department,
		payload,
		record.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return models.ErrAlreadyExists
		}
		return fmt.Errorf("error saving analysis: %v", err)
	}
	return nil
}

func (s *PostgresStorage) GetAnalysisBySession(ctx context.Context, sessionID string) (*models.AnalysisRecord, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM analyses WHERE session_id = $1`, sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying analysis: %v", err)
	}

	record := &models.AnalysisRecord{}
	if err := json.Unmarshal(payload, record); err != nil {
		return nil, fmt.Errorf("error unmarshaling analysis: %v", err)
	}
	return record, nil
}

func (s *PostgresStorage) ListAnalyses(ctx context.Context, from, to time.Time, department string) ([]*models.AnalysisRecord, error) {
	query := `
		SELECT payload
		FROM analyses
		WHERE created_at >= $1 AND created_at < $2
		  AND ($3 = '' OR department = $3)
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, from, to, department)
	if err != nil {
		return nil, fmt.Errorf("error querying analyses: %v", err)
	}
	defer rows.Close()

	var records []*models.AnalysisRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("error scanning analysis: %v", err)
		}
		record := &models.AnalysisRecord{}
		if err := json.Unmarshal(payload, record); err != nil {
			return nil, fmt.Errorf("error unmarshaling analysis: %v", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

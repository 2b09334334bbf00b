package storage

import (
	"context"
	"time"

	"github.com/voxhr/complaint-bot/internal/models"
)

// Storage persists users, complaint sessions and analysis records.
// Implementations must make AppendTranscript a single atomic push and
// CloseSession conditional on the session still being open, so concurrent
// handlers for the same user cannot interleave a transition.
type Storage interface {
	// Users
	GetOrCreateUser(ctx context.Context, id int64, displayName string) (*models.UserProfile, error)
	SetUserDepartment(ctx context.Context, id int64, department string) error

	// Sessions
	CreateSession(ctx context.Context, session *models.ComplaintSession) error
	GetSession(ctx context.Context, sessionID string) (*models.ComplaintSession, error)
	GetOpenSessionByUser(ctx context.Context, userID int64) (*models.ComplaintSession, error)
	AppendTranscript(ctx context.Context, sessionID string, entry models.TranscriptEntry) error
	CloseSession(ctx context.Context, sessionID string, status models.SessionStatus, endTime time.Time) error
	ComplaintIDExists(ctx context.Context, complaintID string) (bool, error)
	CountSessionsOnDay(ctx context.Context, day time.Time) (int, error)
	ListSessionsByStatus(ctx context.Context, status models.SessionStatus, limit, offset int) ([]*models.ComplaintSession, error)
	ListOpenSessionsIdleSince(ctx context.Context, cutoff time.Time) ([]*models.ComplaintSession, error)
	ListUnanalyzedSessions(ctx context.Context, limit int) ([]*models.ComplaintSession, error)

	// Analyses
	SaveAnalysis(ctx context.Context, record *models.AnalysisRecord) error
	GetAnalysisBySession(ctx context.Context, sessionID string) (*models.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, from, to time.Time, department string) ([]*models.AnalysisRecord, error)

	Close() error
}

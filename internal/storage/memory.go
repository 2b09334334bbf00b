package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/voxhr/complaint-bot/internal/models"
)

// MemoryStorage keeps everything in process memory. It is used in tests and
// for local development without a database.
type MemoryStorage struct {
	mu       sync.RWMutex
	users    map[int64]*models.UserProfile
	sessions map[string]*models.ComplaintSession
	analyses map[string]*models.AnalysisRecord // keyed by session id
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[int64]*models.UserProfile),
		sessions: make(map[string]*models.ComplaintSession),
		analyses: make(map[string]*models.AnalysisRecord),
	}
}

func (s *MemoryStorage) GetOrCreateUser(ctx context.Context, id int64, displayName string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	user, exists := s.users[id]
	if !exists {
		user = &models.UserProfile{
			ID:          id,
			DisplayName: displayName,
			CreatedAt:   now,
		}
		s.users[id] = user
	}
	if displayName != "" {
		user.DisplayName = displayName
	}
	user.LastSeenAt = now

	copied := *user
	return &copied, nil
}

func (s *MemoryStorage) SetUserDepartment(ctx context.Context, id int64, department string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[id]
	if !exists {
		return models.ErrNotFound
	}
	user.Department = department
	return nil
}

func (s *MemoryStorage) CreateSession(ctx context.Context, session *models.ComplaintSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sessions {
		if existing.UserID == session.UserID && existing.Status == models.StatusOpen {
			return models.ErrAlreadyExists
		}
	}
	if _, exists := s.sessions[session.SessionID]; exists {
		return models.ErrAlreadyExists
	}

	s.sessions[session.SessionID] = copySession(session)
	return nil
}

func (s *MemoryStorage) GetSession(ctx context.Context, sessionID string) (*models.ComplaintSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, models.ErrNotFound
	}
	return copySession(session), nil
}

func (s *MemoryStorage) GetOpenSessionByUser(ctx context.Context, userID int64) (*models.ComplaintSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, session := range s.sessions {
		if session.UserID == userID && session.Status == models.StatusOpen {
			return copySession(session), nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryStorage) AppendTranscript(ctx context.Context, sessionID string, entry models.TranscriptEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return models.ErrNotFound
	}
	// Terminal transcripts are immutable; only an open session accepts
	// appends.
	if session.Status != models.StatusOpen {
		return models.ErrNotFound
	}
	session.Transcript = append(session.Transcript, entry)
	return nil
}

func (s *MemoryStorage) CloseSession(ctx context.Context, sessionID string, status models.SessionStatus, endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return models.ErrNotFound
	}
	// Conditional update: only an open session can transition.
	if session.Status != models.StatusOpen {
		return models.ErrNotFound
	}
	session.Status = status
	session.EndTime = &endTime
	return nil
}

func (s *MemoryStorage) ComplaintIDExists(ctx context.Context, complaintID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, session := range s.sessions {
		if session.ComplaintID == complaintID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStorage) CountSessionsOnDay(ctx context.Context, day time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	count := 0
	for _, session := range s.sessions {
		if !session.StartTime.Before(start) && session.StartTime.Before(end) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStorage) ListSessionsByStatus(ctx context.Context, status models.SessionStatus, limit, offset int) ([]*models.ComplaintSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.ComplaintSession
	for _, session := range s.sessions {
		if session.Status == status {
			result = append(result, copySession(session))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.After(result[j].StartTime)
	})
	return paginate(result, limit, offset), nil
}

func (s *MemoryStorage) ListOpenSessionsIdleSince(ctx context.Context, cutoff time.Time) ([]*models.ComplaintSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.ComplaintSession
	for _, session := range s.sessions {
		if session.Status != models.StatusOpen {
			continue
		}
		last := session.StartTime
		if n := len(session.Transcript); n > 0 {
			last = session.Transcript[n-1].Timestamp
		}
		if !last.After(cutoff) {
			result = append(result, copySession(session))
		}
	}
	return result, nil
}

func (s *MemoryStorage) ListUnanalyzedSessions(ctx context.Context, limit int) ([]*models.ComplaintSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.ComplaintSession
	for _, session := range s.sessions {
		if session.Status != models.StatusSubmitted {
			continue
		}
		if _, analyzed := s.analyses[session.SessionID]; analyzed {
			continue
		}
		result = append(result, copySession(session))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.Before(result[j].StartTime)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStorage) SaveAnalysis(ctx context.Context, record *models.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.analyses[record.SessionID]; exists {
		return models.ErrAlreadyExists
	}
	copied := *record
	s.analyses[record.SessionID] = &copied
	return nil
}

func (s *MemoryStorage) GetAnalysisBySession(ctx context.Context, sessionID string) (*models.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.analyses[sessionID]
	if !exists {
		return nil, models.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *MemoryStorage) ListAnalyses(ctx context.Context, from, to time.Time, department string) ([]*models.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.AnalysisRecord
	for _, record := range s.analyses {
		if record.CreatedAt.Before(from) || !record.CreatedAt.Before(to) {
			continue
		}
		if department != "" && record.Department != department {
			continue
		}
		copied := *record
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

func copySession(session *models.ComplaintSession) *models.ComplaintSession {
	copied := *session
	copied.Transcript = make([]models.TranscriptEntry, len(session.Transcript))
	copy(copied.Transcript, session.Transcript)
	return &copied
}

func paginate(sessions []*models.ComplaintSession, limit, offset int) []*models.ComplaintSession {
	if offset >= len(sessions) {
		return nil
	}
	sessions = sessions[offset:]
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions
}

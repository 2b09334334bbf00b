// Package analytics computes read-side rollups over analysis records for
// the review dashboard. Everything here is a side-effect-free query.
package analytics

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/voxhr/complaint-bot/internal/models"
	"github.com/voxhr/complaint-bot/internal/storage"
)

// DefaultMaxKeywords bounds the keyword cloud size.
const DefaultMaxKeywords = 50

type SentimentBucket struct {
	Count       int     `json:"count"`
	MeanScore   float64 `json:"mean_score"`
	MeanUrgency float64 `json:"mean_urgency"`
}

type CategoryBucket struct {
	Count        int     `json:"count"`
	MeanSeverity float64 `json:"mean_severity"`
	MeanUrgency  float64 `json:"mean_urgency"`
}

type KeywordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Overview is the aggregate view over all analyses in a time range.
type Overview struct {
	From          time.Time                                `json:"from"`
	To            time.Time                                `json:"to"`
	Department    string                                   `json:"department,omitempty"`
	TotalAnalyses int                                      `json:"total_analyses"`
	Sentiment     map[models.SentimentLabel]SentimentBucket `json:"sentiment"`
	Categories    map[string]CategoryBucket                `json:"categories"`
	TopKeywords   []KeywordCount                           `json:"top_keywords"`
}

// SentimentDistribution folds records into per-label counts and means.
func SentimentDistribution(records []*models.AnalysisRecord) map[models.SentimentLabel]SentimentBucket {
	type acc struct {
		count   int
		score   float64
		urgency int
	}
	sums := make(map[models.SentimentLabel]*acc)
	for _, r := range records {
		a, ok := sums[r.Sentiment.Label]
		if !ok {
			a = &acc{}
			sums[r.Sentiment.Label] = a
		}
		a.count++
		a.score += r.Sentiment.Score
		a.urgency += r.Classification.Urgency
	}

	result := make(map[models.SentimentLabel]SentimentBucket, len(sums))
	for label, a := range sums {
		result[label] = SentimentBucket{
			Count:       a.count,
			MeanScore:   a.score / float64(a.count),
			MeanUrgency: float64(a.urgency) / float64(a.count),
		}
	}
	return result
}

// CategoryStats folds records into per-category counts, with severity
// averaged over its 1-4 ordinal.
func CategoryStats(records []*models.AnalysisRecord) map[string]CategoryBucket {
	type acc struct {
		count    int
		severity int
		urgency  int
	}
	sums := make(map[string]*acc)
	for _, r := range records {
		a, ok := sums[r.Classification.PrimaryCategory]
		if !ok {
			a = &acc{}
			sums[r.Classification.PrimaryCategory] = a
		}
		a.count++
		a.severity += models.SeverityOrdinal(r.Classification.Severity)
		a.urgency += r.Classification.Urgency
	}

	result := make(map[string]CategoryBucket, len(sums))
	for category, a := range sums {
		result[category] = CategoryBucket{
			Count:        a.count,
			MeanSeverity: float64(a.severity) / float64(a.count),
			MeanUrgency:  float64(a.urgency) / float64(a.count),
		}
	}
	return result
}

// KeywordCloud flattens keywords across records into a frequency-ranked
// list bounded to max entries. Ties break alphabetically so the output is
// stable.
func KeywordCloud(records []*models.AnalysisRecord, max int) []KeywordCount {
	if max <= 0 {
		max = DefaultMaxKeywords
	}

	counts := make(map[string]int)
	for _, r := range records {
		for _, kw := range r.Keywords {
			word := strings.ToLower(kw.Word)
			counts[word] += kw.Frequency
		}
	}

	cloud := make([]KeywordCount, 0, len(counts))
	for word, count := range counts {
		cloud = append(cloud, KeywordCount{Word: word, Count: count})
	}
	sort.Slice(cloud, func(i, j int) bool {
		if cloud[i].Count != cloud[j].Count {
			return cloud[i].Count > cloud[j].Count
		}
		return cloud[i].Word < cloud[j].Word
	})

	if len(cloud) > max {
		cloud = cloud[:max]
	}
	return cloud
}

// Service exposes the dashboard's read queries over storage.
type Service struct {
	store storage.Storage
}

func NewService(store storage.Storage) *Service {
	return &Service{store: store}
}

// Overview fetches all analyses in [from, to) for an optional department
// and computes the full rollup.
func (s *Service) Overview(ctx context.Context, from, to time.Time, department string, maxKeywords int) (*Overview, error) {
	records, err := s.store.ListAnalyses(ctx, from, to, department)
	if err != nil {
		return nil, err
	}

	return &Overview{
		From:          from,
		To:            to,
		Department:    department,
		TotalAnalyses: len(records),
		Sentiment:     SentimentDistribution(records),
		Categories:    CategoryStats(records),
		TopKeywords:   KeywordCloud(records, maxKeywords),
	}, nil
}

func (s *Service) SessionsByStatus(ctx context.Context, status models.SessionStatus, limit, offset int) ([]*models.ComplaintSession, error) {
	return s.store.ListSessionsByStatus(ctx, status, limit, offset)
}

func (s *Service) Session(ctx context.Context, sessionID string) (*models.ComplaintSession, error) {
	return s.store.GetSession(ctx, sessionID)
}

func (s *Service) Analysis(ctx context.Context, sessionID string) (*models.AnalysisRecord, error) {
	return s.store.GetAnalysisBySession(ctx, sessionID)
}

func (s *Service) UnanalyzedSessions(ctx context.Context, limit int) ([]*models.ComplaintSession, error) {
	return s.store.ListUnanalyzedSessions(ctx, limit)
}

package ports

import (
	"context"
	"errors"
	"time"

	"ACRScanner/internal/domain"
)

var (
	// ErrQuotaExceeded signals a provider-side quota or rate-limit refusal; stages abort on it.
	ErrQuotaExceeded = errors.New("ai provider quota exceeded")
	// ErrMissingInput signals that a stage's predecessor output does not exist.
	ErrMissingInput = errors.New("missing stage input")
)

// IssueSource pulls accessibility issues from an upstream tracker.
type IssueSource interface {
	FetchIssues(ctx context.Context, project string, tags []string, limit int) ([]domain.Issue, error)
}

// RecordStore persists stage outputs and doubles as the resumability ledger.
type RecordStore interface {
	LoadLatest(ctx context.Context, stage domain.Stage) ([]domain.Issue, error)
	Append(ctx context.Context, stage domain.Stage, issues ...domain.Issue) error
	LoadJudgments(ctx context.Context) ([]domain.Judgment, error)
	AppendJudgment(ctx context.Context, judgment domain.Judgment) error
}

// TextGenerator is the AI capability boundary.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (domain.Generation, error)
}

// Paced is implemented by quota-limited generators that need a delay between calls.
type Paced interface {
	CallDelay() time.Duration
}

// ThreadFetcher loads the discussion of an issue. A nil thread means no context is available.
type ThreadFetcher interface {
	FetchThread(ctx context.Context, issueURL string) (*domain.Thread, error)
}

// ReportWriter serializes the final report.
type ReportWriter interface {
	WriteReport(ctx context.Context, judgments []domain.Judgment) ([]string, error)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

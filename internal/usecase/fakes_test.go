package usecase

import (
	"context"
	"sync"
	"time"

	"ACRScanner/internal/domain"
	"ACRScanner/internal/ports"
)

// memStore keeps stage outputs in memory; a stage never appended to is missing.
type memStore struct {
	mu        sync.Mutex
	stages    map[domain.Stage][]domain.Issue
	judgments []domain.Judgment
	appends   int
}

var _ ports.RecordStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{stages: map[domain.Stage][]domain.Issue{}}
}

func (m *memStore) seed(stage domain.Stage, issues ...domain.Issue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stage] = append(m.stages[stage], issues...)
}

func (m *memStore) LoadLatest(_ context.Context, stage domain.Stage) ([]domain.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issues, ok := m.stages[stage]
	if !ok {
		return nil, ports.ErrMissingInput
	}
	return append([]domain.Issue(nil), issues...), nil
}

func (m *memStore) Append(_ context.Context, stage domain.Stage, issues ...domain.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stage] = append(m.stages[stage], issues...)
	m.appends++
	return nil
}

func (m *memStore) LoadJudgments(context.Context) ([]domain.Judgment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Judgment(nil), m.judgments...), nil
}

// AppendJudgment upserts by criterion like both real stores.
func (m *memStore) AppendJudgment(_ context.Context, j domain.Judgment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.judgments {
		if m.judgments[i].CriterionID == j.CriterionID {
			m.judgments[i] = j
			return nil
		}
	}
	m.judgments = append(m.judgments, j)
	return nil
}

func (m *memStore) ids(stage domain.Stage) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.stages[stage]))
	for _, issue := range m.stages[stage] {
		out = append(out, issue.ID)
	}
	return out
}

// scriptedGenerator answers every prompt through respond and records the prompts.
type scriptedGenerator struct {
	respond func(call int, prompt string) (string, error)
	prompts []string
}

var _ ports.TextGenerator = (*scriptedGenerator)(nil)

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (domain.Generation, error) {
	g.prompts = append(g.prompts, prompt)
	text, err := g.respond(len(g.prompts), prompt)
	if err != nil {
		return domain.Generation{}, err
	}
	return domain.Generation{Text: text}, nil
}

func constantAnswer(text string) *scriptedGenerator {
	return &scriptedGenerator{respond: func(int, string) (string, error) { return text, nil }}
}

type pacedGenerator struct {
	*scriptedGenerator
	delay time.Duration
}

var _ ports.Paced = pacedGenerator{}

func (p pacedGenerator) CallDelay() time.Duration { return p.delay }

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

// threadStub returns canned threads by issue URL; unknown URLs yield nil.
type threadStub map[string]*domain.Thread

func (t threadStub) FetchThread(_ context.Context, url string) (*domain.Thread, error) {
	return t[url], nil
}

func rawIssue(id, criterion string) domain.Issue {
	issue := domain.Issue{
		ID:            id,
		Title:         "Issue " + id,
		Description:   "Description of issue " + id,
		SourceURL:     "https://www.drupal.org/project/drupal/issues/" + id,
		Project:       "drupal",
		Status:        "Active",
		WCAGCriterion: criterion,
	}
	issue.Normalize()
	return issue
}

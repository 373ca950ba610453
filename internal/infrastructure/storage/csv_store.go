package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"ACRScanner/internal/domain"
	"ACRScanner/internal/ports"
)

// ConsolidatedFile is the judgment table written by the consolidate step.
const ConsolidatedFile = "wcag-acr-consolidated.csv"

// IssueColumns is the header of every issue table, in order.
var IssueColumns = []string{
	"id", "title", "description", "source_url", "project", "status", "priority",
	"component", "version", "created", "taxonomy_tags", "wcag_criterion",
	"acr_note", "dev_note", "title_assessment", "ai_wcag_criterion",
	"thread_tldr", "thread_problem", "thread_sentiment", "thread_timeline", "thread_links",
}

// JudgmentColumns is the header of the consolidated judgment table.
var JudgmentColumns = []string{"criterion_id", "conformance_level", "remarks", "issue_count"}

// CSVStore keeps one CSV file per stage inside a run directory.
type CSVStore struct {
	dir string
	now func() time.Time
}

var _ ports.RecordStore = (*CSVStore)(nil)

// CSVOption customizes a CSVStore during construction.
type CSVOption func(*CSVStore)

// WithClock overrides the clock used to date new stage files.
func WithClock(clock func() time.Time) CSVOption {
	return func(s *CSVStore) {
		s.now = clock
	}
}

// NewCSVStore builds a store rooted at dir.
func NewCSVStore(dir string, opts ...CSVOption) *CSVStore {
	s := &CSVStore{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close satisfies Store; CSV files are closed after every write.
func (s *CSVStore) Close() error { return nil }

// LatestFile returns the newest file for stage; names embed the date so
// lexical order is chronological.
func (s *CSVStore) LatestFile(stage domain.Stage) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(s.dir, fmt.Sprintf("issues_%s_*.csv", stage)))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[len(matches)-1], true
}

func (s *CSVStore) newFile(stage domain.Stage) string {
	return filepath.Join(s.dir, fmt.Sprintf("issues_%s_%s.csv", stage, s.now().Format("20060102")))
}

// LoadLatest reads the newest output of stage. It wraps ports.ErrMissingInput
// when the stage has never written anything.
func (s *CSVStore) LoadLatest(_ context.Context, stage domain.Stage) ([]domain.Issue, error) {
	path, ok := s.LatestFile(stage)
	if !ok {
		return nil, fmt.Errorf("stage %s in %s: %w", stage, s.dir, ports.ErrMissingInput)
	}

	rows, header, err := readTable(path)
	if err != nil {
		return nil, err
	}

	issues := make([]domain.Issue, 0, len(rows))
	for _, row := range rows {
		issues = append(issues, rowToIssue(header, row))
	}
	return issues, nil
}

// Append writes issues to the stage's current file, creating it with a
// header when needed. Resumed runs keep extending the latest file.
func (s *CSVStore) Append(_ context.Context, stage domain.Stage, issues ...domain.Issue) error {
	path, ok := s.LatestFile(stage)
	if !ok {
		path = s.newFile(stage)
	}

	rows := make([][]string, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, issueToRow(issue))
	}
	return s.appendRows(path, IssueColumns, rows)
}

// LoadJudgments reads the consolidated table. A later row for a criterion
// replaces the earlier one in place, so re-judged groups keep their position.
func (s *CSVStore) LoadJudgments(_ context.Context) ([]domain.Judgment, error) {
	path := filepath.Join(s.dir, ConsolidatedFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("consolidated judgments in %s: %w", s.dir, ports.ErrMissingInput)
	}

	rows, header, err := readTable(path)
	if err != nil {
		return nil, err
	}

	judgments := make([]domain.Judgment, 0, len(rows))
	position := make(map[string]int, len(rows))
	for _, row := range rows {
		get := cellGetter(header, row)
		count, _ := strconv.Atoi(get("issue_count"))
		j := domain.Judgment{
			CriterionID: get("criterion_id"),
			Level:       domain.ConformanceLevel(get("conformance_level")),
			Remarks:     get("remarks"),
			IssueCount:  count,
		}
		if i, ok := position[j.CriterionID]; ok {
			judgments[i] = j
			continue
		}
		position[j.CriterionID] = len(judgments)
		judgments = append(judgments, j)
	}
	return judgments, nil
}

// AppendJudgment adds one consolidated criterion row; see LoadJudgments for
// how repeated criteria resolve.
func (s *CSVStore) AppendJudgment(_ context.Context, j domain.Judgment) error {
	row := []string{j.CriterionID, string(j.Level), j.Remarks, strconv.Itoa(j.IssueCount)}
	return s.appendRows(filepath.Join(s.dir, ConsolidatedFile), JudgmentColumns, [][]string{row})
}

func (s *CSVStore) appendRows(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}

	needHeader := true
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		needHeader = false
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(header); err != nil {
			_ = f.Close()
			return fmt.Errorf("write header %s: %w", path, err)
		}
	}
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write rows %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func readTable(path string) ([][]string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header %s: %w", path, err)
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, header, nil
}

func cellGetter(header, row []string) func(string) string {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	return func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
}

func issueToRow(i domain.Issue) []string {
	return []string{
		i.ID, i.Title, i.Description, i.SourceURL, i.Project, i.Status, i.Priority,
		i.Component, i.Version, i.Created, i.Tags.String(), i.WCAGCriterion,
		i.ACRNote, i.DevNote, i.TitleAssessment, i.AIWCAGCriterion,
		i.ThreadTLDR, i.ThreadProblem, i.ThreadSentiment, i.ThreadTimeline, i.ThreadLinks,
	}
}

func rowToIssue(header, row []string) domain.Issue {
	get := cellGetter(header, row)
	return domain.Issue{
		ID:              get("id"),
		Title:           get("title"),
		Description:     get("description"),
		SourceURL:       get("source_url"),
		Project:         get("project"),
		Status:          get("status"),
		Priority:        get("priority"),
		Component:       get("component"),
		Version:         get("version"),
		Created:         get("created"),
		Tags:            domain.ParseTagSet(get("taxonomy_tags")),
		WCAGCriterion:   get("wcag_criterion"),
		ACRNote:         get("acr_note"),
		DevNote:         get("dev_note"),
		TitleAssessment: get("title_assessment"),
		AIWCAGCriterion: get("ai_wcag_criterion"),
		ThreadTLDR:      get("thread_tldr"),
		ThreadProblem:   get("thread_problem"),
		ThreadSentiment: get("thread_sentiment"),
		ThreadTimeline:  get("thread_timeline"),
		ThreadLinks:     get("thread_links"),
	}
}

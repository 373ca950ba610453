package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ACRScanner/internal/domain"
	"ACRScanner/internal/logging"
	"ACRScanner/internal/ports"
)

const summaryAnswer = `ACR_NOTE: The close button has no accessible name.
DEVELOPER_NOTE: Add an aria-label; a patch exists.
TITLE_ASSESSMENT: OK
WCAG_ASSESSMENT: 1.3.1 Info and Relationships`

func newTestRunner(store ports.RecordStore, gen ports.TextGenerator) (*StageRunner, *sleepRecorder) {
	runner := NewStageRunner(store, gen, logging.Discard())
	rec := &sleepRecorder{}
	runner.sleep = rec.sleep
	return runner, rec
}

func TestSummarizeAppliesSections(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seed(domain.StageRaw, rawIssue("1", ""), rawIssue("2", "4.1.2"))

	runner, _ := newTestRunner(store, constantAnswer(summaryAnswer))
	report, err := runner.Run(ctx, SummarizeStage(), 0)
	require.NoError(t, err)
	assert.Equal(t, StageReport{Considered: 2, Enriched: 2}, report)

	out, err := store.LoadLatest(ctx, domain.StageSummarized)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "The close button has no accessible name.", out[0].ACRNote)
	assert.Equal(t, "Add an aria-label; a patch exists.", out[0].DevNote)
	assert.Equal(t, "OK", out[0].TitleAssessment)
	assert.Equal(t, "1.3.1", out[0].AIWCAGCriterion)
	assert.Equal(t, "1.3.1", out[0].WCAGCriterion, "unmapped record takes the AI criterion")

	assert.Equal(t, "1.3.1", out[1].AIWCAGCriterion)
	assert.Equal(t, "4.1.2", out[1].WCAGCriterion, "connector criterion wins")
}

func TestSummarizeUnstructuredAnswerDefaults(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seed(domain.StageRaw, rawIssue("1", ""))

	runner, _ := newTestRunner(store, constantAnswer("The widget is hard to use with a keyboard."))
	_, err := runner.Run(ctx, SummarizeStage(), 0)
	require.NoError(t, err)

	out, _ := store.LoadLatest(ctx, domain.StageSummarized)
	require.Len(t, out, 1)
	assert.Equal(t, "The widget is hard to use with a keyboard.", out[0].ACRNote)
	assert.Equal(t, domain.Unknown, out[0].TitleAssessment)
	assert.Equal(t, domain.Unknown, out[0].AIWCAGCriterion)
	assert.Equal(t, domain.Unknown, out[0].WCAGCriterion)
}

func TestStageRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seed(domain.StageRaw, rawIssue("1", ""), rawIssue("2", ""))

	first := constantAnswer(summaryAnswer)
	runner, _ := newTestRunner(store, first)
	_, err := runner.Run(ctx, SummarizeStage(), 0)
	require.NoError(t, err)

	second := constantAnswer(summaryAnswer)
	runner, _ = newTestRunner(store, second)
	report, err := runner.Run(ctx, SummarizeStage(), 0)
	require.NoError(t, err)

	assert.Empty(t, second.prompts)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, []string{"1", "2"}, store.ids(domain.StageSummarized))
}

func TestQuotaErrorAbortsAndRerunResumes(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	for i := 1; i <= 5; i++ {
		store.seed(domain.StageRaw, rawIssue(fmt.Sprint(i), ""))
	}

	quota := &scriptedGenerator{respond: func(call int, _ string) (string, error) {
		if call == 3 {
			return "", fmt.Errorf("status 429: %w", ports.ErrQuotaExceeded)
		}
		return summaryAnswer, nil
	}}
	runner, _ := newTestRunner(store, quota)
	_, err := runner.Run(ctx, SummarizeStage(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrQuotaExceeded)
	assert.Equal(t, []string{"1", "2"}, store.ids(domain.StageSummarized), "records before the quota error persist")

	resumed := constantAnswer(summaryAnswer)
	runner, _ = newTestRunner(store, resumed)
	report, err := runner.Run(ctx, SummarizeStage(), 0)
	require.NoError(t, err)

	assert.Len(t, resumed.prompts, 3)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, store.ids(domain.StageSummarized))
}

func TestSoftErrorWritesSentinel(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seed(domain.StageRaw, rawIssue("1", ""), rawIssue("2", ""), rawIssue("3", ""))

	gen := &scriptedGenerator{respond: func(call int, _ string) (string, error) {
		if call == 2 {
			return "", errors.New("connection reset")
		}
		return summaryAnswer, nil
	}}
	runner, _ := newTestRunner(store, gen)
	report, err := runner.Run(ctx, SummarizeStage(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Enriched)

	out, _ := store.LoadLatest(ctx, domain.StageSummarized)
	require.Len(t, out, 3)
	failed := out[1]
	assert.Equal(t, "2", failed.ID)
	assert.Equal(t, domain.ErrorSentinel, failed.ACRNote)
	assert.Equal(t, domain.ErrorSentinel, failed.DevNote)
	assert.Equal(t, domain.ErrorSentinel, failed.TitleAssessment)
	assert.Equal(t, domain.ErrorSentinel, failed.AIWCAGCriterion)
	assert.Equal(t, "Issue 2", failed.Title, "source fields survive a failure")
}

func TestStageLimit(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seed(domain.StageRaw, rawIssue("1", ""), rawIssue("2", ""), rawIssue("3", ""))

	gen := constantAnswer(summaryAnswer)
	runner, _ := newTestRunner(store, gen)
	report, err := runner.Run(ctx, SummarizeStage(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Considered)
	assert.Equal(t, []string{"1", "2"}, store.ids(domain.StageSummarized))
}

func TestPacingOnlyAfterSuccess(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seed(domain.StageRaw, rawIssue("1", ""), rawIssue("2", ""), rawIssue("3", ""))

	gen := pacedGenerator{
		scriptedGenerator: &scriptedGenerator{respond: func(call int, _ string) (string, error) {
			if call == 2 {
				return "", errors.New("bad gateway")
			}
			return summaryAnswer, nil
		}},
		delay: 4 * time.Second,
	}
	runner, rec := newTestRunner(store, gen)
	_, err := runner.Run(ctx, SummarizeStage(), 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{4 * time.Second, 4 * time.Second}, rec.waits)
}

func TestUnpacedGeneratorNeverSleeps(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seed(domain.StageRaw, rawIssue("1", ""), rawIssue("2", ""))

	runner, rec := newTestRunner(store, constantAnswer(summaryAnswer))
	_, err := runner.Run(ctx, SummarizeStage(), 0)
	require.NoError(t, err)
	assert.Empty(t, rec.waits)
}

func TestStageMissingInput(t *testing.T) {
	runner, _ := newTestRunner(newMemStore(), constantAnswer(summaryAnswer))
	_, err := runner.Run(context.Background(), SummarizeStage(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrMissingInput)
}

func TestAnalyzeThreadStage(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	withThread := rawIssue("10", "2.4.7")
	withoutThread := rawIssue("11", "")
	store.seed(domain.StageSummarized, withThread, withoutThread)

	threads := threadStub{
		withThread.SourceURL: {
			Reporter:  "alice",
			Followers: "7 followers",
			Files:     []string{"focus-ring.patch"},
			Comments: []domain.Comment{
				{Sequence: 1, Author: "bob", Body: "Confirmed on Claro.", Link: withThread.SourceURL + "#comment-1"},
			},
		},
	}
	gen := constantAnswer(`TLDR: Focus ring is missing.
PROBLEM_STATEMENT: Keyboard users cannot see focus (2.4.7).
SENTIMENT: Active collaboration
TIMELINE:
#1 bob: confirmed
LINKS: - [Focus Visible](https://www.w3.org/WAI/WCAG22/Understanding/focus-visible): guidance`)

	runner, _ := newTestRunner(store, gen)
	report, err := runner.Run(ctx, AnalyzeThreadStage(threads), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Enriched)

	require.Len(t, gen.prompts, 2)
	assert.Contains(t, gen.prompts[0], "REPORTER: alice")
	assert.Contains(t, gen.prompts[0], "#1 bob ("+withThread.SourceURL+"#comment-1): Confirmed on Claro.")
	assert.Contains(t, gen.prompts[0], "focus-ring.patch")
	assert.Contains(t, gen.prompts[1], "COMMENT THREAD: unavailable")

	out, _ := store.LoadLatest(ctx, domain.StageThreadAnalyzed)
	require.Len(t, out, 2)
	assert.Equal(t, "Focus ring is missing.", out[0].ThreadTLDR)
	assert.Equal(t, "Active collaboration", out[0].ThreadSentiment)
	assert.Equal(t, "#1 bob: confirmed", out[0].ThreadTimeline)
	assert.True(t, strings.HasPrefix(out[0].ThreadLinks, "- [Focus Visible]"))
	assert.Equal(t, "2.4.7", out[0].WCAGCriterion)
}

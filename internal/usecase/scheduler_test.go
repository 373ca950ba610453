package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ACRScanner/internal/domain"
	"ACRScanner/internal/logging"
)

// manualDriver fires the registered job only when told to.
type manualDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerRunsPipelineOnTick(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	source := &sourceStub{issues: []domain.Issue{{ID: "1"}}}
	p := newTestPipeline(store, source, routedGenerator(), &reportStub{})

	driver := &manualDriver{}
	sched := NewScheduler(driver, p, RunOptions{Project: "drupal", Step: StepExtract}, logging.Discard())
	require.NoError(t, sched.Start(ctx))
	require.NotNil(t, driver.job)

	driver.job(time.Now())
	driver.job(time.Now())
	assert.Equal(t, 2, source.calls)
	assert.Equal(t, []string{"1"}, store.ids(domain.StageRaw), "second tick resumes without duplicates")

	require.NoError(t, sched.Stop(ctx))
	assert.True(t, driver.stopped)
}

func TestSchedulerWithoutDriverIsNoop(t *testing.T) {
	sched := NewScheduler(nil, nil, RunOptions{}, nil)
	assert.NoError(t, sched.Start(context.Background()))
	assert.NoError(t, sched.Stop(context.Background()))
}

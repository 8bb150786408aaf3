package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/treasury-erp/treasury-erp/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func (s stubInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, s.err
}

func TestTriggerAcceptsShortAndFullNames(t *testing.T) {
	client := &stubEnqueuer{}
	c := NewJobsCLIWith(client, nil)

	info, err := c.Trigger(context.Background(), "reconcile")
	require.NoError(t, err)
	require.Equal(t, jobs.TaskLedgerReconcile, info.Type)

	_, err = c.Trigger(context.Background(), jobs.TaskIdempotencyCleanup)
	require.NoError(t, err)
	require.Len(t, client.tasks, 2)
	require.Equal(t, jobs.TaskIdempotencyCleanup, client.tasks[1].Type())

	_, err = c.Trigger(context.Background(), "overspend")
	require.ErrorContains(t, err, "unsupported job")
}

func TestInspectQueueWithoutInspector(t *testing.T) {
	_, err := NewJobsCLIWith(nil, nil).InspectQueue(context.Background())
	require.Error(t, err)
}

func TestJobsCommandStatsJSON(t *testing.T) {
	c := NewJobsCLIWith(nil, stubInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 3, Retry: 1}})
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	code := JobsCommand(context.Background(), c, []string{"stats"}, stdout, stderr)
	require.Zero(t, code)
	require.Empty(t, stderr.String())

	var stats QueueStats
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stats))
	require.Equal(t, 3, stats.Pending)
	require.Equal(t, 1, stats.Retry)
}

func TestJobsCommandErrors(t *testing.T) {
	c := NewJobsCLIWith(&stubEnqueuer{}, stubInspector{err: errors.New("redis down")})
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	require.Equal(t, 2, JobsCommand(context.Background(), c, nil, stdout, stderr))
	require.Equal(t, 2, JobsCommand(context.Background(), c, []string{"trigger"}, stdout, stderr))
	require.Equal(t, 1, JobsCommand(context.Background(), c, []string{"stats"}, stdout, stderr))
	require.Contains(t, stderr.String(), "redis down")

	stdout.Reset()
	require.Zero(t, JobsCommand(context.Background(), c, []string{"trigger", "cleanup"}, stdout, stderr))
	require.Contains(t, stdout.String(), jobs.TaskIdempotencyCleanup)
}

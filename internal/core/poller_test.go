package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy-console/internal/adapter/joblog"
	"deploy-console/internal/adapter/trigger"
	"deploy-console/internal/model"
	"deploy-console/pkg/constants"
)

func TestReconcileSingleTaskPerInstance(t *testing.T) {
	store := newFakeStore()
	inst := store.add(pollableInstance("agent-1", 1))

	engine := NewEngine(store, validCreds(), trigger.NewMockClient(), joblog.NewMockRetriever(), testLogger(), fastOptions())
	defer engine.Stop()

	engine.Reconcile()
	engine.Reconcile()
	engine.Reconcile()

	assert.Equal(t, 1, engine.ActivePollCount())
	assert.True(t, engine.HasPollTask(inst.ID))
}

func TestReconcileSweepsDeletedInstance(t *testing.T) {
	store := newFakeStore()
	inst := store.add(pollableInstance("agent-1", 1))

	engine := NewEngine(store, validCreds(), trigger.NewMockClient(), joblog.NewMockRetriever(), testLogger(), fastOptions())
	defer engine.Stop()

	engine.Reconcile()
	require.True(t, engine.HasPollTask(inst.ID))

	store.remove(inst.ID)
	engine.Reconcile()

	assert.False(t, engine.HasPollTask(inst.ID))
	assert.Equal(t, 0, engine.ActivePollCount())
}

func TestReconcileIgnoresNotSubmitted(t *testing.T) {
	store := newFakeStore()
	inst := store.add(&model.DeployInstance{
		InstanceID:       "agent-1",
		DeploymentStatus: constants.DeployStatusNotSubmitted,
	})

	engine := NewEngine(store, validCreds(), trigger.NewMockClient(), joblog.NewMockRetriever(), testLogger(), fastOptions())
	defer engine.Stop()

	engine.Reconcile()
	assert.False(t, engine.HasPollTask(inst.ID))
}

func TestPollToSuccessWithSentinelURL(t *testing.T) {
	store := newFakeStore()
	inst := store.add(pollableInstance("agent-1", 1))

	mockTrigger := trigger.NewMockClient().SetRunningChecks(1)
	logs := joblog.NewMockRetriever().SetLines([]string{
		"deploying...",
		"FINAL_DEPLOYMENT_STATUS_SUCCESS_URL: https://agent-1.example.com",
	})

	engine := NewEngine(store, validCreds(), mockTrigger, logs, testLogger(), fastOptions())
	defer engine.Stop()

	engine.Reconcile()

	assert.Eventually(t, func() bool {
		return store.status(inst.ID) == constants.DeployStatusSuccessDeployed
	}, 2*time.Second, 10*time.Millisecond)

	got, err := store.FindByID(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://agent-1.example.com", got.DeployedURL)
	assert.Empty(t, got.DeploymentError)

	// 终态后任务在同一tick被清理
	assert.Eventually(t, func() bool {
		return engine.ActivePollCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestPollErrorSentinelOverridesSuccess(t *testing.T) {
	store := newFakeStore()
	inst := store.add(pollableInstance("agent-1", 1))

	// 状态接口说成功, 日志哨兵说失败, 以日志为准
	mockTrigger := trigger.NewMockClient().SetRunningChecks(0)
	logs := joblog.NewMockRetriever().SetLines([]string{
		"FINAL_DEPLOYMENT_STATUS_SUCCESS_URL: https://x.example.com",
		"FINAL_DEPLOYMENT_STATUS_ERROR: post-deploy healthcheck failed",
	})

	engine := NewEngine(store, validCreds(), mockTrigger, logs, testLogger(), fastOptions())
	defer engine.Stop()

	engine.Reconcile()

	assert.Eventually(t, func() bool {
		return store.status(inst.ID) == constants.DeployStatusErrorJobFailed
	}, 2*time.Second, 10*time.Millisecond)

	got, _ := store.FindByID(inst.ID)
	assert.Equal(t, "post-deploy healthcheck failed", got.DeploymentError)
	assert.Empty(t, got.DeployedURL)
}

func TestPollFailureKeepsLoopAlive(t *testing.T) {
	store := newFakeStore()
	inst := store.add(pollableInstance("agent-1", 1))

	mockTrigger := trigger.NewMockClient().SetStatusError(errors.New("upstream down"))

	engine := NewEngine(store, validCreds(), mockTrigger, joblog.NewMockRetriever(), testLogger(), fastOptions())
	defer engine.Stop()

	engine.Reconcile()

	assert.Eventually(t, func() bool {
		return store.status(inst.ID) == constants.DeployStatusErrorPollingFailed
	}, 2*time.Second, 10*time.Millisecond)

	// 虽是 error_ 前缀, 轮询任务继续存活等待恢复
	assert.True(t, engine.HasPollTask(inst.ID))

	// 上游恢复后继续推进到终态
	mockTrigger.SetStatusError(nil).SetRunningChecks(0)
	assert.Eventually(t, func() bool {
		return store.status(inst.ID) == constants.DeployStatusSuccessDeployed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPollMisconfiguredKillsTask(t *testing.T) {
	store := newFakeStore()
	inst := store.add(&model.DeployInstance{
		InstanceID:       "agent-1",
		DeploymentStatus: constants.DeployStatusSubmitted,
		JobExecutionName: "exec-1",
		// 缺少 project/region/job
	})

	engine := NewEngine(store, validCreds(), trigger.NewMockClient(), joblog.NewMockRetriever(), testLogger(), fastOptions())
	defer engine.Stop()

	engine.Reconcile()

	assert.Eventually(t, func() bool {
		return store.status(inst.ID) == constants.DeployStatusErrorPollingMisconfigured
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return engine.ActivePollCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestPollStaleTerminalResultDiscardedAfterResubmit(t *testing.T) {
	store := newFakeStore()
	inst := store.add(pollableInstance("agent-1", 1))

	mockTrigger := trigger.NewMockClient().SetRunningChecks(0)
	logs := joblog.NewMockRetriever().SetLines([]string{
		"FINAL_DEPLOYMENT_STATUS_SUCCESS_URL: https://stale.example.com",
	})
	engine := NewEngine(store, validCreds(), mockTrigger, logs, testLogger(), fastOptions())
	defer engine.Stop()

	// 状态查询期间实例被重新提交, 本轮结论已过期
	store.setOnFind(func(id int64) {
		store.setOnFind(nil)
		_ = store.UpdateRuntime(id, func(m *model.DeployInstance) {
			m.DeploymentStatus = constants.DeployStatusSubmitted
			m.JobExecutionName = "exec-new"
		})
	})

	done := engine.pollOnce(context.Background(), inst.ID)
	assert.True(t, done)

	got, err := store.FindByID(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.DeployStatusSubmitted, got.DeploymentStatus)
	assert.Equal(t, "exec-new", got.JobExecutionName)
	assert.Empty(t, got.DeployedURL)
}

func TestPollCleanupKeepsReplacementTask(t *testing.T) {
	store := newFakeStore()
	inst := store.add(pollableInstance("agent-1", 1))

	engine := NewEngine(store, validCreds(), trigger.NewMockClient(), joblog.NewMockRetriever(), testLogger(), fastOptions())
	defer engine.Stop()

	// 对账已为重新提交的实例换上新任务, 旧任务退出时不得误删
	replacement := &pollTask{cancel: func() {}}
	engine.mu.Lock()
	engine.pollTasks[inst.ID] = replacement
	engine.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	engine.pollWork(ctx, inst.ID, &pollTask{cancel: func() {}})

	engine.mu.Lock()
	current := engine.pollTasks[inst.ID]
	engine.mu.Unlock()
	assert.Same(t, replacement, current)
}

func TestManualPollWithoutCoordinates(t *testing.T) {
	store := newFakeStore()
	store.add(&model.DeployInstance{
		InstanceID:       "agent-1",
		DeploymentStatus: constants.DeployStatusSubmitted,
	})

	mockTrigger := trigger.NewMockClient()
	engine := NewEngine(store, validCreds(), mockTrigger, joblog.NewMockRetriever(), testLogger(), fastOptions())
	defer engine.Stop()

	got, err := engine.ManualPoll(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, constants.DeployStatusErrorPollingMisconfigured, got.DeploymentStatus)
	assert.Equal(t, 0, mockTrigger.StatusCalled(""))
}

func TestManualPollFetchesStatus(t *testing.T) {
	store := newFakeStore()
	inst := store.add(pollableInstance("agent-1", 1))

	mockTrigger := trigger.NewMockClient().SetRunningChecks(0)
	logs := joblog.NewMockRetriever().SetLines([]string{
		"FINAL_DEPLOYMENT_STATUS_SUCCESS_URL: https://ok.example.com",
	})
	engine := NewEngine(store, validCreds(), mockTrigger, logs, testLogger(), fastOptions())
	defer engine.Stop()

	got, err := engine.ManualPoll(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, constants.DeployStatusSuccessDeployed, got.DeploymentStatus)
	assert.Equal(t, "https://ok.example.com", got.DeployedURL)
	assert.Equal(t, 1, mockTrigger.StatusCalled("exec-agent-1"))
	_ = inst
}

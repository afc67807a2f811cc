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
	pkgErrors "deploy-console/pkg/errors"
)

// draftInstance 尚未提交过的实例
func draftInstance(instanceID string, wave int) *model.DeployInstance {
	return &model.DeployInstance{
		InstanceID:       instanceID,
		AgentName:        instanceID,
		RepoURL:          "https://git.example.com/org/" + instanceID,
		Branch:           "main",
		Region:           "europe-west1",
		Wave:             wave,
		DeploymentStatus: constants.DeployStatusNotSubmitted,
	}
}

func TestSubmitEmptySelection(t *testing.T) {
	engine := NewEngine(newFakeStore(), validCreds(), trigger.NewMockClient(), joblog.NewMockRetriever(), testLogger(), fastOptions())
	defer engine.Stop()

	_, err := engine.Submit(context.Background(), nil, false)
	assert.ErrorIs(t, err, pkgErrors.ErrNoInstanceSelected)
}

func TestSubmitUnknownInstance(t *testing.T) {
	store := newFakeStore()
	store.add(draftInstance("agent-1", 1))

	engine := NewEngine(store, validCreds(), trigger.NewMockClient(), joblog.NewMockRetriever(), testLogger(), fastOptions())
	defer engine.Stop()

	_, err := engine.Submit(context.Background(), []string{"agent-1", "ghost"}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestSubmitNeedsConfirmOnExampleDefaults(t *testing.T) {
	store := newFakeStore()
	inst := draftInstance("agent-1", 1)
	inst.SetEnvVars([]model.EnvVarEntry{
		{Key: "API_KEY", Value: "changeme", MatchesExample: true},
	})
	inst = store.add(inst)

	mockTrigger := trigger.NewMockClient()
	engine := NewEngine(store, validCreds(), mockTrigger, joblog.NewMockRetriever(), testLogger(), fastOptions())
	defer engine.Stop()

	outcome, err := engine.Submit(context.Background(), []string{"agent-1"}, false)
	require.NoError(t, err)
	assert.True(t, outcome.NeedsConfirm)
	assert.NotEmpty(t, outcome.Warnings)

	// 预检被拦下, 没有任何网络调用和状态变更
	assert.Equal(t, 0, mockTrigger.TriggerCalled())
	assert.Equal(t, constants.DeployStatusNotSubmitted, store.status(inst.ID))

	// confirm=true 放行
	outcome, err = engine.Submit(context.Background(), []string{"agent-1"}, true)
	require.NoError(t, err)
	assert.False(t, outcome.NeedsConfirm)
	assert.Equal(t, 1, mockTrigger.TriggerCalled())
}

func TestSubmitRequiresBothCredentials(t *testing.T) {
	store := newFakeStore()
	store.add(draftInstance("agent-1", 1))

	creds := &fakeCreds{err: errors.New("no credential selected")}
	engine := NewEngine(store, creds, trigger.NewMockClient(), joblog.NewMockRetriever(), testLogger(), fastOptions())
	defer engine.Stop()

	_, err := engine.Submit(context.Background(), []string{"agent-1"}, false)
	assert.ErrorIs(t, err, pkgErrors.ErrCredentialsRequired)
}

func TestSubmitTriggerFailureMarksAllInstances(t *testing.T) {
	store := newFakeStore()
	a := store.add(draftInstance("agent-1", 1))
	b := store.add(draftInstance("agent-2", 2))

	mockTrigger := trigger.NewMockClient().SetTriggerError(errors.New("connection refused"))
	engine := NewEngine(store, validCreds(), mockTrigger, joblog.NewMockRetriever(), testLogger(), fastOptions())
	defer engine.Stop()

	_, err := engine.Submit(context.Background(), []string{"agent-1", "agent-2"}, false)
	require.Error(t, err)

	assert.Equal(t, constants.DeployStatusErrorTriggerFailed, store.status(a.ID))
	assert.Equal(t, constants.DeployStatusErrorTriggerFailed, store.status(b.ID))

	got, err := store.FindByID(a.ID)
	require.NoError(t, err)
	assert.Contains(t, got.DeploymentError, "connection refused")
}

func TestSubmitStoresJobCoordinatesAndStartsPolling(t *testing.T) {
	store := newFakeStore()
	inst := store.add(draftInstance("agent-1", 1))

	engine := NewEngine(store, validCreds(), trigger.NewMockClient(), joblog.NewMockRetriever(), testLogger(), fastOptions())
	defer engine.Stop()

	outcome, err := engine.Submit(context.Background(), []string{"agent-1"}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Submitted)
	require.Len(t, outcome.Results, 1)
	assert.Equal(t, constants.DeployStatusSubmitted, outcome.Results[0].Status)

	got, err := store.FindByID(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "mock-exec-1", got.JobExecutionName)
	assert.Equal(t, "mock-project", got.JobProjectID)
	assert.Equal(t, "mock-region", got.JobRegion)
	assert.Equal(t, "mock-job", got.JobName)

	// 提交后立即对账, 轮询任务就位
	assert.True(t, engine.HasPollTask(inst.ID))
}

func TestSubmitClearsPreviousDeployResult(t *testing.T) {
	store := newFakeStore()
	inst := draftInstance("agent-1", 1)
	inst.DeploymentStatus = constants.DeployStatusErrorJobFailed
	inst.DeployedURL = "https://stale.example.com"
	inst.DeploymentError = "stale error"
	inst.JobExecutionName = "stale-exec"
	inst = store.add(inst)

	// 放慢触发, 观察乐观更新后的中间态
	mockTrigger := trigger.NewMockClient().SetTriggerDelay(100 * time.Millisecond)
	engine := NewEngine(store, validCreds(), mockTrigger, joblog.NewMockRetriever(), testLogger(), fastOptions())
	defer engine.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = engine.Submit(context.Background(), []string{"agent-1"}, true)
	}()

	assert.Eventually(t, func() bool {
		got, err := store.FindByID(inst.ID)
		if err != nil {
			return false
		}
		return got.DeploymentStatus == constants.DeployStatusSubmitted &&
			got.DeployedURL == "" && got.DeploymentError == "" && got.JobExecutionName == ""
	}, time.Second, 5*time.Millisecond)

	<-done
}

// stubTrigger 受理响应里不含任何实例结果
type stubTrigger struct {
	*trigger.MockClient
	raw string
}

func (s *stubTrigger) Trigger(ctx context.Context, req *trigger.TriggerRequest) (*trigger.TriggerResponse, error) {
	return &trigger.TriggerResponse{Raw: s.raw}, nil
}

func TestSubmitMissingResultKeepsRawResponse(t *testing.T) {
	store := newFakeStore()
	inst := store.add(draftInstance("agent-1", 1))

	stub := &stubTrigger{MockClient: trigger.NewMockClient(), raw: `{"unexpected":"shape"}`}
	engine := NewEngine(store, validCreds(), stub, joblog.NewMockRetriever(), testLogger(), fastOptions())
	defer engine.Stop()

	outcome, err := engine.Submit(context.Background(), []string{"agent-1"}, false)
	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)
	assert.Equal(t, constants.DeployStatusSubmitted, outcome.Results[0].Status)

	got, err := store.FindByID(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.DeployStatusSubmitted, got.DeploymentStatus)
	assert.Equal(t, `{"unexpected":"shape"}`, got.DeploymentLog)
	// 没拿到Job坐标, 不应有轮询任务
	assert.False(t, engine.HasPollTask(inst.ID))
}

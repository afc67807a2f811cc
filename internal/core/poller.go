package core

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"deploy-console/internal/model"
	"deploy-console/pkg/constants"
	pkgErrors "deploy-console/pkg/errors"
)

// Reconcile 对账一次: 为可轮询实例拉起任务, 清理失效任务
//
// 可轮询 = 已有Job执行名且状态非终态; error_polling_failed 虽满足终态
// 谓词, 但轮询可能自行恢复, 任务保留。
func (e *Engine) Reconcile() {
	instances, err := e.store.FindAll()
	if err != nil {
		e.logger.Error("对账查询实例失败", zap.Error(err))
		return
	}

	alive := make(map[int64]bool, len(instances))
	for _, inst := range instances {
		if e.shouldPoll(inst) {
			alive[inst.ID] = true
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// 清理: 实例已删除或已达终态
	for id, task := range e.pollTasks {
		if !alive[id] {
			task.cancel()
			delete(e.pollTasks, id)
		}
	}

	// 拉起: 已有任务的跳过, 保证每实例至多一个任务
	for _, inst := range instances {
		if !alive[inst.ID] {
			continue
		}
		if _, exists := e.pollTasks[inst.ID]; exists {
			continue
		}
		ctx, cancel := context.WithCancel(context.Background())
		task := &pollTask{cancel: cancel}
		e.pollTasks[inst.ID] = task
		e.logger.Info("启动状态轮询", zap.String("instance_id", inst.InstanceID))
		go e.pollWork(ctx, inst.ID, task)
	}
}

// pollTask 单实例轮询任务句柄, 指针即任务身份
type pollTask struct {
	cancel context.CancelFunc
}

func (e *Engine) shouldPoll(inst *model.DeployInstance) bool {
	if inst.JobExecutionName == "" {
		return false
	}
	if inst.DeploymentStatus == constants.DeployStatusErrorPollingFailed {
		return true
	}
	return !constants.IsTerminalDeployStatus(inst.DeploymentStatus)
}

// ActivePollCount 当前活跃轮询任务数
func (e *Engine) ActivePollCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pollTasks)
}

// HasPollTask 指定实例是否有活跃轮询任务
func (e *Engine) HasPollTask(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.pollTasks[id]
	return ok
}

func (e *Engine) pollWork(ctx context.Context, id int64, self *pollTask) {
	ticker := time.NewTicker(e.opts.PollInterval)
	defer func() {
		ticker.Stop()
		self.cancel()
		// 只清理自己的注册, 对账可能已为重新提交的实例换上新任务
		e.mu.Lock()
		if e.pollTasks[id] == self {
			delete(e.pollTasks, id)
		}
		e.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := e.pollOnce(ctx, id); done {
				return
			}
		}
	}
}

// pollOnce 执行一次状态查询, 返回是否应终止轮询
func (e *Engine) pollOnce(ctx context.Context, id int64) bool {
	inst, err := e.store.FindByID(id)
	if err != nil {
		// 实例已删除, 任务随之结束
		return true
	}

	// 坐标残缺时重试没有意义
	if !inst.HasJobCoordinates() {
		_ = e.store.UpdateRuntime(id, func(m *model.DeployInstance) {
			m.DeploymentStatus = constants.DeployStatusErrorPollingMisconfigured
			m.DeploymentError = "Job坐标不完整, 无法轮询状态"
		})
		return true
	}

	now := time.Now()
	status, err := e.trigger.JobStatus(ctx, inst.JobProjectID, inst.JobRegion, inst.JobName, inst.JobExecutionName)
	if err != nil {
		e.logger.Warn("轮询Job状态失败",
			zap.String("instance_id", inst.InstanceID), zap.Error(err))
		_ = e.store.UpdateRuntime(id, func(m *model.DeployInstance) {
			m.DeploymentStatus = constants.DeployStatusErrorPollingFailed
			m.DeploymentError = err.Error()
			m.LastPolledAt = &now
		})
		// 下次tick可能恢复, 循环继续
		return false
	}

	derived := deriveStatus(status.JobExecutionStatus, status.DeploymentOutcome)
	if !constants.IsTerminalDeployStatus(derived) {
		_ = e.store.UpdateRuntime(id, func(m *model.DeployInstance) {
			m.DeploymentStatus = derived
			m.LastPolledAt = &now
		})
		return false
	}

	// 终态: 拉取日志提炼最终结论
	finalStatus := derived
	deployedURL := status.DeployedServiceURL
	errorDetail := status.ErrorDetails
	logText := status.FullLog

	lines, logErr := e.fetchLogs(ctx, inst)
	if logErr != nil {
		e.logger.Warn("拉取Job日志失败",
			zap.String("instance_id", inst.InstanceID), zap.Error(logErr))
		if errorDetail == "" {
			errorDetail = "日志拉取失败: " + logErr.Error()
		}
	} else if len(lines) > 0 {
		logText = strings.Join(lines, "\n")
	}

	// 日志哨兵优先于状态接口的结论, 失败哨兵又优先于成功哨兵
	outcome := ParseJobLogText(logText)
	if outcome.Failed {
		finalStatus = constants.DeployStatusErrorJobFailed
		if outcome.ErrorMessage != "" {
			errorDetail = outcome.ErrorMessage
		}
		deployedURL = ""
	} else if outcome.DeployedURL != "" {
		finalStatus = constants.DeployStatusSuccessDeployed
		deployedURL = outcome.DeployedURL
		errorDetail = ""
	}

	// 终态写入带状态前置条件: 查询期间实例被重新提交时放弃本次结论
	changed, err := e.store.UpdateStatusIf(id, inst.DeploymentStatus, map[string]interface{}{
		"deployment_status": finalStatus,
		"deployed_url":      deployedURL,
		"deployment_error":  errorDetail,
		"deployment_log":    logText,
		"last_polled_at":    &now,
	})
	if err != nil {
		e.logger.Error("写入终态失败", zap.String("instance_id", inst.InstanceID), zap.Error(err))
		return false
	}
	if !changed {
		e.logger.Info("实例状态已被并发推进, 放弃过期的轮询结论",
			zap.String("instance_id", inst.InstanceID))
		return true
	}

	e.logger.Info("实例到达终态",
		zap.String("instance_id", inst.InstanceID),
		zap.String("status", finalStatus))
	return true
}

// deriveStatus 由状态接口返回推导内部状态标签
func deriveStatus(executionStatus, outcome string) string {
	switch outcome {
	case "success":
		return constants.DeployStatusSuccessDeployed
	case "error", "failed":
		return constants.DeployStatusErrorJobFailed
	}
	if executionStatus == "" {
		return constants.DeployStatusSubmitted
	}
	tag := "job_" + strings.ToLower(executionStatus)
	if constants.IsTerminalDeployStatus(tag) {
		return constants.DeployStatusErrorJobFailed
	}
	return tag
}

func (e *Engine) fetchLogs(ctx context.Context, inst *model.DeployInstance) ([]string, error) {
	sa, err := e.creds.SelectedCredential(constants.CredentialTypeSource)
	if err != nil {
		return nil, err
	}
	return e.logs.FetchJobLogs(ctx, sa, inst.JobProjectID, inst.JobRegion,
		inst.JobName, inst.JobExecutionName, e.opts.LogTailLimit)
}

// ManualPoll 手动触发一次状态查询
//
// 缺少Job坐标时不发网络请求, 直接标记配置错误。
func (e *Engine) ManualPoll(ctx context.Context, instanceID string) (*model.DeployInstance, error) {
	inst, err := e.store.FindByInstanceID(instanceID)
	if err != nil {
		return nil, err
	}
	if !inst.HasJobCoordinates() {
		if err := e.store.UpdateRuntime(inst.ID, func(m *model.DeployInstance) {
			m.DeploymentStatus = constants.DeployStatusErrorPollingMisconfigured
			m.DeploymentError = "Job坐标不完整, 无法轮询状态"
		}); err != nil {
			return nil, err
		}
		return e.store.FindByID(inst.ID)
	}

	e.pollOnce(ctx, inst.ID)
	e.Reconcile()

	updated, err := e.store.FindByID(inst.ID)
	if err != nil {
		return nil, pkgErrors.ErrInstanceNotFound
	}
	return updated, nil
}

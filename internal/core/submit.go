package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"deploy-console/internal/adapter/trigger"
	"deploy-console/internal/model"
	"deploy-console/pkg/constants"
	pkgErrors "deploy-console/pkg/errors"
)

// InstanceSubmitResult 单实例提交结果
type InstanceSubmitResult struct {
	InstanceID string `json:"instance_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// SubmitOutcome 一次提交的整体结果
//
// NeedsConfirm 为 true 时未做任何提交, Warnings 列出待确认项。
type SubmitOutcome struct {
	NeedsConfirm bool                   `json:"needs_confirm"`
	Warnings     []string               `json:"warnings,omitempty"`
	Waves        []int                  `json:"waves,omitempty"`
	Submitted    int                    `json:"submitted"`
	Results      []InstanceSubmitResult `json:"results,omitempty"`
}

// Submit 提交指定实例部署
//
// 先乐观置为待定状态再发起网络调用; 触发失败时所有目标实例统一置为
// error_trigger_failed。提交成功后立即对账, 拉起状态轮询。
func (e *Engine) Submit(ctx context.Context, instanceIDs []string, confirm bool) (*SubmitOutcome, error) {
	if len(instanceIDs) == 0 {
		return nil, pkgErrors.ErrNoInstanceSelected
	}

	instances, err := e.store.FindByInstanceIDs(instanceIDs)
	if err != nil {
		return nil, err
	}
	if len(instances) != len(instanceIDs) {
		found := make(map[string]bool, len(instances))
		for _, inst := range instances {
			found[inst.InstanceID] = true
		}
		for _, id := range instanceIDs {
			if !found[id] {
				return nil, pkgErrors.Wrap(pkgErrors.CodeNotFound,
					fmt.Sprintf("部署实例 %s 不存在", id), nil)
			}
		}
	}

	payload, warnings, err := BuildSubmissionPayload(instances)
	if err != nil {
		return nil, err
	}

	waves := wavesOf(instances)
	if len(warnings) > 0 && !confirm {
		return &SubmitOutcome{NeedsConfirm: true, Warnings: warnings, Waves: waves}, nil
	}

	// 凭据校验在任何状态变更之前
	sourceSA, err := e.creds.SelectedCredential(constants.CredentialTypeSource)
	if err != nil {
		return nil, pkgErrors.ErrCredentialsRequired
	}
	targetSA, err := e.creds.SelectedCredential(constants.CredentialTypeTarget)
	if err != nil {
		return nil, pkgErrors.ErrCredentialsRequired
	}

	userRequirements, err := payload.Marshal()
	if err != nil {
		return nil, err
	}

	// 乐观更新: 先置为待定, 清空上次部署的结果与Job坐标
	for _, inst := range instances {
		if err := e.store.UpdateRuntime(inst.ID, func(m *model.DeployInstance) {
			m.DeploymentStatus = constants.DeployStatusSubmitted
			m.DeployedURL = ""
			m.DeploymentError = ""
			m.JobExecutionName = ""
			m.JobProjectID = ""
			m.JobRegion = ""
			m.JobName = ""
		}); err != nil {
			return nil, err
		}
	}

	resp, err := e.trigger.Trigger(ctx, &trigger.TriggerRequest{
		UserRequirements:       userRequirements,
		ServiceAccount:         sourceSA,
		CustomerServiceAccount: targetSA,
	})
	if err != nil {
		e.logger.Error("触发部署失败", zap.Error(err))
		for _, inst := range instances {
			_ = e.store.UpdateRuntime(inst.ID, func(m *model.DeployInstance) {
				m.DeploymentStatus = constants.DeployStatusErrorTriggerFailed
				m.DeploymentError = err.Error()
			})
		}
		return nil, err
	}

	byInstanceID := make(map[string]trigger.TriggerResult, len(resp.Results))
	for _, r := range resp.Results {
		byInstanceID[r.InstanceID] = r
	}

	outcome := &SubmitOutcome{Warnings: warnings, Waves: waves, Submitted: len(instances)}
	for _, inst := range instances {
		result, ok := byInstanceID[inst.InstanceID]
		if !ok {
			// 响应缺少该实例的受理结果, 保留原始响应体供排查
			e.logger.Warn("触发响应缺少实例结果", zap.String("instance_id", inst.InstanceID))
			_ = e.store.UpdateRuntime(inst.ID, func(m *model.DeployInstance) {
				m.DeploymentLog = resp.Raw
			})
			outcome.Results = append(outcome.Results, InstanceSubmitResult{
				InstanceID: inst.InstanceID,
				Status:     constants.DeployStatusSubmitted,
			})
			continue
		}

		status := result.Status
		if status == "" {
			status = constants.DeployStatusSubmitted
		}
		if result.ErrorDetails != "" {
			status = constants.DeployStatusErrorTriggerFailed
		}
		_ = e.store.UpdateRuntime(inst.ID, func(m *model.DeployInstance) {
			m.DeploymentStatus = status
			m.DeploymentError = result.ErrorDetails
			m.JobExecutionName = result.JobExecutionName
			m.JobProjectID = result.JobProjectID
			m.JobRegion = result.JobRegion
			m.JobName = result.JobName
		})
		outcome.Results = append(outcome.Results, InstanceSubmitResult{
			InstanceID: inst.InstanceID,
			Status:     status,
			Error:      result.ErrorDetails,
		})
	}

	// 立即对账, 为拿到Job坐标的实例拉起轮询
	e.Reconcile()
	return outcome, nil
}

func wavesOf(instances []*model.DeployInstance) []int {
	seen := make(map[int]bool)
	var waves []int
	for _, w := range constants.DeployWaves {
		for _, inst := range instances {
			if inst.Wave == w && !seen[w] {
				seen[w] = true
				waves = append(waves, w)
			}
		}
	}
	return waves
}

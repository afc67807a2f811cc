package core

import (
	"encoding/json"
	"fmt"

	"deploy-console/internal/model"
	pkgErrors "deploy-console/pkg/errors"
)

// AgentPayload 提交载荷中的单个实例
type AgentPayload struct {
	Name        string                 `json:"name"`
	CommitSha   string                 `json:"commit_sha"`
	Environment map[string]interface{} `json:"environment"`
}

// SubmissionPayload 部署提交载荷
//
// agents 与 repositories 内容完全一致, 远端接口的历史兼容字段。
type SubmissionPayload struct {
	Agents       []AgentPayload `json:"agents"`
	Repositories []AgentPayload `json:"repositories"`
}

// BuildSubmissionPayload 构造部署提交载荷
//
// 返回的 warnings 为非阻断提示(未覆盖的示例默认值), 由调用方决定是否放行。
func BuildSubmissionPayload(instances []*model.DeployInstance) (*SubmissionPayload, []string, error) {
	if len(instances) == 0 {
		return nil, nil, pkgErrors.ErrNoInstanceSelected
	}

	payload := &SubmissionPayload{}
	var warnings []string

	for _, inst := range instances {
		extraEnv := map[string]string{}
		for _, entry := range inst.EnvVars() {
			if entry.Key == "" {
				continue
			}
			if entry.MatchesExample {
				warnings = append(warnings,
					fmt.Sprintf("实例 %s 的环境变量 %s 仍是示例默认值", inst.InstanceID, entry.Key))
			}
			extraEnv[entry.Key] = entry.Value
		}

		buckets := inst.BucketNames()
		if buckets == nil {
			buckets = []string{}
		}
		mounts := inst.Mounts()
		if mounts == nil {
			mounts = []model.BucketMount{}
		}

		environment := map[string]interface{}{
			"region":           inst.Region,
			"repo_url":         inst.RepoURL,
			"branch":           inst.Branch,
			"commit_sha":       inst.CommitSha,
			"connectDatabase":  inst.ConnectDatabase,
			"service_name":     inst.ServiceName,
			"extra_env_source": inst.ExtraEnvSource,
			"extra_env":        extraEnv,
			"buckets":          buckets,
			"bucket_mounts":    mounts,
		}
		if inst.ConnectDatabase {
			environment["database_instance"] = inst.DatabaseInstance
			environment["database_name"] = inst.DatabaseName
			environment["db_username"] = inst.DBUsername
			environment["db_password"] = inst.DBPassword
		}

		agent := AgentPayload{
			Name:        inst.InstanceID,
			CommitSha:   inst.CommitSha,
			Environment: environment,
		}
		payload.Agents = append(payload.Agents, agent)
	}

	// 两个数组保持同一内容
	payload.Repositories = payload.Agents
	return payload, warnings, nil
}

// Marshal 序列化为 userrequirements.json 内容
func (p *SubmissionPayload) Marshal() (json.RawMessage, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "序列化提交载荷失败", err)
	}
	return raw, nil
}

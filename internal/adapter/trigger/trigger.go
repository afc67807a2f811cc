package trigger

import (
	"context"
	"encoding/json"
)

// Client 部署触发服务适配器接口
type Client interface {

	// Trigger 提交部署请求, 返回各实例的受理结果
	Trigger(ctx context.Context, req *TriggerRequest) (*TriggerResponse, error)

	// JobStatus 查询某次 Job 执行的状态
	JobStatus(ctx context.Context, projectID, region, jobName, executionName string) (*JobStatusResult, error)

	// Prime 触发目标项目的预置流程
	Prime(ctx context.Context, serviceAccount json.RawMessage) error

	// PrimeStatus 查询目标项目的预置进度, credential 随请求透传给触发服务
	PrimeStatus(ctx context.Context, credential json.RawMessage, projectID string) (*PrimeStatusResult, error)
}

// TriggerRequest 提交部署的三份凭据与需求文件
type TriggerRequest struct {
	UserRequirements       json.RawMessage
	ServiceAccount         json.RawMessage
	CustomerServiceAccount json.RawMessage
}

// TriggerResult 单个实例的受理结果
type TriggerResult struct {
	InstanceID       string `json:"instance_id"`
	Status           string `json:"status_overall_job_execution"`
	JobExecutionName string `json:"job_execution_name"`
	JobProjectID     string `json:"job_project_id"`
	JobRegion        string `json:"job_region"`
	JobName          string `json:"job_name"`
	ErrorDetails     string `json:"error_details"`
}

// TriggerResponse 触发服务返回
//
// Raw 保留原始响应体, 结果缺失时用于落库排查。
type TriggerResponse struct {
	Results []TriggerResult `json:"results"`
	Raw     string          `json:"-"`
}

// JobStatusResult Job 执行状态查询结果
type JobStatusResult struct {
	JobExecutionStatus string `json:"job_execution_status"`
	DeploymentOutcome  string `json:"deployment_outcome"`
	DeployedServiceURL string `json:"deployed_service_url"`
	ErrorDetails       string `json:"error_details"`
	FullLog            string `json:"full_log"`
}

// PrimeStatusResult 预置进度结果
type PrimeStatusResult struct {
	Status  string          `json:"status"`
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

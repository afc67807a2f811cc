package dto

// SubmitDeployRequest 提交部署请求
//
// InstanceIDs 不能为空, Confirm 为 false 时若环境变量仍与示例默认值一致则拒绝提交。
type SubmitDeployRequest struct {
	InstanceIDs []string `json:"instance_ids"`
	Confirm     bool     `json:"confirm"`
}

// ManualPollRequest 手动触发一次状态轮询
type ManualPollRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
}

// BranchInfoResponse 仓库分支信息
type BranchInfoResponse struct {
	Name      string `json:"name"`
	CommitSha string `json:"commit_sha"`
}

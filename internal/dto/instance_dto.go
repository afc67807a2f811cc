package dto

// AddInstanceRequest 新增部署实例请求
type AddInstanceRequest struct {
	InstanceID string `json:"instance_id" binding:"required,max=128"` // 全局唯一, 创建后不可变
	AgentName  string `json:"agent_name" binding:"required,max=128"`
	RepoURL    string `json:"repo_url" binding:"required,max=255"`
	Branch     string `json:"branch" binding:"required,max=128"`
	CommitSha  string `json:"commit_sha"`
	Wave       int    `json:"wave" binding:"omitempty,oneof=1 2 3"`
}

// UpdateInstanceRequest 更新部署参数(仅非nil字段生效)
type UpdateInstanceRequest struct {
	InstanceID  string  `json:"instance_id" binding:"required"`
	Branch      *string `json:"branch"`
	CommitSha   *string `json:"commit_sha"`
	Wave        *int    `json:"wave" binding:"omitempty,oneof=1 2 3"`
	Region      *string `json:"region"`
	ServiceName *string `json:"service_name"`

	// 数据库连接字段(仅 connect_database=true 时有意义)
	DatabaseInstance *string `json:"database_instance"`
	DatabaseName     *string `json:"database_name"`
	DBUsername       *string `json:"db_username"`
	DBPassword       *string `json:"db_password"`
}

// DeleteInstanceRequest 删除实例请求
type DeleteInstanceRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
}

// ToggleDatabaseRequest 开关数据库连接
//
// 关闭会清空全部数据库字段, 不可撤销。
type ToggleDatabaseRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
	Enabled    *bool  `json:"enabled" binding:"required"`
}

// EnvVarRequest 环境变量操作(对当前选中来源的列表生效)
type EnvVarRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
	Action     string `json:"action" binding:"required,oneof=add update remove"`
	Index      *int   `json:"index"` // update/remove 必填
	Key        string `json:"key"`
	Value      string `json:"value"`
}

// SelectEnvSourceRequest 切换环境变量来源, source 为空表示清空当前选择
type SelectEnvSourceRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
	Source     string `json:"source"`
}

// ResolveEnvRequest 为实例解析环境变量基线
type ResolveEnvRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
}

// ResolveEnvResponse 环境解析结果
type ResolveEnvResponse struct {
	FoundEnv       bool     `json:"found_env"`
	FoundExample   bool     `json:"found_example"`
	SelectedSource string   `json:"selected_source"`
	Warnings       []string `json:"warnings,omitempty"`
}

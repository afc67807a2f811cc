package model

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const DeployInstanceTableName = "deploy_instances"

// BucketMount 桶挂载对
type BucketMount struct {
	Bucket    string `json:"bucket"`
	MountPath string `json:"mount_path"`
}

// DeployInstance 部署实例（已配置、不一定已提交的部署单元）
//
// InstanceID 一经创建不可变, 全局唯一。运行时字段(状态/URL/Job坐标)
// 仅在提交后由编排器写入, 不接受用户编辑。
type DeployInstance struct {
	BaseModel

	InstanceID string `gorm:"column:instance_id;size:128;not null;uniqueIndex" json:"instance_id"`
	AgentName  string `gorm:"size:128;not null" json:"agent_name"`
	RepoURL    string `gorm:"size:255;not null" json:"repo_url"`
	Branch     string `gorm:"size:128;not null" json:"branch"`
	CommitSha  string `gorm:"size:64" json:"commit_sha"`
	Wave       int    `gorm:"not null;default:1;index" json:"wave"`

	// 部署参数
	Region          string `gorm:"size:64" json:"region"`
	ServiceName     string `gorm:"size:128" json:"service_name"`
	ConnectDatabase bool   `gorm:"not null;default:false" json:"connect_database"`

	// 数据库连接信息(connect_database=false 时全部为空串)
	DatabaseInstance string `gorm:"size:128" json:"database_instance"`
	DatabaseName     string `gorm:"size:128" json:"database_name"`
	DBUsername       string `gorm:"column:db_username;size:128" json:"db_username"`
	DBPassword       string `gorm:"column:db_password;size:255" json:"db_password"`

	// 环境变量
	ExtraEnvSource      string         `gorm:"size:32" json:"extra_env_source"` // 当前选中来源名, 空串表示未选
	ExtraEnv            datatypes.JSON `gorm:"type:json" json:"extra_env"`
	AvailableEnvSources datatypes.JSON `gorm:"type:json" json:"available_env_sources"`
	ExampleEnvDefaults  datatypes.JSON `gorm:"type:json" json:"example_env_defaults"`

	// 存储桶
	Buckets      datatypes.JSON `gorm:"type:json" json:"buckets"`
	BucketMounts datatypes.JSON `gorm:"type:json" json:"bucket_mounts"`

	// 环境加载簿记
	LastFetchedEnvBranch string `gorm:"size:128" json:"last_fetched_env_branch"`

	// 运行时状态
	DeploymentStatus string     `gorm:"size:64;not null;default:not_submitted;index" json:"deployment_status"`
	DeploymentLog    string     `gorm:"type:longtext" json:"deployment_log"`
	DeployedURL      string     `gorm:"size:255" json:"deployed_url"`
	DeploymentError  string     `gorm:"type:text" json:"deployment_error"`
	LastPolledAt     *time.Time `json:"last_polled_at"`

	// Job坐标(提交成功后回填)
	JobExecutionName string `gorm:"size:255" json:"job_execution_name"`
	JobProjectID     string `gorm:"size:128" json:"job_project_id"`
	JobRegion        string `gorm:"size:64" json:"job_region"`
	JobName          string `gorm:"size:128" json:"job_name"`
}

// TableName 指定表名
func (DeployInstance) TableName() string {
	return DeployInstanceTableName
}

// HasJobCoordinates 是否具备轮询所需的全部Job坐标
func (i *DeployInstance) HasJobCoordinates() bool {
	return i.JobExecutionName != "" && i.JobProjectID != "" && i.JobRegion != "" && i.JobName != ""
}

// === JSON 字段访问器(解析失败按空值处理) ===

// EnvVars 当前生效的环境变量列表
func (i *DeployInstance) EnvVars() []EnvVarEntry {
	var out []EnvVarEntry
	if len(i.ExtraEnv) > 0 {
		_ = json.Unmarshal(i.ExtraEnv, &out)
	}
	return out
}

// SetEnvVars 整体写入环境变量列表
func (i *DeployInstance) SetEnvVars(entries []EnvVarEntry) {
	if entries == nil {
		entries = []EnvVarEntry{}
	}
	raw, _ := json.Marshal(entries)
	i.ExtraEnv = raw
}

// EnvSources 可用环境变量来源
func (i *DeployInstance) EnvSources() []EnvSource {
	var out []EnvSource
	if len(i.AvailableEnvSources) > 0 {
		_ = json.Unmarshal(i.AvailableEnvSources, &out)
	}
	return out
}

// SetEnvSources 整体写入来源列表
func (i *DeployInstance) SetEnvSources(sources []EnvSource) {
	if sources == nil {
		sources = []EnvSource{}
	}
	raw, _ := json.Marshal(sources)
	i.AvailableEnvSources = raw
}

// ExampleDefaults 仓库 .env.example 的默认值映射
func (i *DeployInstance) ExampleDefaults() map[string]string {
	out := map[string]string{}
	if len(i.ExampleEnvDefaults) > 0 {
		_ = json.Unmarshal(i.ExampleEnvDefaults, &out)
	}
	return out
}

// SetExampleDefaults 写入默认值映射
func (i *DeployInstance) SetExampleDefaults(defaults map[string]string) {
	if defaults == nil {
		defaults = map[string]string{}
	}
	raw, _ := json.Marshal(defaults)
	i.ExampleEnvDefaults = raw
}

// BucketNames 桶名列表
func (i *DeployInstance) BucketNames() []string {
	var out []string
	if len(i.Buckets) > 0 {
		_ = json.Unmarshal(i.Buckets, &out)
	}
	return out
}

// Mounts 桶挂载对列表
func (i *DeployInstance) Mounts() []BucketMount {
	var out []BucketMount
	if len(i.BucketMounts) > 0 {
		_ = json.Unmarshal(i.BucketMounts, &out)
	}
	return out
}

var dbNameSanitizer = regexp.MustCompile(`[^a-z0-9-]+`)

// DeriveDatabaseDefaults 按 repo+branch 生成确定性的数据库默认值
//
// 实例名形如 ${repo}-${branch}-db, 小写并剔除非法字符。
func DeriveDatabaseDefaults(repoName, branch string) (instance, database, username string) {
	base := sanitizeDBToken(repoName) + "-" + sanitizeDBToken(branch)
	base = strings.Trim(base, "-")
	if base == "" {
		base = "app"
	}
	instance = base + "-db"
	database = strings.ReplaceAll(base, "-", "_")
	username = "app_user"
	return
}

func sanitizeDBToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = dbNameSanitizer.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

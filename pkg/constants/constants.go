package constants

import "strings"

// CredentialType 凭据类型
const (
	CredentialTypeSource = "source" // 提供方服务账号
	CredentialTypeTarget = "target" // 客户方服务账号
)

// ValidCredentialType 校验凭据类型
func ValidCredentialType(t string) bool {
	return t == CredentialTypeSource || t == CredentialTypeTarget
}

// CredentialStatus 凭据状态
const (
	CredentialStatusUnverified = "unverified" // 未验证
	CredentialStatusVerified   = "verified"   // 已验证
	CredentialStatusPrimed     = "primed"     // 已初始化(prime完成)
)

// DeployStatus 部署实例状态
//
// 状态由远端 Job Status API 与日志解析共同产生，本服务只维护一个终态判定。
const (
	DeployStatusNotSubmitted = "not_submitted"            // 未提交(无 job_execution_name)
	DeployStatusSubmitted    = "submitted_pending_status" // 已提交，等待首次状态

	DeployStatusSuccessDeployed = "success_deployed" // 日志解析出部署成功URL

	DeployStatusErrorTriggerFailed        = "error_trigger_failed"        // 提交失败
	DeployStatusErrorJobFailed            = "error_job_failed"            // 日志解析出失败信息
	DeployStatusErrorPollingFailed        = "error_polling_failed"        // 单次轮询失败(可重试)
	DeployStatusErrorPollingMisconfigured = "error_polling_misconfigured" // 缺少Job坐标(不可重试)
)

// IsTerminalDeployStatus 终态判定
//
// 规则: success_/error_ 前缀, 或包含 failed / completed_。
// 轮询的启停只依赖该判定, 不存在其他状态分类逻辑。
func IsTerminalDeployStatus(status string) bool {
	if strings.HasPrefix(status, "success_") || strings.HasPrefix(status, "error_") {
		return true
	}
	return strings.Contains(status, "failed") || strings.Contains(status, "completed_")
}

// DeployWaves 允许的波次
var DeployWaves = []int{1, 2, 3}

// ValidDeployWave 校验波次取值
func ValidDeployWave(wave int) bool {
	for _, w := range DeployWaves {
		if w == wave {
			return true
		}
	}
	return false
}

// EnvSource 环境变量来源名称(优先级: deployed > env > example)
const (
	EnvSourceDeployed = "deployed" // 历史部署配置
	EnvSourceEnv      = "env"      // 仓库 .env
	EnvSourceExample  = "example"  // 仓库 .env.example
)

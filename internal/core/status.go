package core

import "strings"

// 部署 Job 日志中的终态哨兵行
const (
	sentinelInstanceID = "FINAL_INSTANCE_ID:"
	sentinelError      = "FINAL_DEPLOYMENT_STATUS_ERROR:"
	sentinelSuccessURL = "FINAL_DEPLOYMENT_STATUS_SUCCESS_URL:"
)

// LogOutcome 从日志中提炼的终态信息
//
// Failed 优先于 URL: 同时出现时以失败为准。
type LogOutcome struct {
	InstanceID   string
	Failed       bool
	ErrorMessage string
	DeployedURL  string
}

// ParseJobLog 扫描日志行提取哨兵信息, 同名哨兵后出现者覆盖先出现者
func ParseJobLog(lines []string) LogOutcome {
	var out LogOutcome
	for _, line := range lines {
		if idx := strings.Index(line, sentinelInstanceID); idx >= 0 {
			out.InstanceID = strings.TrimSpace(line[idx+len(sentinelInstanceID):])
		}
		if idx := strings.Index(line, sentinelError); idx >= 0 {
			out.Failed = true
			out.ErrorMessage = strings.TrimSpace(line[idx+len(sentinelError):])
		}
		if idx := strings.Index(line, sentinelSuccessURL); idx >= 0 {
			out.DeployedURL = strings.TrimSpace(line[idx+len(sentinelSuccessURL):])
		}
	}
	return out
}

// ParseJobLogText 按行拆分整段日志后提取哨兵信息
func ParseJobLogText(text string) LogOutcome {
	if text == "" {
		return LogOutcome{}
	}
	return ParseJobLog(strings.Split(text, "\n"))
}

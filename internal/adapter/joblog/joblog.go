package joblog

import (
	"context"
	"encoding/json"
)

// Retriever 云端 Job 执行日志检索接口
type Retriever interface {
	// FetchJobLogs 拉取指定 Job 执行的日志行(时间正序)
	FetchJobLogs(ctx context.Context, serviceAccount json.RawMessage, projectID, region, jobName, executionName string, limit int) ([]string, error)
}

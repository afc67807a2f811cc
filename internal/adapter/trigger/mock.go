package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MockClient 模拟触发服务
type MockClient struct {
	// 可控行为
	triggerDelay  time.Duration  // 触发延迟
	finalOutcome  string         // 终态 outcome: "success"/"error"
	deployedURL   string         // 成功时返回的服务地址
	triggerError     error          // Trigger 是否返回错误
	statusError      error          // JobStatus 是否返回错误
	primeStatusError error          // PrimeStatus 是否返回错误
	runningChecks    int            // 前 N 次查询返回运行中
	fullLog          string         // 终态时返回的日志
	triggerCalled    int            // Trigger 被调用次数
	statusCalled     map[string]int // 每个 execution 的查询次数
	primeStatusCalls int            // PrimeStatus 被调用次数
	primed           map[string]string
	mu               sync.Mutex
}

func NewMockClient() *MockClient {
	return &MockClient{
		finalOutcome:  "success",
		deployedURL:   "https://mock-service.example.com",
		runningChecks: 1,
		statusCalled:  make(map[string]int),
		primed:        make(map[string]string),
	}
}

// === 配置方法 ===

func (m *MockClient) SetFinalOutcome(outcome string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalOutcome = outcome
	return m
}

func (m *MockClient) SetDeployedURL(url string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deployedURL = url
	return m
}

func (m *MockClient) SetTriggerError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggerError = err
	return m
}

func (m *MockClient) SetStatusError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusError = err
	return m
}

func (m *MockClient) SetPrimeStatusError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.primeStatusError = err
	return m
}

func (m *MockClient) SetRunningChecks(n int) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runningChecks = n
	return m
}

func (m *MockClient) SetFullLog(log string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fullLog = log
	return m
}

func (m *MockClient) SetTriggerDelay(d time.Duration) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggerDelay = d
	return m
}

// === 接口实现 ===

func (m *MockClient) Trigger(ctx context.Context, req *TriggerRequest) (*TriggerResponse, error) {
	m.mu.Lock()
	m.triggerCalled++
	delay := m.triggerDelay
	triggerErr := m.triggerError
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if triggerErr != nil {
		return nil, triggerErr
	}

	// 从 userrequirements 里取实例ID, 每个实例返回一条受理结果
	var payload struct {
		Agents []struct {
			Name string `json:"name"`
		} `json:"agents"`
	}
	_ = json.Unmarshal(req.UserRequirements, &payload)

	resp := &TriggerResponse{Raw: `{"results":[]}`}
	for i, agent := range payload.Agents {
		resp.Results = append(resp.Results, TriggerResult{
			InstanceID:       agent.Name,
			Status:           "submitted_pending_status",
			JobExecutionName: fmt.Sprintf("mock-exec-%d", i+1),
			JobProjectID:     "mock-project",
			JobRegion:        "mock-region",
			JobName:          "mock-job",
		})
	}
	return resp, nil
}

func (m *MockClient) JobStatus(ctx context.Context, projectID, region, jobName, executionName string) (*JobStatusResult, error) {
	m.mu.Lock()
	m.statusCalled[executionName]++
	count := m.statusCalled[executionName]
	statusErr := m.statusError
	runningChecks := m.runningChecks
	finalOutcome := m.finalOutcome
	deployedURL := m.deployedURL
	fullLog := m.fullLog
	m.mu.Unlock()

	if statusErr != nil {
		return nil, statusErr
	}

	if count <= runningChecks {
		return &JobStatusResult{JobExecutionStatus: "running"}, nil
	}
	if finalOutcome == "success" {
		return &JobStatusResult{
			JobExecutionStatus: "completed",
			DeploymentOutcome:  "success",
			DeployedServiceURL: deployedURL,
			FullLog:            fullLog,
		}, nil
	}
	return &JobStatusResult{
		JobExecutionStatus: "completed",
		DeploymentOutcome:  "error",
		ErrorDetails:       "mock job failed",
		FullLog:            fullLog,
	}, nil
}

func (m *MockClient) Prime(ctx context.Context, serviceAccount json.RawMessage) error {
	var sa struct {
		ProjectID string `json:"project_id"`
	}
	_ = json.Unmarshal(serviceAccount, &sa)
	m.mu.Lock()
	m.primed[sa.ProjectID] = "running"
	m.mu.Unlock()
	return nil
}

func (m *MockClient) PrimeStatus(ctx context.Context, credential json.RawMessage, projectID string) (*PrimeStatusResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.primeStatusCalls++
	if m.primeStatusError != nil {
		return nil, m.primeStatusError
	}
	if projectID == "" {
		var sa struct {
			ProjectID string `json:"project_id"`
		}
		_ = json.Unmarshal(credential, &sa)
		projectID = sa.ProjectID
	}
	status, ok := m.primed[projectID]
	if !ok {
		return &PrimeStatusResult{Status: "unknown"}, nil
	}
	// 第二次查询即完成
	if status == "running" {
		m.primed[projectID] = "completed"
	}
	return &PrimeStatusResult{Status: m.primed[projectID]}, nil
}

// === 验证方法 ===

func (m *MockClient) TriggerCalled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggerCalled
}

func (m *MockClient) StatusCalled(executionName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalled[executionName]
}

func (m *MockClient) PrimeStatusCalled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.primeStatusCalls
}

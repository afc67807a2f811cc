package joblog

import (
	"context"
	"encoding/json"
	"sync"
)

// MockRetriever 模拟日志检索器
type MockRetriever struct {
	lines     []string
	fetchErr  error
	fetchedBy map[string]int // key: executionName
	mu        sync.Mutex
}

func NewMockRetriever() *MockRetriever {
	return &MockRetriever{fetchedBy: make(map[string]int)}
}

func (m *MockRetriever) SetLines(lines []string) *MockRetriever {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = lines
	return m
}

func (m *MockRetriever) SetError(err error) *MockRetriever {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErr = err
	return m
}

func (m *MockRetriever) FetchJobLogs(ctx context.Context, serviceAccount json.RawMessage, projectID, region, jobName, executionName string, limit int) ([]string, error) {
	m.mu.Lock()
	m.fetchedBy[executionName]++
	fetchErr := m.fetchErr
	lines := m.lines
	m.mu.Unlock()
	if fetchErr != nil {
		return nil, fetchErr
	}
	return lines, nil
}

func (m *MockRetriever) FetchCount(executionName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchedBy[executionName]
}

package core

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"deploy-console/internal/model"
	pkgErrors "deploy-console/pkg/errors"
)

// fakeStore 内存实例存储, 读取返回副本模拟数据库语义
type fakeStore struct {
	mu     sync.Mutex
	byID   map[int64]*model.DeployInstance
	nextID int64
	onFind func(id int64) // FindByID 返回后回调, 用于模拟读写竞争
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: map[int64]*model.DeployInstance{}}
}

func (s *fakeStore) add(inst *model.DeployInstance) *model.DeployInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	inst.ID = s.nextID
	s.byID[inst.ID] = inst
	return inst
}

func (s *fakeStore) remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

func copyInstance(inst *model.DeployInstance) *model.DeployInstance {
	c := *inst
	return &c
}

func (s *fakeStore) setOnFind(hook func(id int64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFind = hook
}

func (s *fakeStore) FindByID(id int64) (*model.DeployInstance, error) {
	s.mu.Lock()
	inst, ok := s.byID[id]
	var c *model.DeployInstance
	if ok {
		c = copyInstance(inst)
	}
	hook := s.onFind
	s.mu.Unlock()

	if !ok {
		return nil, pkgErrors.ErrInstanceNotFound
	}
	if hook != nil {
		hook(id)
	}
	return c, nil
}

func (s *fakeStore) FindByInstanceID(instanceID string) (*model.DeployInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.byID {
		if inst.InstanceID == instanceID {
			return copyInstance(inst), nil
		}
	}
	return nil, pkgErrors.ErrInstanceNotFound
}

func (s *fakeStore) FindByInstanceIDs(instanceIDs []string) ([]*model.DeployInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.DeployInstance
	for _, id := range instanceIDs {
		for _, inst := range s.byID {
			if inst.InstanceID == id {
				out = append(out, copyInstance(inst))
			}
		}
	}
	return out, nil
}

func (s *fakeStore) FindByWave(wave int) ([]*model.DeployInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.DeployInstance
	for _, inst := range s.byID {
		if inst.Wave == wave {
			out = append(out, copyInstance(inst))
		}
	}
	return out, nil
}

func (s *fakeStore) FindAll() ([]*model.DeployInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.DeployInstance
	for _, inst := range s.byID {
		out = append(out, copyInstance(inst))
	}
	return out, nil
}

func (s *fakeStore) UpdateRuntime(id int64, mutate func(*model.DeployInstance)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.byID[id]
	if !ok {
		return pkgErrors.ErrInstanceNotFound
	}
	mutate(inst)
	return nil
}

func (s *fakeStore) UpdateStatusIf(id int64, fromStatus string, updates map[string]interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.byID[id]
	if !ok || inst.DeploymentStatus != fromStatus {
		return false, nil
	}
	applyInstanceUpdates(inst, updates)
	return true, nil
}

func applyInstanceUpdates(inst *model.DeployInstance, updates map[string]interface{}) {
	if v, ok := updates["deployment_status"]; ok {
		inst.DeploymentStatus = v.(string)
	}
	if v, ok := updates["deployed_url"]; ok {
		inst.DeployedURL = v.(string)
	}
	if v, ok := updates["deployment_error"]; ok {
		inst.DeploymentError = v.(string)
	}
	if v, ok := updates["deployment_log"]; ok {
		inst.DeploymentLog = v.(string)
	}
	if v, ok := updates["last_polled_at"]; ok {
		inst.LastPolledAt = v.(*time.Time)
	}
}

func (s *fakeStore) status(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.byID[id]
	if !ok {
		return ""
	}
	return inst.DeploymentStatus
}

// fakeCreds 固定返回同一份服务账号
type fakeCreds struct {
	sa  json.RawMessage
	err error
}

func (f *fakeCreds) SelectedCredential(credType string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sa, nil
}

func validCreds() *fakeCreds {
	return &fakeCreds{sa: json.RawMessage(`{"project_id":"p","client_email":"e","private_key":"k"}`)}
}

func fastOptions() Options {
	return Options{
		ScanInterval: 10 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		WaveWait:     10 * time.Millisecond,
		WaveTimeout:  2 * time.Second,
		LogTailLimit: 50,
	}
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func pollableInstance(instanceID string, wave int) *model.DeployInstance {
	return &model.DeployInstance{
		InstanceID:       instanceID,
		AgentName:        instanceID,
		RepoURL:          "https://git.example.com/org/" + instanceID,
		Branch:           "main",
		Wave:             wave,
		DeploymentStatus: "submitted_pending_status",
		JobExecutionName: "exec-" + instanceID,
		JobProjectID:     "project",
		JobRegion:        "region",
		JobName:          "job",
	}
}

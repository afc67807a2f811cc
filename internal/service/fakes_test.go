package service

import (
	"context"
	"sync"

	"deploy-console/internal/model"
	"deploy-console/internal/pkg/git"
	pkgErrors "deploy-console/pkg/errors"
)

// fakeInstanceRepo 内存实例仓储, 读取返回副本模拟数据库语义
type fakeInstanceRepo struct {
	mu     sync.Mutex
	byID   map[int64]*model.DeployInstance
	nextID int64
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{byID: map[int64]*model.DeployInstance{}}
}

func copyInst(inst *model.DeployInstance) *model.DeployInstance {
	c := *inst
	return &c
}

func (r *fakeInstanceRepo) Create(inst *model.DeployInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.InstanceID == inst.InstanceID {
			return pkgErrors.ErrInstanceIDExists
		}
	}
	r.nextID++
	inst.ID = r.nextID
	r.byID[inst.ID] = copyInst(inst)
	return nil
}

func (r *fakeInstanceRepo) Update(inst *model.DeployInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[inst.ID]; !ok {
		return pkgErrors.ErrInstanceNotFound
	}
	r.byID[inst.ID] = copyInst(inst)
	return nil
}

func (r *fakeInstanceRepo) Delete(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

func (r *fakeInstanceRepo) FindByID(id int64) (*model.DeployInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.byID[id]
	if !ok {
		return nil, pkgErrors.ErrInstanceNotFound
	}
	return copyInst(inst), nil
}

func (r *fakeInstanceRepo) FindByInstanceID(instanceID string) (*model.DeployInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.byID {
		if inst.InstanceID == instanceID {
			return copyInst(inst), nil
		}
	}
	return nil, pkgErrors.ErrInstanceNotFound
}

func (r *fakeInstanceRepo) FindAll() ([]*model.DeployInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.DeployInstance
	for _, inst := range r.byID {
		out = append(out, copyInst(inst))
	}
	return out, nil
}

func (r *fakeInstanceRepo) FindByWave(wave int) ([]*model.DeployInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.DeployInstance
	for _, inst := range r.byID {
		if inst.Wave == wave {
			out = append(out, copyInst(inst))
		}
	}
	return out, nil
}

func (r *fakeInstanceRepo) FindByInstanceIDs(instanceIDs []string) ([]*model.DeployInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.DeployInstance
	for _, id := range instanceIDs {
		for _, inst := range r.byID {
			if inst.InstanceID == id {
				out = append(out, copyInst(inst))
			}
		}
	}
	return out, nil
}

func (r *fakeInstanceRepo) UpdateRuntime(id int64, mutate func(*model.DeployInstance)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.byID[id]
	if !ok {
		return pkgErrors.ErrInstanceNotFound
	}
	mutate(inst)
	return nil
}

func (r *fakeInstanceRepo) UpdateStatusIf(id int64, fromStatus string, updates map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.byID[id]
	if !ok || inst.DeploymentStatus != fromStatus {
		return false, nil
	}
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
	return true, nil
}

// fakeCredentialRepo 仅承载 FindSelected, 其余操作为内存直存
type fakeCredentialRepo struct {
	mu       sync.Mutex
	byID     map[int64]*model.Credential
	nextID   int64
	selected map[string]*model.Credential
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{
		byID:     map[int64]*model.Credential{},
		selected: map[string]*model.Credential{},
	}
}

func (r *fakeCredentialRepo) setSelected(credType string, cred *model.Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred.Type = credType
	cred.Selected = true
	r.selected[credType] = cred
}

func (r *fakeCredentialRepo) Create(cred *model.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cred.ID = r.nextID
	r.byID[cred.ID] = cred
	return nil
}

func (r *fakeCredentialRepo) Update(cred *model.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[cred.ID]; !ok {
		return pkgErrors.ErrCredentialNotFound
	}
	r.byID[cred.ID] = cred
	return nil
}

func (r *fakeCredentialRepo) Delete(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

func (r *fakeCredentialRepo) FindByID(id int64) (*model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.byID[id]
	if !ok {
		return nil, pkgErrors.ErrCredentialNotFound
	}
	return cred, nil
}

func (r *fakeCredentialRepo) FindByType(credType string) ([]*model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Credential
	for _, cred := range r.byID {
		if cred.Type == credType {
			out = append(out, cred)
		}
	}
	return out, nil
}

func (r *fakeCredentialRepo) FindSelected(credType string) (*model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.selected[credType]
	if !ok {
		return nil, pkgErrors.ErrCredentialNotFound
	}
	return cred, nil
}

func (r *fakeCredentialRepo) SelectExclusive(credType string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.byID[id]
	if !ok {
		return pkgErrors.ErrCredentialNotFound
	}
	for _, other := range r.byID {
		if other.Type == credType {
			other.Selected = false
		}
	}
	cred.Selected = true
	r.selected[credType] = cred
	return nil
}

func (r *fakeCredentialRepo) ClearSelection(credType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cred := range r.byID {
		if cred.Type == credType {
			cred.Selected = false
		}
	}
	delete(r.selected, credType)
	return nil
}

func (r *fakeCredentialRepo) FindAllSelected() ([]*model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Credential
	for _, cred := range r.selected {
		out = append(out, cred)
	}
	return out, nil
}

// countingReconciler 记录对账触发次数
type countingReconciler struct {
	mu    sync.Mutex
	count int
}

func (c *countingReconciler) Reconcile() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *countingReconciler) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// fakeFetcher 内存仓库内容, files 按 "ref:path" 取文件
type fakeFetcher struct {
	mu             sync.Mutex
	files          map[string]string
	fileErrs       map[string]error
	branches       []git.BranchInfo
	branchErr      error
	branchCalls    int
	contentCalls   map[string]int
	blockRemaining int
	blockCh        chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		files:        map[string]string{},
		fileErrs:     map[string]error{},
		contentCalls: map[string]int{},
	}
}

func (f *fakeFetcher) setFile(ref, path, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[ref+":"+path] = content
}

func (f *fakeFetcher) setFileError(ref, path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fileErrs[ref+":"+path] = err
}

// blockNextContent 令接下来 n 次文件读取阻塞, 直到返回的通道被关闭或上下文取消
func (f *fakeFetcher) blockNextContent(n int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockRemaining = n
	f.blockCh = make(chan struct{})
	return f.blockCh
}

func (f *fakeFetcher) contentCallsTotal() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.contentCalls {
		total += n
	}
	return total
}

func (f *fakeFetcher) GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	key := ref + ":" + path
	f.contentCalls[key]++
	var gate chan struct{}
	if f.blockRemaining > 0 {
		f.blockRemaining--
		gate = f.blockCh
	}
	fileErr, hasErr := f.fileErrs[key]
	content, found := f.files[key]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if hasErr {
		return "", fileErr
	}
	if !found {
		return "", git.ErrFileNotFound
	}
	return content, nil
}

func (f *fakeFetcher) ListBranches(ctx context.Context, owner, repo string) ([]git.BranchInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branchCalls++
	if f.branchErr != nil {
		return nil, f.branchErr
	}
	return f.branches, nil
}

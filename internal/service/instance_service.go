package service

import (
	"strings"

	"deploy-console/internal/dto"
	"deploy-console/internal/model"
	"deploy-console/internal/pkg/git"
	"deploy-console/internal/repository"
	"deploy-console/pkg/constants"
	pkgErrors "deploy-console/pkg/errors"
)

// Reconciler 实例变更后需要触发的轮询对账
type Reconciler interface {
	Reconcile()
}

type InstanceService interface {
	Add(req *dto.AddInstanceRequest) (*model.DeployInstance, error)
	List() ([]*model.DeployInstance, error)
	Get(instanceID string) (*model.DeployInstance, error)
	Update(req *dto.UpdateInstanceRequest) (*model.DeployInstance, error)
	Delete(instanceID string) error
	ToggleDatabase(instanceID string, enabled bool) (*model.DeployInstance, error)
	EnvVarOp(req *dto.EnvVarRequest) (*model.DeployInstance, error)
	SelectEnvSource(instanceID, source string) (*model.DeployInstance, error)
}

type instanceService struct {
	repo       repository.InstanceRepository
	reconciler Reconciler
}

func NewInstanceService(repo repository.InstanceRepository, reconciler Reconciler) InstanceService {
	return &instanceService{repo: repo, reconciler: reconciler}
}

func (s *instanceService) Add(req *dto.AddInstanceRequest) (*model.DeployInstance, error) {
	instanceID := strings.TrimSpace(req.InstanceID)
	if instanceID == "" {
		return nil, pkgErrors.New(pkgErrors.CodeBadRequest, "实例ID不能为空")
	}
	if strings.TrimSpace(req.Branch) == "" {
		return nil, pkgErrors.New(pkgErrors.CodeBadRequest, "分支不能为空")
	}
	wave := req.Wave
	if wave == 0 {
		wave = constants.DeployWaves[0]
	}
	if !constants.ValidDeployWave(wave) {
		return nil, pkgErrors.New(pkgErrors.CodeBadRequest, "波次取值非法")
	}

	inst := &model.DeployInstance{
		InstanceID:       instanceID,
		AgentName:        req.AgentName,
		RepoURL:          req.RepoURL,
		Branch:           req.Branch,
		CommitSha:        req.CommitSha,
		Wave:             wave,
		DeploymentStatus: constants.DeployStatusNotSubmitted,
	}
	inst.SetEnvVars(nil)
	inst.SetEnvSources(nil)
	inst.SetExampleDefaults(nil)

	if err := s.repo.Create(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *instanceService) List() ([]*model.DeployInstance, error) {
	return s.repo.FindAll()
}

func (s *instanceService) Get(instanceID string) (*model.DeployInstance, error) {
	return s.repo.FindByInstanceID(instanceID)
}

// Update 按字段更新部署参数
//
// 换分支会清掉环境加载簿记, 让解析器为新分支重新拉取一次。
func (s *instanceService) Update(req *dto.UpdateInstanceRequest) (*model.DeployInstance, error) {
	inst, err := s.repo.FindByInstanceID(req.InstanceID)
	if err != nil {
		return nil, err
	}
	if req.Wave != nil && !constants.ValidDeployWave(*req.Wave) {
		return nil, pkgErrors.New(pkgErrors.CodeBadRequest, "波次取值非法")
	}

	if err := s.repo.UpdateRuntime(inst.ID, func(m *model.DeployInstance) {
		if req.Branch != nil && *req.Branch != m.Branch {
			m.Branch = *req.Branch
			m.LastFetchedEnvBranch = ""
		}
		if req.CommitSha != nil {
			m.CommitSha = *req.CommitSha
		}
		if req.Wave != nil {
			m.Wave = *req.Wave
		}
		if req.Region != nil {
			m.Region = *req.Region
		}
		if req.ServiceName != nil {
			m.ServiceName = *req.ServiceName
		}
		if m.ConnectDatabase {
			if req.DatabaseInstance != nil {
				m.DatabaseInstance = *req.DatabaseInstance
			}
			if req.DatabaseName != nil {
				m.DatabaseName = *req.DatabaseName
			}
			if req.DBUsername != nil {
				m.DBUsername = *req.DBUsername
			}
			if req.DBPassword != nil {
				m.DBPassword = *req.DBPassword
			}
		}
	}); err != nil {
		return nil, err
	}
	return s.repo.FindByID(inst.ID)
}

// Delete 删除实例并触发对账, 让残留的轮询任务被清理
func (s *instanceService) Delete(instanceID string) error {
	inst, err := s.repo.FindByInstanceID(instanceID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(inst.ID); err != nil {
		return err
	}
	if s.reconciler != nil {
		s.reconciler.Reconcile()
	}
	return nil
}

// ToggleDatabase 开关数据库连接
//
// 开启时按 repo+branch 生成确定性默认值, 关闭清空全部字段(不可撤销)。
func (s *instanceService) ToggleDatabase(instanceID string, enabled bool) (*model.DeployInstance, error) {
	inst, err := s.repo.FindByInstanceID(instanceID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateRuntime(inst.ID, func(m *model.DeployInstance) {
		m.ConnectDatabase = enabled
		if enabled {
			repoName := m.AgentName
			if _, name, ok := git.ParseRepoURL(m.RepoURL); ok {
				repoName = name
			}
			instance, database, username := model.DeriveDatabaseDefaults(repoName, m.Branch)
			if m.DatabaseInstance == "" {
				m.DatabaseInstance = instance
			}
			if m.DatabaseName == "" {
				m.DatabaseName = database
			}
			if m.DBUsername == "" {
				m.DBUsername = username
			}
		} else {
			m.DatabaseInstance = ""
			m.DatabaseName = ""
			m.DBUsername = ""
			m.DBPassword = ""
		}
	}); err != nil {
		return nil, err
	}
	return s.repo.FindByID(inst.ID)
}

// EnvVarOp 对当前环境变量列表执行增删改
//
// 只影响目标条目, matchesExample 按实例当前示例默认值重算。
func (s *instanceService) EnvVarOp(req *dto.EnvVarRequest) (*model.DeployInstance, error) {
	inst, err := s.repo.FindByInstanceID(req.InstanceID)
	if err != nil {
		return nil, err
	}

	var opErr error
	if err := s.repo.UpdateRuntime(inst.ID, func(m *model.DeployInstance) {
		entries := m.EnvVars()
		defaults := m.ExampleDefaults()

		switch req.Action {
		case "add":
			if strings.TrimSpace(req.Key) == "" {
				opErr = pkgErrors.New(pkgErrors.CodeBadRequest, "环境变量key不能为空")
				return
			}
			entries = append(entries, model.RecomputeMatch(model.EnvVarEntry{
				Key:   req.Key,
				Value: req.Value,
			}, defaults))

		case "update":
			if req.Index == nil || *req.Index < 0 || *req.Index >= len(entries) {
				opErr = pkgErrors.New(pkgErrors.CodeBadRequest, "环境变量下标越界")
				return
			}
			entry := entries[*req.Index]
			if req.Key != "" {
				entry.Key = req.Key
			}
			entry.Value = req.Value
			entries[*req.Index] = model.RecomputeMatch(entry, defaults)

		case "remove":
			if req.Index == nil || *req.Index < 0 || *req.Index >= len(entries) {
				opErr = pkgErrors.New(pkgErrors.CodeBadRequest, "环境变量下标越界")
				return
			}
			entries = append(entries[:*req.Index], entries[*req.Index+1:]...)

		default:
			opErr = pkgErrors.New(pkgErrors.CodeBadRequest, "不支持的环境变量操作")
			return
		}
		m.SetEnvVars(entries)
	}); err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}
	return s.repo.FindByID(inst.ID)
}

// SelectEnvSource 切换环境变量来源, 整体替换为所选来源的全新克隆
func (s *instanceService) SelectEnvSource(instanceID, source string) (*model.DeployInstance, error) {
	inst, err := s.repo.FindByInstanceID(instanceID)
	if err != nil {
		return nil, err
	}

	var opErr error
	if err := s.repo.UpdateRuntime(inst.ID, func(m *model.DeployInstance) {
		if source == "" {
			m.ExtraEnvSource = ""
			m.SetEnvVars(nil)
			return
		}
		src, ok := model.FindEnvSource(m.EnvSources(), source)
		if !ok {
			opErr = pkgErrors.New(pkgErrors.CodeBadRequest, "环境变量来源不存在: "+source)
			return
		}
		m.ExtraEnvSource = src.Name
		m.SetEnvVars(model.CloneEnvVars(src.EnvVars, m.ExampleDefaults()))
	}); err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}
	return s.repo.FindByID(inst.ID)
}

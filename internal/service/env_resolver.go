package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"deploy-console/internal/dto"
	"deploy-console/internal/model"
	"deploy-console/internal/pkg/envfile"
	"deploy-console/internal/pkg/git"
	"deploy-console/internal/repository"
	"deploy-console/pkg/constants"
)

// ContentFetcher 环境解析器依赖的仓库读取能力
type ContentFetcher interface {
	GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error)
	ListBranches(ctx context.Context, owner, repo string) ([]git.BranchInfo, error)
}

type EnvResolverService interface {
	// ResolveForInstance 为实例解析 .env / .env.example 基线并落库
	ResolveForInstance(ctx context.Context, instanceID string) (*dto.ResolveEnvResponse, error)

	// Branches 列出实例仓库的分支, 同一实例只远程拉取一次
	Branches(ctx context.Context, instanceID string) ([]dto.BranchInfoResponse, error)
}

type envResolverService struct {
	repo    repository.InstanceRepository
	fetcher ContentFetcher
	logger  *zap.Logger

	mu       sync.Mutex
	inflight map[string]*inflightResolve         // 实例ID -> 进行中解析的取消句柄
	branches map[string][]dto.BranchInfoResponse // 分支列表缓存, 按实例ID去重
}

type inflightResolve struct {
	cancel context.CancelFunc
}

func NewEnvResolverService(repo repository.InstanceRepository, fetcher ContentFetcher, logger *zap.Logger) EnvResolverService {
	return &envResolverService{
		repo:     repo,
		fetcher:  fetcher,
		logger:   logger,
		inflight: make(map[string]*inflightResolve),
		branches: make(map[string][]dto.BranchInfoResponse),
	}
}

func (s *envResolverService) ResolveForInstance(ctx context.Context, instanceID string) (*dto.ResolveEnvResponse, error) {
	inst, err := s.repo.FindByInstanceID(instanceID)
	if err != nil {
		return nil, err
	}

	owner, repoName, ok := git.ParseRepoURL(inst.RepoURL)
	if !ok {
		// 仓库地址不可解析按"无来源"降级, 不报错
		s.logger.Warn("仓库地址无法解析", zap.String("repo_url", inst.RepoURL))
		return &dto.ResolveEnvResponse{}, nil
	}

	// 同一实例后发请求取消先发请求
	fetchCtx, cancel := context.WithCancel(ctx)
	entry := &inflightResolve{cancel: cancel}
	s.mu.Lock()
	if prev, exists := s.inflight[instanceID]; exists {
		prev.cancel()
	}
	s.inflight[instanceID] = entry
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.inflight[instanceID] == entry {
			delete(s.inflight, instanceID)
		}
		s.mu.Unlock()
		cancel()
	}()

	resp := &dto.ResolveEnvResponse{}
	branch := inst.Branch

	// 两个文件独立拉取, 互不阻塞
	exampleText, exampleErr := s.fetcher.GetFileContent(fetchCtx, owner, repoName, ".env.example", branch)
	defaults := map[string]string{}
	switch {
	case exampleErr == nil:
		resp.FoundExample = true
		defaults = envfile.ToMap(envfile.Parse(exampleText))
	case errors.Is(exampleErr, git.ErrFileNotFound):
		// 正常缺省
	case errors.Is(exampleErr, context.Canceled):
		return nil, exampleErr
	default:
		resp.Warnings = append(resp.Warnings, "拉取 .env.example 失败: "+exampleErr.Error())
	}

	envText, envErr := s.fetcher.GetFileContent(fetchCtx, owner, repoName, ".env", branch)
	var envEntries []model.EnvVarEntry
	switch {
	case envErr == nil:
		resp.FoundEnv = true
		for _, e := range envfile.Parse(envText) {
			envEntries = append(envEntries, model.RecomputeMatch(model.EnvVarEntry{
				Key:   e.Key,
				Value: e.Value,
			}, defaults))
		}
	case errors.Is(envErr, git.ErrFileNotFound):
	case errors.Is(envErr, context.Canceled):
		return nil, envErr
	default:
		resp.Warnings = append(resp.Warnings, "拉取 .env 失败: "+envErr.Error())
	}

	// 结果落库前确认本次解析没有被后发请求取代
	if fetchCtx.Err() != nil {
		return nil, fetchCtx.Err()
	}

	if err := s.repo.UpdateRuntime(inst.ID, func(m *model.DeployInstance) {
		var sources []model.EnvSource

		// 历史部署配置保留在首位
		if deployed, ok := model.FindEnvSource(m.EnvSources(), constants.EnvSourceDeployed); ok {
			sources = append(sources, deployed)
		}
		if resp.FoundEnv {
			sources = append(sources, model.EnvSource{
				Name:    constants.EnvSourceEnv,
				Label:   ".env",
				EnvVars: envEntries,
			})
		}
		if resp.FoundExample {
			var exampleEntries []model.EnvVarEntry
			for _, e := range envfile.Parse(exampleText) {
				exampleEntries = append(exampleEntries, model.EnvVarEntry{
					Key:            e.Key,
					Value:          e.Value,
					MatchesExample: true,
				})
			}
			sources = append(sources, model.EnvSource{
				Name:    constants.EnvSourceExample,
				Label:   ".env.example",
				EnvVars: exampleEntries,
			})
		}

		m.SetEnvSources(sources)
		m.SetExampleDefaults(defaults)
		m.LastFetchedEnvBranch = branch

		// 自动选择: deployed > env > example > 无
		if len(sources) > 0 {
			selected := sources[0]
			m.ExtraEnvSource = selected.Name
			m.SetEnvVars(model.CloneEnvVars(selected.EnvVars, defaults))
		} else {
			m.ExtraEnvSource = ""
			m.SetEnvVars(nil)
		}
		resp.SelectedSource = m.ExtraEnvSource
	}); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *envResolverService) Branches(ctx context.Context, instanceID string) ([]dto.BranchInfoResponse, error) {
	s.mu.Lock()
	if cached, ok := s.branches[instanceID]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	inst, err := s.repo.FindByInstanceID(instanceID)
	if err != nil {
		return nil, err
	}
	owner, repoName, ok := git.ParseRepoURL(inst.RepoURL)
	if !ok {
		return nil, nil
	}

	list, err := s.fetcher.ListBranches(ctx, owner, repoName)
	if err != nil {
		return nil, err
	}
	out := make([]dto.BranchInfoResponse, 0, len(list))
	for _, b := range list {
		out = append(out, dto.BranchInfoResponse{Name: b.Name, CommitSha: b.CommitSha})
	}

	s.mu.Lock()
	s.branches[instanceID] = out
	s.mu.Unlock()
	return out, nil
}

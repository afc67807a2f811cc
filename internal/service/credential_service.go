package service

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"deploy-console/internal/adapter/trigger"
	"deploy-console/internal/dto"
	"deploy-console/internal/model"
	"deploy-console/internal/pkg/crypto"
	"deploy-console/internal/repository"
	"deploy-console/pkg/constants"
	pkgErrors "deploy-console/pkg/errors"
)

type CredentialService interface {
	Store(credType string) (*dto.CredentialStoreResponse, error)
	Add(credType string, req *dto.AddCredentialRequest) (*dto.CredentialEntryResponse, error)
	Select(credType string, id *int64) error
	Delete(credType string, id int64) error
	Verify(ctx context.Context, credType string, id int64) (*dto.VerifyCredentialResponse, error)
	MarkPrimed(credType string, id int64, primeResult json.RawMessage) (*dto.CredentialEntryResponse, error)
	Prime(ctx context.Context) error
	RefreshPrimeStatus(ctx context.Context) error

	// SelectedCredential 返回当前选中凭据解密后的服务账号JSON
	SelectedCredential(credType string) (json.RawMessage, error)
}

type credentialService struct {
	repo    repository.CredentialRepository
	trigger trigger.Client
}

func NewCredentialService(repo repository.CredentialRepository, triggerClient trigger.Client) CredentialService {
	return &credentialService{repo: repo, trigger: triggerClient}
}

func (s *credentialService) Store(credType string) (*dto.CredentialStoreResponse, error) {
	if !constants.ValidCredentialType(credType) {
		return nil, pkgErrors.New(pkgErrors.CodeBadRequest, "凭据类型必须是 source 或 target")
	}
	list, err := s.repo.FindByType(credType)
	if err != nil {
		return nil, err
	}

	resp := &dto.CredentialStoreResponse{Entries: make([]*dto.CredentialEntryResponse, 0, len(list))}
	for _, c := range list {
		resp.Entries = append(resp.Entries, toCredentialEntry(c))
		if c.Selected {
			id := c.ID
			resp.SelectedID = &id
		}
	}
	return resp, nil
}

func (s *credentialService) Add(credType string, req *dto.AddCredentialRequest) (*dto.CredentialEntryResponse, error) {
	if !constants.ValidCredentialType(credType) {
		return nil, pkgErrors.New(pkgErrors.CodeBadRequest, "凭据类型必须是 source 或 target")
	}

	var sa struct {
		ProjectID   string `json:"project_id"`
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(req.Credential, &sa); err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeBadRequest, "服务账号必须是合法JSON", err)
	}
	if sa.ProjectID == "" {
		return nil, pkgErrors.New(pkgErrors.CodeBadRequest, "服务账号缺少 project_id")
	}

	enc, err := crypto.Encrypt(string(req.Credential))
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "凭据加密失败，请检查 crypto.aes_key 配置", err)
	}

	c := &model.Credential{
		Type:          credType,
		Label:         req.Label,
		ProjectID:     sa.ProjectID,
		EncryptedData: enc,
		Status:        constants.CredentialStatusUnverified,
	}
	if err := s.repo.Create(c); err != nil {
		return nil, err
	}
	return toCredentialEntry(c), nil
}

// Select 激活凭据, id 为空表示清除当前选择
//
// source 需至少 verified, target 必须 primed。
func (s *credentialService) Select(credType string, id *int64) error {
	if !constants.ValidCredentialType(credType) {
		return pkgErrors.New(pkgErrors.CodeBadRequest, "凭据类型必须是 source 或 target")
	}
	if id == nil {
		return s.repo.ClearSelection(credType)
	}

	c, err := s.repo.FindByID(*id)
	if err != nil {
		return err
	}
	if c.Type != credType {
		return pkgErrors.ErrCredentialNotFound
	}
	if !c.ActivationAllowed() {
		if credType == constants.CredentialTypeTarget {
			return pkgErrors.New(pkgErrors.CodeBadRequest, "目标凭据必须完成 prime 后才能激活")
		}
		return pkgErrors.New(pkgErrors.CodeBadRequest, "凭据尚未验证, 不能激活")
	}
	return s.repo.SelectExclusive(credType, *id)
}

func (s *credentialService) Delete(credType string, id int64) error {
	c, err := s.repo.FindByID(id)
	if err != nil {
		return err
	}
	if c.Type != credType {
		return pkgErrors.ErrCredentialNotFound
	}
	return s.repo.Delete(id)
}

// Verify 校验凭据: 结构完整性检查通过后向触发服务查询预置进度,
// 成功则标记 verified 并保存本次查询结果。已是 primed 的不降级。
func (s *credentialService) Verify(ctx context.Context, credType string, id int64) (*dto.VerifyCredentialResponse, error) {
	c, err := s.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if c.Type != credType {
		return nil, pkgErrors.ErrCredentialNotFound
	}

	raw, err := crypto.Decrypt(c.EncryptedData)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "凭据解密失败", err)
	}
	var sa struct {
		ProjectID   string `json:"project_id"`
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
		TokenURI    string `json:"token_uri"`
	}
	if err := json.Unmarshal([]byte(raw), &sa); err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeBadRequest, "服务账号JSON解析失败", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, pkgErrors.New(pkgErrors.CodeBadRequest, "服务账号缺少 client_email 或 private_key")
	}

	result, err := s.trigger.PrimeStatus(ctx, json.RawMessage(raw), c.ProjectID)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeUpstreamError, "查询预置状态失败", err)
	}
	primeStatus, _ := json.Marshal(result)

	now := time.Now()
	c.VerifiedAt = &now
	c.LastPrimeResult = datatypes.JSON(primeStatus)
	if c.Status != constants.CredentialStatusPrimed {
		c.Status = constants.CredentialStatusVerified
	}
	if err := s.repo.Update(c); err != nil {
		return nil, err
	}
	return &dto.VerifyCredentialResponse{
		Entry:       toCredentialEntry(c),
		PrimeStatus: primeStatus,
	}, nil
}

// MarkPrimed 手工标记 prime 完成(远端流程在带外完成时使用)
func (s *credentialService) MarkPrimed(credType string, id int64, primeResult json.RawMessage) (*dto.CredentialEntryResponse, error) {
	c, err := s.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if c.Type != credType {
		return nil, pkgErrors.ErrCredentialNotFound
	}

	now := time.Now()
	c.Status = constants.CredentialStatusPrimed
	c.PrimedAt = &now
	if len(primeResult) > 0 {
		c.LastPrimeResult = datatypes.JSON(primeResult)
	}
	if err := s.repo.Update(c); err != nil {
		return nil, err
	}
	return toCredentialEntry(c), nil
}

// Prime 对当前选中的 target 凭据发起预置流程
func (s *credentialService) Prime(ctx context.Context) error {
	sa, err := s.SelectedCredential(constants.CredentialTypeTarget)
	if err != nil {
		return pkgErrors.New(pkgErrors.CodeBadRequest, "请先在 target 凭据库中选择一个凭据")
	}
	return s.trigger.Prime(ctx, sa)
}

// RefreshPrimeStatus 轮询已选中凭据的 prime 进度, 完成的升级为 primed
func (s *credentialService) RefreshPrimeStatus(ctx context.Context) error {
	selected, err := s.repo.FindAllSelected()
	if err != nil {
		return err
	}
	for _, c := range selected {
		if c.Status == constants.CredentialStatusPrimed || c.ProjectID == "" {
			continue
		}
		raw, err := crypto.Decrypt(c.EncryptedData)
		if err != nil {
			continue
		}
		result, err := s.trigger.PrimeStatus(ctx, json.RawMessage(raw), c.ProjectID)
		if err != nil {
			continue
		}
		resultJSON, _ := json.Marshal(result)
		c.LastPrimeResult = datatypes.JSON(resultJSON)
		if result.Status == "completed" || result.Status == "primed" {
			now := time.Now()
			c.Status = constants.CredentialStatusPrimed
			c.PrimedAt = &now
		}
		if err := s.repo.Update(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *credentialService) SelectedCredential(credType string) (json.RawMessage, error) {
	c, err := s.repo.FindSelected(credType)
	if err != nil {
		return nil, err
	}
	raw, err := crypto.Decrypt(c.EncryptedData)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "凭据解密失败", err)
	}
	return json.RawMessage(raw), nil
}

func toCredentialEntry(c *model.Credential) *dto.CredentialEntryResponse {
	entry := &dto.CredentialEntryResponse{
		ID:              c.ID,
		Label:           c.Label,
		Status:          c.Status,
		ProjectID:       c.ProjectID,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
		LastPrimeResult: json.RawMessage(c.LastPrimeResult),
	}
	if c.VerifiedAt != nil {
		v := c.VerifiedAt.Format(time.RFC3339)
		entry.VerifiedAt = &v
	}
	if c.PrimedAt != nil {
		p := c.PrimedAt.Format(time.RFC3339)
		entry.PrimedAt = &p
	}
	return entry
}

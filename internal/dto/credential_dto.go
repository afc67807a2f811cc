package dto

import "encoding/json"

// AddCredentialRequest 新增凭据请求
type AddCredentialRequest struct {
	Label      string          `json:"label" binding:"required,max=128"` // 展示名称
	Credential json.RawMessage `json:"credential" binding:"required"`    // 服务账号JSON明文(入库前加密)
}

// SelectCredentialRequest 激活凭据请求(id为空表示清除选择)
type SelectCredentialRequest struct {
	ID *int64 `json:"id"`
}

// MarkPrimedRequest 标记凭据已完成prime
type MarkPrimedRequest struct {
	PrimeResult json.RawMessage `json:"prime_result"`
}

// CredentialEntryResponse 凭据条目(不含密文)
type CredentialEntryResponse struct {
	ID              int64           `json:"id"`
	Label           string          `json:"label"`
	Status          string          `json:"status"`
	ProjectID       string          `json:"project_id"`
	CreatedAt       string          `json:"created_at"`
	VerifiedAt      *string         `json:"verified_at,omitempty"`
	PrimedAt        *string         `json:"primed_at,omitempty"`
	LastPrimeResult json.RawMessage `json:"last_prime_result,omitempty"`
}

// CredentialStoreResponse 某一类型凭据的完整视图
type CredentialStoreResponse struct {
	Entries    []*CredentialEntryResponse `json:"entries"`
	SelectedID *int64                     `json:"selected_id"`
}

// VerifyCredentialResponse 验证结果
type VerifyCredentialResponse struct {
	Entry       *CredentialEntryResponse `json:"entry"`
	PrimeStatus json.RawMessage          `json:"prime_status,omitempty"`
}

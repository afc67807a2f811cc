package model

import (
	"time"

	"gorm.io/datatypes"
)

const CredentialTableName = "console_credentials"

// Credential 云服务账号凭据（敏感字段加密存储）
//
// 说明：
// - encrypted_data: AES-GCM(base64) 服务账号JSON密文（nonce 已包含在密文中）
// - last_prime_result: 最近一次 prime 检查的原始返回（非敏感，用于展示）
// - 每个 type 至多有一个 selected=true 的条目（服务层事务保证）
type Credential struct {
	BaseModelWithSoftDelete

	Type      string `gorm:"size:16;not null;index" json:"type"` // source/target
	Label     string `gorm:"size:128;not null" json:"label"`
	ProjectID string `gorm:"column:project_id;size:128" json:"project_id"`

	EncryptedData string `gorm:"column:encrypted_data;type:longtext;not null" json:"-"`

	Status          string         `gorm:"size:16;not null;default:unverified" json:"status"` // unverified/verified/primed
	Selected        bool           `gorm:"not null;default:false;index" json:"selected"`
	VerifiedAt      *time.Time     `json:"verified_at"`
	PrimedAt        *time.Time     `json:"primed_at"`
	LastPrimeResult datatypes.JSON `gorm:"column:last_prime_result;type:json" json:"last_prime_result,omitempty"`
}

func (Credential) TableName() string {
	return CredentialTableName
}

// ActivationAllowed 激活规则: target 必须 primed; source 验证过即可
func (c *Credential) ActivationAllowed() bool {
	if c.Status == "primed" {
		return true
	}
	return c.Type == "source" && c.Status == "verified"
}

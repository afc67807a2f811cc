package service

import (
	_ "embed"
	"encoding/json"
	"sort"
	"strings"

	"deploy-console/internal/repository"
	"deploy-console/pkg/constants"
	pkgErrors "deploy-console/pkg/errors"
)

//go:embed tenant_stack_template.json
var tenantStackTemplate []byte

// 模板中的坐标字段, 脱敏后统一替换为占位符
var coordinatePlaceholders = map[string]string{
	"project_id":        "{{PROJECT_ID}}",
	"tenant_id":         "{{TENANT_ID}}",
	"region":            "{{REGION}}",
	"database_instance": "{{DB_INSTANCE}}",
	"database_name":     "{{DB_NAME}}",
	"db_username":       "{{DB_USERNAME}}",
}

var sensitiveKeywords = []string{"password", "secret", "token", "credential", "api_key", "signing_key", "private"}

// url 类字段保留原值, 即便字段名里含敏感词
var urlKeywords = []string{"url", "uri", "endpoint", "host"}

// TemplateResponse 脱敏后的模板与占位符清单
type TemplateResponse struct {
	Template     json.RawMessage `json:"template"`
	Placeholders []string        `json:"placeholders"`
}

type TemplateService interface {
	// TenantStackTemplate 返回脱敏后的标准租户栈模板
	TenantStackTemplate() (*TemplateResponse, error)
}

type templateService struct {
	credRepo repository.CredentialRepository
	instRepo repository.InstanceRepository
}

func NewTemplateService(credRepo repository.CredentialRepository, instRepo repository.InstanceRepository) TemplateService {
	return &templateService{credRepo: credRepo, instRepo: instRepo}
}

func (s *templateService) TenantStackTemplate() (*TemplateResponse, error) {
	var tree interface{}
	if err := json.Unmarshal(tenantStackTemplate, &tree); err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "模板解析失败", err)
	}

	coords := s.collectCoordinates()
	used := map[string]bool{}
	sanitized := sanitizeNode("", tree, coords, used)

	raw, err := json.Marshal(sanitized)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "模板序列化失败", err)
	}

	placeholders := make([]string, 0, len(used))
	for p := range used {
		placeholders = append(placeholders, p)
	}
	sort.Strings(placeholders)

	return &TemplateResponse{Template: raw, Placeholders: placeholders}, nil
}

// collectCoordinates 收集环境中已知的具体坐标值, 模板中任意出现处都替换
func (s *templateService) collectCoordinates() map[string]string {
	coords := map[string]string{}

	if c, err := s.credRepo.FindSelected(constants.CredentialTypeTarget); err == nil && c.ProjectID != "" {
		coords[c.ProjectID] = "{{PROJECT_ID}}"
	}
	if instances, err := s.instRepo.FindAll(); err == nil {
		for _, inst := range instances {
			if inst.Region != "" {
				coords[inst.Region] = "{{REGION}}"
			}
			if inst.DatabaseInstance != "" {
				coords[inst.DatabaseInstance] = "{{DB_INSTANCE}}"
			}
			if inst.DatabaseName != "" {
				coords[inst.DatabaseName] = "{{DB_NAME}}"
			}
		}
	}
	return coords
}

func sanitizeNode(key string, node interface{}, coords map[string]string, used map[string]bool) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, child := range v {
			out[k] = sanitizeNode(k, child, coords, used)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, child := range v {
			out[i] = sanitizeNode(key, child, coords, used)
		}
		return out
	case string:
		return sanitizeString(key, v, coords, used)
	default:
		return node
	}
}

func sanitizeString(key, value string, coords map[string]string, used map[string]bool) string {
	lowerKey := strings.ToLower(key)

	if placeholder, ok := coordinatePlaceholders[lowerKey]; ok {
		used[placeholder] = true
		return placeholder
	}

	// 具体坐标值无论出现在哪个字段里都替换
	for concrete, placeholder := range coords {
		if strings.Contains(value, concrete) {
			value = strings.ReplaceAll(value, concrete, placeholder)
			used[placeholder] = true
		}
	}

	if hasKeyword(lowerKey, urlKeywords) {
		return value
	}
	if hasKeyword(lowerKey, sensitiveKeywords) {
		placeholder := "REPLACE_ME_" + strings.ToUpper(key)
		used[placeholder] = true
		return placeholder
	}
	return value
}

func hasKeyword(key string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

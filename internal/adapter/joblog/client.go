package joblog

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgErrors "deploy-console/pkg/errors"
)

const (
	loggingEndpoint = "https://logging.googleapis.com/v2/entries:list"
	loggingScope    = "https://www.googleapis.com/auth/logging.read"
	defaultTokenURI = "https://oauth2.googleapis.com/token"
)

// client 基于服务账号的 Cloud Logging 检索实现
type client struct {
	httpClient *http.Client

	mu     sync.Mutex
	tokens map[string]*cachedToken // key: client_email
}

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// NewClient 创建日志检索客户端
func NewClient() Retriever {
	return &client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     make(map[string]*cachedToken),
	}
}

type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
	ProjectID   string `json:"project_id"`
}

func (c *client) FetchJobLogs(ctx context.Context, serviceAccount json.RawMessage, projectID, region, jobName, executionName string, limit int) ([]string, error) {
	var key serviceAccountKey
	if err := json.Unmarshal(serviceAccount, &key); err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeBadRequest, "解析服务账号失败", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, pkgErrors.New(pkgErrors.CodeBadRequest, "服务账号缺少 client_email 或 private_key")
	}

	token, err := c.accessToken(ctx, &key)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 200
	}
	filter := fmt.Sprintf(
		`resource.type="cloud_run_job" AND resource.labels.job_name=%q AND resource.labels.location=%q AND labels."run.googleapis.com/execution_name"=%q`,
		jobName, region, executionName)
	reqBody, err := json.Marshal(map[string]interface{}{
		"resourceNames": []string{"projects/" + projectID},
		"filter":        filter,
		"orderBy":       "timestamp asc",
		"pageSize":      limit,
	})
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "构造日志查询失败", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, loggingEndpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "构造日志查询失败", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeUpstreamError, "查询日志失败", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeUpstreamError, "读取日志响应失败", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, pkgErrors.Wrap(pkgErrors.CodeUpstreamError,
			fmt.Sprintf("日志服务返回状态 %d", resp.StatusCode), fmt.Errorf("%s", string(raw)))
	}

	var entries struct {
		Entries []struct {
			TextPayload string          `json:"textPayload"`
			JSONPayload json.RawMessage `json:"jsonPayload"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeUpstreamError, "解析日志响应失败", err)
	}

	lines := make([]string, 0, len(entries.Entries))
	for _, e := range entries.Entries {
		switch {
		case e.TextPayload != "":
			lines = append(lines, e.TextPayload)
		case len(e.JSONPayload) > 0:
			lines = append(lines, string(e.JSONPayload))
		}
	}
	return lines, nil
}

// accessToken 用服务账号签发 JWT 断言换取访问令牌, 带缓存
func (c *client) accessToken(ctx context.Context, key *serviceAccountKey) (string, error) {
	c.mu.Lock()
	if cached, ok := c.tokens[key.ClientEmail]; ok && time.Now().Before(cached.expiresAt.Add(-time.Minute)) {
		token := cached.accessToken
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	block, _ := pem.Decode([]byte(key.PrivateKey))
	if block == nil {
		return "", pkgErrors.New(pkgErrors.CodeBadRequest, "服务账号私钥格式错误")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return "", pkgErrors.Wrap(pkgErrors.CodeBadRequest, "解析服务账号私钥失败", err)
	}

	tokenURI := key.TokenURI
	if tokenURI == "" {
		tokenURI = defaultTokenURI
	}

	now := time.Now()
	assertion := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   key.ClientEmail,
		"scope": loggingScope,
		"aud":   tokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})
	signed, err := assertion.SignedString(parsed)
	if err != nil {
		return "", pkgErrors.Wrap(pkgErrors.CodeInternalError, "签发令牌断言失败", err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", signed)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", pkgErrors.Wrap(pkgErrors.CodeInternalError, "构造令牌请求失败", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", pkgErrors.Wrap(pkgErrors.CodeUpstreamError, "换取访问令牌失败", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", pkgErrors.Wrap(pkgErrors.CodeUpstreamError, "读取令牌响应失败", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", pkgErrors.Wrap(pkgErrors.CodeUpstreamError,
			fmt.Sprintf("令牌服务返回状态 %d", resp.StatusCode), fmt.Errorf("%s", string(raw)))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &tokenResp); err != nil {
		return "", pkgErrors.Wrap(pkgErrors.CodeUpstreamError, "解析令牌响应失败", err)
	}
	if tokenResp.AccessToken == "" {
		return "", pkgErrors.New(pkgErrors.CodeUpstreamError, "令牌响应缺少 access_token")
	}

	c.mu.Lock()
	c.tokens[key.ClientEmail] = &cachedToken{
		accessToken: tokenResp.AccessToken,
		expiresAt:   time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}
	c.mu.Unlock()
	return tokenResp.AccessToken, nil
}

package git

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PlatformType 平台类型
type PlatformType string

const (
	PlatformGitea  PlatformType = "gitea"
	PlatformGitLab PlatformType = "gitlab"
	PlatformGitHub PlatformType = "github"
)

// ErrFileNotFound 文件不存在(404是正常的"未找到", 不是错误)
var ErrFileNotFound = errors.New("file not found")

// ClientConfig 客户端配置
type ClientConfig struct {
	BaseURL      string       // 平台基础URL(github可留空)
	Token        string       // 访问Token
	PlatformType PlatformType // 平台类型
}

// Client Git平台客户端
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// BranchInfo 分支信息
type BranchInfo struct {
	Name      string `json:"name"`
	CommitSha string `json:"commit_sha"`
}

// NewClient 创建Git平台客户端
func NewClient(config *ClientConfig) (*Client, error) {
	if config.PlatformType == "" {
		return nil, fmt.Errorf("PlatformType不能为空")
	}
	if config.PlatformType != PlatformGitHub && config.BaseURL == "" {
		return nil, fmt.Errorf("BaseURL不能为空")
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// ParseRepoURL 解析仓库地址为 owner/repo
//
// 支持 https://host/owner/repo(.git)、git@host:owner/repo.git 与裸 owner/repo。
// 解析失败返回 ok=false, 不报错。
func ParseRepoURL(repoURL string) (owner, repo string, ok bool) {
	s := strings.TrimSpace(repoURL)
	if s == "" {
		return "", "", false
	}

	if strings.HasPrefix(s, "git@") {
		// git@host:owner/repo.git
		if idx := strings.Index(s, ":"); idx > 0 {
			s = s[idx+1:]
		}
	} else if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", "", false
		}
		s = strings.TrimPrefix(u.Path, "/")
	}

	s = strings.TrimSuffix(strings.Trim(s, "/"), ".git")
	parts := strings.Split(s, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	// host/owner/repo 形式取最后两段
	return parts[len(parts)-2], parts[len(parts)-1], true
}

// TestConnection 测试连接
func (c *Client) TestConnection(ctx context.Context) error {
	var apiURL string
	switch c.config.PlatformType {
	case PlatformGitea:
		apiURL = fmt.Sprintf("%s/api/v1/user", strings.TrimSuffix(c.config.BaseURL, "/"))
	case PlatformGitLab:
		apiURL = fmt.Sprintf("%s/api/v4/user", strings.TrimSuffix(c.config.BaseURL, "/"))
	case PlatformGitHub:
		apiURL = c.githubAPIBase() + "/user"
	default:
		return fmt.Errorf("不支持的平台类型: %s", c.config.PlatformType)
	}

	body, err := c.doGet(ctx, apiURL)
	if err != nil {
		return err
	}
	_ = body
	return nil
}

// GetFileContent 获取指定分支下的文件内容
//
// 文件不存在返回 ErrFileNotFound; 其他非2xx响应返回错误。
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error) {
	var apiURL string
	base := strings.TrimSuffix(c.config.BaseURL, "/")

	switch c.config.PlatformType {
	case PlatformGitea:
		apiURL = fmt.Sprintf("%s/api/v1/repos/%s/%s/contents/%s?ref=%s",
			base, owner, repo, url.PathEscape(path), url.QueryEscape(ref))
	case PlatformGitLab:
		project := url.PathEscape(owner + "/" + repo)
		apiURL = fmt.Sprintf("%s/api/v4/projects/%s/repository/files/%s?ref=%s",
			base, project, url.PathEscape(path), url.QueryEscape(ref))
	case PlatformGitHub:
		apiURL = fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
			c.githubAPIBase(), owner, repo, url.PathEscape(path), url.QueryEscape(ref))
	default:
		return "", fmt.Errorf("不支持的平台类型: %s", c.config.PlatformType)
	}

	body, err := c.doGet(ctx, apiURL)
	if err != nil {
		return "", err
	}

	var payload struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("解析文件响应失败: %w", err)
	}

	if payload.Encoding != "" && payload.Encoding != "base64" {
		return "", fmt.Errorf("不支持的内容编码: %s", payload.Encoding)
	}

	// contents API 的 base64 内容带换行
	raw := strings.ReplaceAll(payload.Content, "\n", "")
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("解码文件内容失败: %w", err)
	}
	return string(decoded), nil
}

// ListBranches 获取仓库分支列表(含 commit sha)
func (c *Client) ListBranches(ctx context.Context, owner, repo string) ([]BranchInfo, error) {
	var apiURL string
	base := strings.TrimSuffix(c.config.BaseURL, "/")

	switch c.config.PlatformType {
	case PlatformGitea:
		apiURL = fmt.Sprintf("%s/api/v1/repos/%s/%s/branches?limit=100", base, owner, repo)
	case PlatformGitLab:
		project := url.PathEscape(owner + "/" + repo)
		apiURL = fmt.Sprintf("%s/api/v4/projects/%s/repository/branches?per_page=100", base, project)
	case PlatformGitHub:
		apiURL = fmt.Sprintf("%s/repos/%s/%s/branches?per_page=100", c.githubAPIBase(), owner, repo)
	default:
		return nil, fmt.Errorf("不支持的平台类型: %s", c.config.PlatformType)
	}

	body, err := c.doGet(ctx, apiURL)
	if err != nil {
		return nil, err
	}

	switch c.config.PlatformType {
	case PlatformGitLab:
		var branches []struct {
			Name   string `json:"name"`
			Commit struct {
				ID string `json:"id"`
			} `json:"commit"`
		}
		if err := json.Unmarshal(body, &branches); err != nil {
			return nil, fmt.Errorf("解析分支列表失败: %w", err)
		}
		out := make([]BranchInfo, len(branches))
		for i, b := range branches {
			out[i] = BranchInfo{Name: b.Name, CommitSha: b.Commit.ID}
		}
		return out, nil

	default:
		// github 与 gitea 均为 commit.sha / commit.id 兼容结构
		var branches []struct {
			Name   string `json:"name"`
			Commit struct {
				Sha string `json:"sha"`
				ID  string `json:"id"`
			} `json:"commit"`
		}
		if err := json.Unmarshal(body, &branches); err != nil {
			return nil, fmt.Errorf("解析分支列表失败: %w", err)
		}
		out := make([]BranchInfo, len(branches))
		for i, b := range branches {
			sha := b.Commit.Sha
			if sha == "" {
				sha = b.Commit.ID
			}
			out[i] = BranchInfo{Name: b.Name, CommitSha: sha}
		}
		return out, nil
	}
}

// doGet 发起GET请求, 404 返回 ErrFileNotFound
func (c *Client) doGet(ctx context.Context, apiURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}

	c.setAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrFileNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("请求失败 (状态码: %d): %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}

// githubAPIBase github 支持自定义 BaseURL(企业版), 默认公网API
func (c *Client) githubAPIBase() string {
	if c.config.BaseURL != "" {
		return strings.TrimSuffix(c.config.BaseURL, "/")
	}
	return "https://api.github.com"
}

// setAuthHeader 设置认证头
func (c *Client) setAuthHeader(req *http.Request) {
	if c.config.Token == "" {
		return
	}

	switch c.config.PlatformType {
	case PlatformGitea:
		req.Header.Set("Authorization", fmt.Sprintf("token %s", c.config.Token))
	case PlatformGitLab:
		req.Header.Set("PRIVATE-TOKEN", c.config.Token)
	case PlatformGitHub:
		req.Header.Set("Authorization", fmt.Sprintf("token %s", c.config.Token))
	}
}

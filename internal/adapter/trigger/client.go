package trigger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"deploy-console/internal/pkg/logger"
	pkgErrors "deploy-console/pkg/errors"
)

// httpClient 基于 HTTP 的触发服务客户端
type httpClient struct {
	baseURL string
	client  *http.Client
}

// NewClient 创建触发服务客户端
//
// timeout 为空或非法时默认 10 分钟, 部署触发是长请求。
func NewClient(baseURL, timeout string) Client {
	d, err := time.ParseDuration(timeout)
	if err != nil || d <= 0 {
		d = 10 * time.Minute
	}
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: d},
	}
}

func (c *httpClient) Trigger(ctx context.Context, req *TriggerRequest) (*TriggerResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	files := []struct {
		field, name string
		data        json.RawMessage
	}{
		{"userrequirements", "userrequirements.json", req.UserRequirements},
		{"serviceaccount", "serviceaccount.json", req.ServiceAccount},
		{"customer_serviceaccount", "customer_serviceaccount.json", req.CustomerServiceAccount},
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		if err != nil {
			return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "构造触发请求失败", err)
		}
		if _, err := part.Write(f.data); err != nil {
			return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "构造触发请求失败", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "构造触发请求失败", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/trigger", body)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "构造触发请求失败", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeUpstreamError, "调用触发服务失败", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeUpstreamError, "读取触发服务响应失败", err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn(fmt.Sprintf("触发服务返回异常状态 %d: %s", resp.StatusCode, truncate(string(raw), 512)))
		return nil, pkgErrors.Wrap(pkgErrors.CodeUpstreamError,
			fmt.Sprintf("触发服务返回状态 %d", resp.StatusCode), fmt.Errorf("%s", truncate(string(raw), 512)))
	}

	result := &TriggerResponse{Raw: string(raw)}
	if err := json.Unmarshal(raw, result); err != nil {
		// 响应体非标准结构时保留原文, 由调用方落库
		logger.Warn("触发服务响应解析失败: " + err.Error())
	}
	return result, nil
}

func (c *httpClient) JobStatus(ctx context.Context, projectID, region, jobName, executionName string) (*JobStatusResult, error) {
	path := fmt.Sprintf("/job_status/%s/%s/%s/%s",
		url.PathEscape(projectID), url.PathEscape(region),
		url.PathEscape(jobName), url.PathEscape(executionName))

	raw, err := c.doGet(ctx, path)
	if err != nil {
		return nil, err
	}
	var result JobStatusResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeUpstreamError, "解析Job状态响应失败", err)
	}
	return &result, nil
}

func (c *httpClient) Prime(ctx context.Context, serviceAccount json.RawMessage) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("serviceaccount", "serviceaccount.json")
	if err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeInternalError, "构造预置请求失败", err)
	}
	if _, err := part.Write(serviceAccount); err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeInternalError, "构造预置请求失败", err)
	}
	if err := writer.Close(); err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeInternalError, "构造预置请求失败", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prime-customer", body)
	if err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeInternalError, "构造预置请求失败", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeUpstreamError, "调用预置接口失败", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return pkgErrors.Wrap(pkgErrors.CodeUpstreamError,
			fmt.Sprintf("预置接口返回状态 %d", resp.StatusCode), fmt.Errorf("%s", truncate(string(raw), 512)))
	}
	return nil
}

func (c *httpClient) PrimeStatus(ctx context.Context, credential json.RawMessage, projectID string) (*PrimeStatusResult, error) {
	params := url.Values{}
	if len(credential) > 0 {
		params.Set("credential", base64.StdEncoding.EncodeToString(credential))
	}
	if projectID != "" {
		params.Set("project_id", projectID)
	}

	raw, err := c.doGet(ctx, "/prime-status?"+params.Encode())
	if err != nil {
		return nil, err
	}
	var result PrimeStatusResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeUpstreamError, "解析预置状态响应失败", err)
	}
	return &result, nil
}

func (c *httpClient) doGet(ctx context.Context, path string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "构造请求失败", err)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeUpstreamError, "调用触发服务失败", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeUpstreamError, "读取触发服务响应失败", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, pkgErrors.Wrap(pkgErrors.CodeUpstreamError,
			fmt.Sprintf("触发服务返回状态 %d", resp.StatusCode), fmt.Errorf("%s", truncate(string(raw), 512)))
	}
	return raw, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"deploy-console/internal/dto"
	"deploy-console/internal/service"
	"deploy-console/pkg/responses"
	"deploy-console/pkg/utils"
)

type CredentialHandler struct {
	svc service.CredentialService
}

func NewCredentialHandler(svc service.CredentialService) *CredentialHandler {
	return &CredentialHandler{svc: svc}
}

// Store 凭据库视图
// @Summary 某一类型的凭据库
// @Tags Credential
// @Produce json
// @Param type path string true "source/target"
// @Success 200 {object} responses.Response{data=dto.CredentialStoreResponse}
// @Router /api/v1/credential-store/{type} [get]
func (h *CredentialHandler) Store(c *gin.Context) {
	resp, err := h.svc.Store(c.Param("type"))
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, resp)
}

// Add 新增凭据
// @Summary 新增凭据
// @Tags Credential
// @Accept json
// @Produce json
// @Param type path string true "source/target"
// @Param request body dto.AddCredentialRequest true "新增凭据请求"
// @Success 200 {object} responses.Response{data=dto.CredentialEntryResponse}
// @Router /api/v1/credential-store/{type}/entries [post]
func (h *CredentialHandler) Add(c *gin.Context) {
	var req dto.AddCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}
	entry, err := h.svc.Add(c.Param("type"), &req)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, entry)
}

// Select 激活凭据
// @Summary 激活凭据(id为空清除选择)
// @Tags Credential
// @Accept json
// @Produce json
// @Param type path string true "source/target"
// @Param request body dto.SelectCredentialRequest true "激活请求"
// @Success 200 {object} responses.Response
// @Router /api/v1/credential-store/{type}/selection [put]
func (h *CredentialHandler) Select(c *gin.Context) {
	var req dto.SelectCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}
	if err := h.svc.Select(c.Param("type"), req.ID); err != nil {
		responses.Error(c, err)
		return
	}
	responses.SuccessWithMessage(c, "凭据选择已更新", nil)
}

// Delete 删除凭据
// @Summary 删除凭据
// @Tags Credential
// @Produce json
// @Param type path string true "source/target"
// @Param id path int true "凭据ID"
// @Success 200 {object} responses.Response
// @Router /api/v1/credential-store/{type}/entries/{id} [delete]
func (h *CredentialHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "无效的 ID", err.Error())
		return
	}
	if err := h.svc.Delete(c.Param("type"), id); err != nil {
		responses.Error(c, err)
		return
	}
	responses.SuccessWithMessage(c, "凭据已删除", nil)
}

// Verify 验证凭据
// @Summary 验证凭据
// @Tags Credential
// @Produce json
// @Param type path string true "source/target"
// @Param id path int true "凭据ID"
// @Success 200 {object} responses.Response{data=dto.VerifyCredentialResponse}
// @Router /api/v1/credential-store/{type}/entries/{id}/verify [post]
func (h *CredentialHandler) Verify(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "无效的 ID", err.Error())
		return
	}
	resp, err := h.svc.Verify(c.Request.Context(), c.Param("type"), id)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, resp)
}

// MarkPrimed 标记prime完成
// @Summary 标记凭据prime完成
// @Tags Credential
// @Accept json
// @Produce json
// @Param type path string true "source/target"
// @Param id path int true "凭据ID"
// @Param request body dto.MarkPrimedRequest false "prime结果"
// @Success 200 {object} responses.Response{data=dto.CredentialEntryResponse}
// @Router /api/v1/credential-store/{type}/entries/{id}/mark-primed [post]
func (h *CredentialHandler) MarkPrimed(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "无效的 ID", err.Error())
		return
	}
	var req dto.MarkPrimedRequest
	_ = c.ShouldBindJSON(&req)

	entry, err := h.svc.MarkPrimed(c.Param("type"), id, req.PrimeResult)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, entry)
}

// Prime 触发目标项目预置
// @Summary 用当前激活的target凭据发起prime
// @Tags Credential
// @Produce json
// @Success 200 {object} responses.Response
// @Router /api/v1/prime [post]
func (h *CredentialHandler) Prime(c *gin.Context) {
	if err := h.svc.Prime(c.Request.Context()); err != nil {
		responses.Error(c, err)
		return
	}
	responses.SuccessWithMessage(c, "prime已触发", nil)
}

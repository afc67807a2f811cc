package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"deploy-console/internal/dto"
	"deploy-console/internal/service"
	"deploy-console/pkg/responses"
	"deploy-console/pkg/utils"
)

type InstanceHandler struct {
	svc      service.InstanceService
	resolver service.EnvResolverService
}

func NewInstanceHandler(svc service.InstanceService, resolver service.EnvResolverService) *InstanceHandler {
	return &InstanceHandler{svc: svc, resolver: resolver}
}

// Add 新增部署实例
// @Summary 新增部署实例
// @Tags Instance
// @Accept json
// @Produce json
// @Param request body dto.AddInstanceRequest true "新增实例请求"
// @Success 200 {object} responses.Response{data=model.DeployInstance}
// @Router /api/v1/instance [post]
func (h *InstanceHandler) Add(c *gin.Context) {
	var req dto.AddInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}
	inst, err := h.svc.Add(&req)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, inst)
}

// List 实例列表
// @Summary 部署实例列表
// @Tags Instance
// @Produce json
// @Success 200 {object} responses.Response{data=[]model.DeployInstance}
// @Router /api/v1/instances [get]
func (h *InstanceHandler) List(c *gin.Context) {
	list, err := h.svc.List()
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, list)
}

// Get 实例详情
// @Summary 实例详情
// @Tags Instance
// @Produce json
// @Param id query string true "实例ID"
// @Success 200 {object} responses.Response{data=model.DeployInstance}
// @Router /api/v1/instance [get]
func (h *InstanceHandler) Get(c *gin.Context) {
	instanceID := c.Query("id")
	if instanceID == "" {
		responses.ErrorWithCode(c, http.StatusBadRequest, "缺少实例ID")
		return
	}
	inst, err := h.svc.Get(instanceID)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, inst)
}

// Update 更新部署参数
// @Summary 更新部署参数
// @Tags Instance
// @Accept json
// @Produce json
// @Param request body dto.UpdateInstanceRequest true "更新请求"
// @Success 200 {object} responses.Response{data=model.DeployInstance}
// @Router /api/v1/instance [put]
func (h *InstanceHandler) Update(c *gin.Context) {
	var req dto.UpdateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}
	inst, err := h.svc.Update(&req)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, inst)
}

// Delete 删除实例
// @Summary 删除实例(同时清理轮询任务)
// @Tags Instance
// @Accept json
// @Produce json
// @Param request body dto.DeleteInstanceRequest true "删除请求"
// @Success 200 {object} responses.Response
// @Router /api/v1/instance/delete [post]
func (h *InstanceHandler) Delete(c *gin.Context) {
	var req dto.DeleteInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}
	if err := h.svc.Delete(req.InstanceID); err != nil {
		responses.Error(c, err)
		return
	}
	responses.SuccessWithMessage(c, "实例已删除", nil)
}

// ToggleDatabase 开关数据库连接
// @Summary 开关数据库连接(关闭会清空数据库字段)
// @Tags Instance
// @Accept json
// @Produce json
// @Param request body dto.ToggleDatabaseRequest true "开关请求"
// @Success 200 {object} responses.Response{data=model.DeployInstance}
// @Router /api/v1/instance/database [post]
func (h *InstanceHandler) ToggleDatabase(c *gin.Context) {
	var req dto.ToggleDatabaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}
	inst, err := h.svc.ToggleDatabase(req.InstanceID, *req.Enabled)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, inst)
}

// EnvVar 环境变量增删改
// @Summary 环境变量增删改
// @Tags Instance
// @Accept json
// @Produce json
// @Param request body dto.EnvVarRequest true "环境变量操作"
// @Success 200 {object} responses.Response{data=model.DeployInstance}
// @Router /api/v1/instance/env [post]
func (h *InstanceHandler) EnvVar(c *gin.Context) {
	var req dto.EnvVarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}
	inst, err := h.svc.EnvVarOp(&req)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, inst)
}

// SelectEnvSource 切换环境变量来源
// @Summary 切换环境变量来源
// @Tags Instance
// @Accept json
// @Produce json
// @Param request body dto.SelectEnvSourceRequest true "切换请求"
// @Success 200 {object} responses.Response{data=model.DeployInstance}
// @Router /api/v1/instance/env/source [post]
func (h *InstanceHandler) SelectEnvSource(c *gin.Context) {
	var req dto.SelectEnvSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}
	inst, err := h.svc.SelectEnvSource(req.InstanceID, req.Source)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, inst)
}

// ResolveEnv 解析环境变量基线
// @Summary 拉取仓库 .env/.env.example 并刷新可用来源
// @Tags Instance
// @Accept json
// @Produce json
// @Param request body dto.ResolveEnvRequest true "解析请求"
// @Success 200 {object} responses.Response{data=dto.ResolveEnvResponse}
// @Router /api/v1/instance/env/resolve [post]
func (h *InstanceHandler) ResolveEnv(c *gin.Context) {
	var req dto.ResolveEnvRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}
	resp, err := h.resolver.ResolveForInstance(c.Request.Context(), req.InstanceID)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, resp)
}

// Branches 仓库分支列表
// @Summary 实例仓库的分支列表(每实例只远程拉取一次)
// @Tags Instance
// @Produce json
// @Param id query string true "实例ID"
// @Success 200 {object} responses.Response{data=[]dto.BranchInfoResponse}
// @Router /api/v1/repo/branches [get]
func (h *InstanceHandler) Branches(c *gin.Context) {
	instanceID := c.Query("id")
	if instanceID == "" {
		responses.ErrorWithCode(c, http.StatusBadRequest, "缺少实例ID")
		return
	}
	list, err := h.resolver.Branches(c.Request.Context(), instanceID)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, list)
}

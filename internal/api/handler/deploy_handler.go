package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"deploy-console/internal/core"
	"deploy-console/internal/dto"
	"deploy-console/internal/service"
	"deploy-console/pkg/responses"
	"deploy-console/pkg/utils"
)

type DeployHandler struct {
	engine *core.Engine
	svc    service.InstanceService
}

func NewDeployHandler(engine *core.Engine, svc service.InstanceService) *DeployHandler {
	return &DeployHandler{engine: engine, svc: svc}
}

// Submit 提交部署
// @Summary 提交选中实例部署
// @Tags Deploy
// @Accept json
// @Produce json
// @Param request body dto.SubmitDeployRequest true "提交请求"
// @Success 200 {object} responses.Response{data=core.SubmitOutcome}
// @Router /api/v1/deploy [post]
func (h *DeployHandler) Submit(c *gin.Context) {
	var req dto.SubmitDeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}
	outcome, err := h.engine.Submit(c.Request.Context(), req.InstanceIDs, req.Confirm)
	if err != nil {
		responses.Error(c, err)
		return
	}
	if outcome.NeedsConfirm {
		responses.SuccessWithMessage(c, "存在未覆盖的示例默认值, 请确认后重新提交", outcome)
		return
	}
	responses.Success(c, outcome)
}

// DeployWaves 按波次顺序部署
// @Summary 按波次升序部署全部实例(后台执行)
// @Tags Deploy
// @Produce json
// @Success 200 {object} responses.Response{data=core.WaveStatus}
// @Router /api/v1/deploy/waves [post]
func (h *DeployHandler) DeployWaves(c *gin.Context) {
	if err := h.engine.StartWaveDeployment(); err != nil {
		responses.Error(c, err)
		return
	}
	responses.SuccessWithMessage(c, "波次部署已启动", h.engine.WaveStatusNow())
}

// Status 部署状态总览
// @Summary 全部实例的部署状态与波次进度
// @Tags Deploy
// @Produce json
// @Success 200 {object} responses.Response
// @Router /api/v1/deploy/status [get]
func (h *DeployHandler) Status(c *gin.Context) {
	list, err := h.svc.List()
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, gin.H{
		"instances": list,
		"wave_run":  h.engine.WaveStatusNow(),
	})
}

// ManualPoll 手动轮询
// @Summary 手动轮询一个实例的Job状态
// @Tags Deploy
// @Accept json
// @Produce json
// @Param request body dto.ManualPollRequest true "轮询请求"
// @Success 200 {object} responses.Response{data=model.DeployInstance}
// @Router /api/v1/deploy/poll [post]
func (h *DeployHandler) ManualPoll(c *gin.Context) {
	var req dto.ManualPollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}
	inst, err := h.engine.ManualPoll(c.Request.Context(), req.InstanceID)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, inst)
}

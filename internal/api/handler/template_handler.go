package handler

import (
	"github.com/gin-gonic/gin"

	"deploy-console/internal/service"
	"deploy-console/pkg/responses"
)

type TemplateHandler struct {
	svc service.TemplateService
}

func NewTemplateHandler(svc service.TemplateService) *TemplateHandler {
	return &TemplateHandler{svc: svc}
}

// TenantStack 租户栈模板
// @Summary 脱敏后的标准租户栈模板
// @Tags Template
// @Produce json
// @Success 200 {object} responses.Response{data=service.TemplateResponse}
// @Router /api/v1/tenant-stack/template [get]
func (h *TemplateHandler) TenantStack(c *gin.Context) {
	resp, err := h.svc.TenantStackTemplate()
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, resp)
}

package handler

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"zeur-core/internal/handler/response"
	"zeur-core/internal/txflow"
)

const serviceName = "zeur-server"

type HealthHandler struct {
	version string
	account func() common.Address
	flows   []*txflow.Orchestrator
}

func NewHealthHandler(version string, account func() common.Address, flows ...*txflow.Orchestrator) *HealthHandler {
	return &HealthHandler{version: version, account: account, flows: flows}
}

type healthResponse struct {
	Status  string   `json:"status"`
	Service string   `json:"service"`
	Version string   `json:"version"`
	Wallet  string   `json:"wallet"`         // "read-only" 或钱包地址
	Busy    []string `json:"busy,omitempty"` // 正在处理中的流程
}

// HealthCheck godoc
// @Summary 服务健康检查
// @Description 返回服务状态、钱包模式与正在处理的交易流程
// @Tags system
// @Produce json
// @Success 200 {object} response.Response
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	resp := healthResponse{Status: "UP", Service: serviceName, Version: h.version, Wallet: "read-only"}
	if h.account != nil {
		if account := h.account(); account != (common.Address{}) {
			resp.Wallet = account.Hex()
		}
	}
	for _, f := range h.flows {
		if f.State().IsProcessing {
			resp.Busy = append(resp.Busy, f.Name())
		}
	}
	response.Success(c, resp)
}

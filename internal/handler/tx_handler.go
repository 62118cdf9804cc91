package handler

import (
	"github.com/gin-gonic/gin"

	"zeur-core/internal/handler/response"
	"zeur-core/internal/txflow"
	"zeur-core/internal/view"
	"zeur-core/pkg/errno"
)

type txResponse struct {
	Flow  string        `json:"flow"`
	State txflow.State  `json:"state"`
	Last  *txflow.State `json:"last,omitempty"`
	Panel *view.Panel   `json:"panel,omitempty"`
}

// TxHandler 按流程名查询 / 重置交易状态
type TxHandler struct {
	flows map[string]*txflow.Orchestrator
}

func NewTxHandler(flows ...*txflow.Orchestrator) *TxHandler {
	h := &TxHandler{flows: make(map[string]*txflow.Orchestrator, len(flows))}
	for _, f := range flows {
		h.flows[f.Name()] = f
	}
	return h
}

// Status 当前状态与最近一次终态
// @Summary 交易状态
// @Tags Transaction
// @Produce json
// @Param flow path string true "supply | withdraw | borrow | repay | liquidate"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/{flow} [get]
func (h *TxHandler) Status(c *gin.Context) {
	h.render(c, c.Param("flow"))
}

// Reset 回到 idle；已广播的交易不会被撤回
// @Summary 重置交易流程
// @Tags Transaction
// @Produce json
// @Param flow path string true "supply | withdraw | borrow | repay | liquidate"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/{flow}/reset [post]
func (h *TxHandler) Reset(c *gin.Context) {
	f, ok := h.flows[c.Param("flow")]
	if !ok {
		response.Error(c, errno.ErrUnknownFlow)
		return
	}
	f.Reset()
	h.render(c, f.Name())
}

func (h *TxHandler) render(c *gin.Context, name string) {
	f, ok := h.flows[name]
	if !ok {
		response.Error(c, errno.ErrUnknownFlow)
		return
	}
	resp := txResponse{Flow: name, State: f.State()}
	if last, ok := f.Last(); ok {
		resp.Last = &last
	}
	if panel, err := view.Render(view.TransactionCard(name, resp.State)); err == nil {
		resp.Panel = &panel
	}
	response.Success(c, resp)
}

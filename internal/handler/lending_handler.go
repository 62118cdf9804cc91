package handler

import (
	"context"
	"time"

	"github.com/chebyrash/promise"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"zeur-core/internal/balance"
	"zeur-core/internal/handler/request"
	"zeur-core/internal/handler/response"
	"zeur-core/internal/lending"
	"zeur-core/internal/txflow"
	"zeur-core/internal/view"
	"zeur-core/pkg/errno"
	"zeur-core/pkg/validator"
)

// LendingHandler 市场查询与 supply / borrow 操作
type LendingHandler struct {
	market   *lending.Market
	balances *balance.Oracle
	supply   *lending.SupplyService
	borrow   *lending.BorrowService
	flows    *TxHandler
	account  func() common.Address
	wait     time.Duration
}

func NewLendingHandler(market *lending.Market, balances *balance.Oracle, supply *lending.SupplyService, borrow *lending.BorrowService, flows *TxHandler, account func() common.Address, wait time.Duration) *LendingHandler {
	if wait <= 0 {
		wait = 5 * time.Minute
	}
	return &LendingHandler{
		market:   market,
		balances: balances,
		supply:   supply,
		borrow:   borrow,
		flows:    flows,
		account:  account,
		wait:     wait,
	}
}

// Assets 借贷市场 (债务资产) 列表
// @Summary 借贷市场列表
// @Tags Market
// @Produce json
// @Param view query string false "panel 返回渲染后的卡片"
// @Success 200 {object} response.Response
// @Router /api/v1/assets [get]
func (h *LendingHandler) Assets(c *gin.Context) {
	assets, err := h.market.Assets(c.Request.Context())
	if err != nil {
		response.Error(c, toErrno(err))
		return
	}
	cards := make([]view.Card, 0, len(assets))
	for _, a := range assets {
		cards = append(cards, view.MarketCard(a))
	}
	respond(c, assets, cards)
}

// Collaterals 抵押资产列表
// @Summary 抵押资产列表
// @Tags Market
// @Produce json
// @Param view query string false "panel 返回渲染后的卡片"
// @Success 200 {object} response.Response
// @Router /api/v1/collaterals [get]
func (h *LendingHandler) Collaterals(c *gin.Context) {
	collaterals, err := h.market.Collaterals(c.Request.Context())
	if err != nil {
		response.Error(c, toErrno(err))
		return
	}
	cards := make([]view.Card, 0, len(collaterals))
	for _, a := range collaterals {
		cards = append(cards, view.CollateralCard(a))
	}
	respond(c, collaterals, cards)
}

// Position 用户仓位，默认为当前钱包
// @Summary 用户仓位
// @Tags Market
// @Produce json
// @Param account query string false "用户地址"
// @Param view query string false "panel 返回渲染后的卡片"
// @Success 200 {object} response.Response
// @Router /api/v1/positions [get]
func (h *LendingHandler) Position(c *gin.Context) {
	account, ok := h.accountParam(c, c.Query("account"))
	if !ok {
		return
	}
	pos, err := h.market.Position(c.Request.Context(), account)
	if err != nil {
		response.Error(c, toErrno(err))
		return
	}
	respond(c, pos, []view.Card{view.PositionCard(pos)})
}

// Balance 当前钱包某资产的余额；原生币资产读取原生余额
// @Summary 钱包余额
// @Tags Market
// @Produce json
// @Param asset path string true "资产地址"
// @Success 200 {object} response.Response
// @Router /api/v1/balances/{asset} [get]
func (h *LendingHandler) Balance(c *gin.Context) {
	raw := c.Param("asset")
	if !common.IsHexAddress(raw) {
		response.Error(c, errno.ErrBind.WithMessage("asset must be a hex address"))
		return
	}
	account, ok := h.accountParam(c, "")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	asset := common.HexToAddress(raw)
	data, meta, err := h.market.Asset(ctx, asset)
	if err != nil {
		response.Error(c, toErrno(err))
		return
	}
	token := asset
	if meta.Native {
		token = balance.NativeToken
	}
	b, err := h.balances.GetBalance(ctx, account, token, data.Decimals)
	if err != nil {
		response.Error(c, errno.ErrDataUnavailable)
		return
	}
	respond(c, gin.H{"symbol": meta.Symbol, "balance": b}, []view.Card{view.BalanceCard(meta.Symbol, b)})
}

// Refetch 丢弃缓存并重新读取资产与用户数据
// @Summary 刷新市场数据
// @Tags Market
// @Accept json
// @Produce json
// @Param request body request.RefetchRequest false "Refetch Request"
// @Success 200 {object} response.Response
// @Router /api/v1/refetch [post]
func (h *LendingHandler) Refetch(c *gin.Context) {
	var req request.RefetchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
			return
		}
	}
	account := h.account()
	if req.Account != "" {
		account = common.HexToAddress(req.Account)
	}
	if err := h.market.Refetch(c.Request.Context(), account); err != nil {
		response.Error(c, toErrno(err))
		return
	}
	response.Success(c, gin.H{"refetched": true})
}

// Supply 存入资产
// @Summary 存入
// @Description ERC20 资产先检查授权，不足时先发起 approve
// @Tags Transaction
// @Accept json
// @Produce json
// @Param request body request.AmountRequest true "Supply Request"
// @Success 200 {object} response.Response
// @Router /api/v1/supply [post]
func (h *LendingHandler) Supply(c *gin.Context) {
	h.amountOp(c, lending.OpSupply, h.supply.Supply)
}

// Withdraw 取出资产
// @Summary 取出
// @Tags Transaction
// @Accept json
// @Produce json
// @Param request body request.AmountRequest true "Withdraw Request"
// @Success 200 {object} response.Response
// @Router /api/v1/withdraw [post]
func (h *LendingHandler) Withdraw(c *gin.Context) {
	h.amountOp(c, lending.OpWithdraw, h.supply.Withdraw)
}

// Borrow 借出 EUR 稳定币
// @Summary 借款
// @Tags Transaction
// @Accept json
// @Produce json
// @Param request body request.AmountRequest true "Borrow Request"
// @Success 200 {object} response.Response
// @Router /api/v1/borrow [post]
func (h *LendingHandler) Borrow(c *gin.Context) {
	h.amountOp(c, lending.OpBorrow, h.borrow.Borrow)
}

// Repay 还款
// @Summary 还款
// @Tags Transaction
// @Accept json
// @Produce json
// @Param request body request.AmountRequest true "Repay Request"
// @Success 200 {object} response.Response
// @Router /api/v1/repay [post]
func (h *LendingHandler) Repay(c *gin.Context) {
	h.amountOp(c, lending.OpRepay, h.borrow.Repay)
}

// Liquidate 清算健康因子低于 1 的仓位
// @Summary 清算
// @Tags Transaction
// @Accept json
// @Produce json
// @Param request body request.LiquidateRequest true "Liquidate Request"
// @Success 200 {object} response.Response
// @Router /api/v1/liquidate [post]
func (h *LendingHandler) Liquidate(c *gin.Context) {
	var req request.LiquidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}
	p, err := h.borrow.Liquidate(c.Request.Context(),
		common.HexToAddress(req.Borrower),
		common.HexToAddress(req.Collateral),
		common.HexToAddress(req.Debt),
		req.Amount)
	h.started(c, lending.OpLiquidate, p, err, req.Wait)
}

type amountFunc func(ctx context.Context, asset common.Address, amount string) (*promise.Promise[txflow.State], error)

func (h *LendingHandler) amountOp(c *gin.Context, op string, fn amountFunc) {
	// 1. Bind & Validate
	var req request.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}

	// 2. 校验金额并启动流程
	p, err := fn(c.Request.Context(), common.HexToAddress(req.Asset), req.Amount)
	h.started(c, op, p, err, req.Wait)
}

// started wait 为 false 时立即返回当前状态；否则等待终态，超时返回当时的状态
func (h *LendingHandler) started(c *gin.Context, op string, p *promise.Promise[txflow.State], err error, wait bool) {
	if err != nil {
		response.Error(c, toErrno(err))
		return
	}
	if !wait {
		h.flows.render(c, op)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.wait)
	defer cancel()
	final, err := p.Await(ctx)
	if err != nil {
		h.flows.render(c, op)
		return
	}
	response.Success(c, txResponse{Flow: op, State: *final})
}

func (h *LendingHandler) accountParam(c *gin.Context, raw string) (common.Address, bool) {
	if raw == "" {
		account := h.account()
		if account == (common.Address{}) {
			response.Error(c, errno.ErrNoWallet)
			return account, false
		}
		return account, true
	}
	if !common.IsHexAddress(raw) {
		response.Error(c, errno.ErrBind.WithMessage("account must be a hex address"))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// respond ?view=panel 时返回渲染后的卡片
func respond(c *gin.Context, data interface{}, cards []view.Card) {
	if c.Query("view") != "panel" {
		response.Success(c, data)
		return
	}
	panels, err := view.RenderAll(cards)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, panels)
}

package request

// AmountRequest supply / withdraw / borrow / repay 共用
// Amount 不做 binding 校验，交给 lending 给出具体提示
type AmountRequest struct {
	Asset  string `json:"asset" binding:"required,eth_addr"`
	Amount string `json:"amount"`
	Wait   bool   `json:"wait"` // 为 true 时等待终态再返回
}

// LiquidateRequest 清算 borrower 的仓位
type LiquidateRequest struct {
	Borrower   string `json:"borrower" binding:"required,eth_addr"`
	Collateral string `json:"collateral" binding:"required,eth_addr"`
	Debt       string `json:"debt" binding:"required,eth_addr"`
	Amount     string `json:"amount"`
	Wait       bool   `json:"wait"`
}

// RefetchRequest account 为空时刷新当前钱包
type RefetchRequest struct {
	Account string `json:"account" binding:"omitempty,eth_addr"`
}

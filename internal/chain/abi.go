package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Pool 合约: 写操作 + 具名 revert 错误
const PoolABIJSON = `[
	{"name":"supply","type":"function","stateMutability":"payable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"from","type":"address"}],"outputs":[]},
	{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"}],"outputs":[]},
	{"name":"borrow","type":"function","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"}],"outputs":[]},
	{"name":"repay","type":"function","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"from","type":"address"}],"outputs":[]},
	{"name":"liquidate","type":"function","stateMutability":"nonpayable","inputs":[{"name":"collateralAsset","type":"address"},{"name":"debtAsset","type":"address"},{"name":"debtAmount","type":"uint256"},{"name":"from","type":"address"}],"outputs":[]},
	{"name":"AssetNotAllowed","type":"error","inputs":[{"name":"asset","type":"address"}]},
	{"name":"SupplyCapExceeded","type":"error","inputs":[{"name":"asset","type":"address"}]},
	{"name":"BorrowCapExceeded","type":"error","inputs":[{"name":"asset","type":"address"}]},
	{"name":"AssetFrozen","type":"error","inputs":[{"name":"asset","type":"address"}]},
	{"name":"AssetPaused","type":"error","inputs":[{"name":"asset","type":"address"}]},
	{"name":"InsufficientHealthFactor","type":"error","inputs":[]},
	{"name":"InsufficientCollateral","type":"error","inputs":[]},
	{"name":"InvalidAmount","type":"error","inputs":[]}
]`

// PoolData 聚合只读视图
const PoolDataABIJSON = `[
	{"name":"getCollateralAssetList","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"name":"getDebtAssetList","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"name":"getAssetData","type":"function","stateMutability":"view","inputs":[{"name":"asset","type":"address"}],"outputs":[{"name":"","type":"tuple","components":[
		{"name":"asset","type":"address"},
		{"name":"assetType","type":"uint8"},
		{"name":"decimals","type":"uint8"},
		{"name":"ltv","type":"uint256"},
		{"name":"liquidationThreshold","type":"uint256"},
		{"name":"liquidationBonus","type":"uint256"},
		{"name":"supplyCap","type":"uint256"},
		{"name":"borrowCap","type":"uint256"},
		{"name":"totalSupply","type":"uint256"},
		{"name":"totalBorrow","type":"uint256"},
		{"name":"utilizationRate","type":"uint256"},
		{"name":"supplyRate","type":"uint256"},
		{"name":"borrowRate","type":"uint256"},
		{"name":"price","type":"uint256"},
		{"name":"isFrozen","type":"bool"},
		{"name":"isPaused","type":"bool"},
		{"name":"stakedTokens","type":"address[]"},
		{"name":"stakedAmounts","type":"uint256[]"}
	]}]},
	{"name":"getUserData","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"tuple","components":[
		{"name":"totalCollateralValue","type":"uint256"},
		{"name":"totalDebtValue","type":"uint256"},
		{"name":"availableBorrowsValue","type":"uint256"},
		{"name":"healthFactor","type":"uint256"},
		{"name":"collateralAssets","type":"address[]"},
		{"name":"collateralAmounts","type":"uint256[]"},
		{"name":"debtAssets","type":"address[]"},
		{"name":"supplyAmounts","type":"uint256[]"},
		{"name":"borrowAmounts","type":"uint256[]"}
	]}]}
]`

// ERC20 最小接口
const ERC20ABIJSON = `[
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

// Pool 写方法名
const (
	MethodSupply    = "supply"
	MethodWithdraw  = "withdraw"
	MethodBorrow    = "borrow"
	MethodRepay     = "repay"
	MethodLiquidate = "liquidate"
	MethodApprove   = "approve"
)

var (
	PoolABI     = mustParse(PoolABIJSON)
	PoolDataABI = mustParse(PoolDataABIJSON)
	ERC20ABI    = mustParse(ERC20ABIJSON)
)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("chain: invalid abi: " + err.Error())
	}
	return parsed
}

package chain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// AssetType PoolData 中 assetType 字段
const (
	AssetTypeCollateral uint8 = 0
	AssetTypeDebt       uint8 = 1
)

// AssetData 对应 getAssetData 返回的 tuple，字段顺序必须与 ABI 保持一致
// utilizationRate 为 1e18 精度，ltv / 阈值 / 利率为 bps，price 为 1e8 精度
type AssetData struct {
	Asset                common.Address   `json:"asset" abi:"asset"`
	AssetType            uint8            `json:"assetType" abi:"assetType"`
	Decimals             uint8            `json:"decimals" abi:"decimals"`
	LTV                  *big.Int         `json:"ltv" abi:"ltv"`
	LiquidationThreshold *big.Int         `json:"liquidationThreshold" abi:"liquidationThreshold"`
	LiquidationBonus     *big.Int         `json:"liquidationBonus" abi:"liquidationBonus"`
	SupplyCap            *big.Int         `json:"supplyCap" abi:"supplyCap"`
	BorrowCap            *big.Int         `json:"borrowCap" abi:"borrowCap"`
	TotalSupply          *big.Int         `json:"totalSupply" abi:"totalSupply"`
	TotalBorrow          *big.Int         `json:"totalBorrow" abi:"totalBorrow"`
	UtilizationRate      *big.Int         `json:"utilizationRate" abi:"utilizationRate"`
	SupplyRate           *big.Int         `json:"supplyRate" abi:"supplyRate"`
	BorrowRate           *big.Int         `json:"borrowRate" abi:"borrowRate"`
	Price                *big.Int         `json:"price" abi:"price"`
	IsFrozen             bool             `json:"isFrozen" abi:"isFrozen"`
	IsPaused             bool             `json:"isPaused" abi:"isPaused"`
	StakedTokens         []common.Address `json:"stakedTokens" abi:"stakedTokens"`
	StakedAmounts        []*big.Int       `json:"stakedAmounts" abi:"stakedAmounts"`
}

// UserData 对应 getUserData 返回的 tuple；没有仓位时数组为空
// supplyAmounts / borrowAmounts 与 debtAssets 一一对应
type UserData struct {
	TotalCollateralValue  *big.Int         `json:"totalCollateralValue" abi:"totalCollateralValue"`
	TotalDebtValue        *big.Int         `json:"totalDebtValue" abi:"totalDebtValue"`
	AvailableBorrowsValue *big.Int         `json:"availableBorrowsValue" abi:"availableBorrowsValue"`
	HealthFactor          *big.Int         `json:"healthFactor" abi:"healthFactor"`
	CollateralAssets      []common.Address `json:"collateralAssets" abi:"collateralAssets"`
	CollateralAmounts     []*big.Int       `json:"collateralAmounts" abi:"collateralAmounts"`
	DebtAssets            []common.Address `json:"debtAssets" abi:"debtAssets"`
	SupplyAmounts         []*big.Int       `json:"supplyAmounts" abi:"supplyAmounts"`
	BorrowAmounts         []*big.Int       `json:"borrowAmounts" abi:"borrowAmounts"`
}

// WriteCall 一次合约写调用；To 为 Pool 地址时使用 Pool ABI，否则按 ERC20 处理
type WriteCall struct {
	To     common.Address
	Method string
	Args   []interface{}
	Value  *big.Int
}

// PendingTx 已广播、尚未确认的交易句柄
type PendingTx struct {
	Hash        common.Hash
	Nonce       uint64
	Msg         ethereum.CallMsg // 用于 revert 后重放获取原因
	SubmittedAt time.Time
}

// Package chaintest 提供内存版的链后端，供各业务包测试使用
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"zeur-core/internal/chain"
)

var (
	PoolAddress     = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
	PoolDataAddress = common.HexToAddress("0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9")
	ChainID         = big.NewInt(31337)
)

// Call 一笔被执行的写交易
type Call struct {
	From   common.Address
	To     common.Address
	Method string
	Args   []interface{}
	Value  *big.Int
	Hash   common.Hash
}

// RevertDataError 模拟节点返回的 revert 错误 (实现 rpc.DataError)
type RevertDataError struct {
	Data []byte
}

func (e *RevertDataError) Error() string          { return "execution reverted" }
func (e *RevertDataError) ErrorData() interface{} { return hexutil.Encode(e.Data) }

// PoolError 按 Pool ABI 编码具名错误
func PoolError(name string, args ...interface{}) []byte {
	e, ok := chain.PoolABI.Errors[name]
	if !ok {
		panic("unknown pool error " + name)
	}
	packed, err := e.Inputs.Pack(args...)
	if err != nil {
		panic(err)
	}
	return append(append([]byte{}, e.ID.Bytes()[:4]...), packed...)
}

type allowanceKey struct {
	token, owner, spender common.Address
}

type balanceKey struct {
	token, owner common.Address
}

// Backend 满足 chain.Backend，按 selector 分发到内存状态
type Backend struct {
	mu sync.Mutex

	collaterals []common.Address
	debts       []common.Address
	assets      map[common.Address]chain.AssetData
	users       map[common.Address]chain.UserData
	symbols     map[common.Address]string
	allowances  map[allowanceKey]*big.Int
	balances    map[balanceKey]*big.Int
	native      map[common.Address]*big.Int
	nonces      map[common.Address]uint64

	receipts map[common.Hash]*types.Receipt
	pending  map[common.Hash]int
	head     uint64
	calls    []Call
	reads    map[string]int

	readErr       error
	estimateErr   map[string]error
	onChainRevert map[string][]byte
	sendErr       error
	holdReceipts  bool

	// PendingPolls 交易广播后需要多少次 receipt 查询才会出块
	PendingPolls int
	// OnWrite 写交易执行成功后回调，测试可借此修改仓位数据
	OnWrite func(b *Backend, c Call)
}

func New() *Backend {
	return &Backend{
		assets:        make(map[common.Address]chain.AssetData),
		users:         make(map[common.Address]chain.UserData),
		symbols:       make(map[common.Address]string),
		allowances:    make(map[allowanceKey]*big.Int),
		balances:      make(map[balanceKey]*big.Int),
		native:        make(map[common.Address]*big.Int),
		nonces:        make(map[common.Address]uint64),
		receipts:      make(map[common.Hash]*types.Receipt),
		pending:       make(map[common.Hash]int),
		reads:         make(map[string]int),
		estimateErr:   make(map[string]error),
		onChainRevert: make(map[string][]byte),
		head:          100,
	}
}

// ---- 状态设置 ----

// NewAsset 构造数值字段全部为 0 的资产数据，price 为 1e8 精度
func NewAsset(addr common.Address, assetType, decimals uint8, price int64) chain.AssetData {
	return normalizeAsset(chain.AssetData{
		Asset:     addr,
		AssetType: assetType,
		Decimals:  decimals,
		Price:     big.NewInt(price),
	})
}

func (b *Backend) AddAsset(data chain.AssetData, symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.assets[data.Asset] = normalizeAsset(data)
	b.symbols[data.Asset] = symbol
	if data.AssetType == chain.AssetTypeDebt {
		b.debts = append(b.debts, data.Asset)
	} else {
		b.collaterals = append(b.collaterals, data.Asset)
	}
}

func (b *Backend) SetUser(user common.Address, data chain.UserData) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[user] = data
}

func (b *Backend) SetAllowance(token, owner, spender common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowances[allowanceKey{token, owner, spender}] = new(big.Int).Set(amount)
}

func (b *Backend) Allowance(token, owner, spender common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.allowances[allowanceKey{token, owner, spender}]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (b *Backend) SetBalance(token, owner common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if token == (common.Address{}) {
		b.native[owner] = new(big.Int).Set(amount)
		return
	}
	b.balances[balanceKey{token, owner}] = new(big.Int).Set(amount)
}

// FailReads 之后所有 eth_call 返回 err，传 nil 恢复
func (b *Backend) FailReads(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readErr = err
}

// RevertOnEstimate 指定方法在模拟执行时 revert
func (b *Backend) RevertOnEstimate(method string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.estimateErr[method] = &RevertDataError{Data: data}
}

// RevertOnChain 指定方法广播成功但上链后 revert
func (b *Backend) RevertOnChain(method string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChainRevert[method] = data
}

func (b *Backend) FailSend(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendErr = err
}

// HoldReceipts 为 true 时交易永远不会出块
func (b *Backend) HoldReceipts(hold bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdReceipts = hold
}

// Calls 返回已广播的写交易
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// Reads 返回某个只读方法被调用的次数
func (b *Backend) Reads(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads[method]
}

// ---- chain.Backend ----

func (b *Backend) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("invalid call")
	}

	// 在历史区块上重放写调用：用于取回 revert 原因
	if block != nil {
		_, method, _, err := b.decode(*msg.To, msg.Data)
		if err != nil {
			return nil, err
		}
		if data, ok := b.onChainRevert[method.Name]; ok {
			return nil, &RevertDataError{Data: data}
		}
		return nil, nil
	}

	if b.readErr != nil {
		return nil, b.readErr
	}

	contract, method, args, err := b.decode(*msg.To, msg.Data)
	if err != nil {
		return nil, err
	}
	b.reads[method.Name]++

	out, err := b.read(*msg.To, method.Name, args)
	if err != nil {
		return nil, err
	}
	return contract.Methods[method.Name].Outputs.Pack(out...)
}

func (b *Backend) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.To == nil {
		return 0, errors.New("contract creation not supported")
	}
	_, method, _, err := b.decode(*msg.To, msg.Data)
	if err != nil {
		return 0, err
	}
	if err, ok := b.estimateErr[method.Name]; ok {
		return 0, err
	}
	if method.Name == chain.MethodApprove {
		return 46_000, nil
	}
	return 100_000, nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sendErr != nil {
		return b.sendErr
	}

	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if tx.Nonce() != b.nonces[from] {
		return fmt.Errorf("nonce too low: have %d want %d", tx.Nonce(), b.nonces[from])
	}
	b.nonces[from]++

	_, method, args, err := b.decode(*tx.To(), tx.Data())
	if err != nil {
		return err
	}

	c := Call{From: from, To: *tx.To(), Method: method.Name, Args: args, Value: tx.Value(), Hash: tx.Hash()}
	b.calls = append(b.calls, c)

	status := types.ReceiptStatusSuccessful
	if _, ok := b.onChainRevert[method.Name]; ok {
		status = types.ReceiptStatusFailed
	}

	b.head++
	b.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		GasUsed:     tx.Gas() / 2,
		BlockNumber: new(big.Int).SetUint64(b.head),
	}
	b.pending[tx.Hash()] = b.PendingPolls

	if status == types.ReceiptStatusSuccessful {
		b.apply(c)
		if b.OnWrite != nil {
			// 回调中可能调用 SetUser 等加锁方法
			b.mu.Unlock()
			b.OnWrite(b, c)
			b.mu.Lock()
		}
	}
	return nil
}

func (b *Backend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.receipts[hash]
	if !ok || b.holdReceipts {
		return nil, ethereum.NotFound
	}
	if b.pending[hash] > 0 {
		b.pending[hash]--
		return nil, ethereum.NotFound
	}
	cp := *r
	return &cp, nil
}

func (b *Backend) BlockNumber(context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head, nil
}

func (b *Backend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readErr != nil {
		return nil, b.readErr
	}
	if v, ok := b.native[account]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

// ---- 内部 ----

func (b *Backend) decode(to common.Address, data []byte) (*abi.ABI, *abi.Method, []interface{}, error) {
	if len(data) < 4 {
		return nil, nil, nil, errors.New("short calldata")
	}
	contract := &chain.ERC20ABI
	switch to {
	case PoolAddress:
		contract = &chain.PoolABI
	case PoolDataAddress:
		contract = &chain.PoolDataABI
	}
	method, err := contract.MethodById(data[:4])
	if err != nil {
		return nil, nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, nil, err
	}
	return contract, method, args, nil
}

func (b *Backend) read(to common.Address, method string, args []interface{}) ([]interface{}, error) {
	switch method {
	case "getCollateralAssetList":
		return []interface{}{nonNil(b.collaterals)}, nil
	case "getDebtAssetList":
		return []interface{}{nonNil(b.debts)}, nil
	case "getAssetData":
		data, ok := b.assets[args[0].(common.Address)]
		if !ok {
			return nil, &RevertDataError{Data: PoolError("AssetNotAllowed", args[0])}
		}
		return []interface{}{data}, nil
	case "getUserData":
		return []interface{}{emptyUser(b.users[args[0].(common.Address)])}, nil
	case "allowance":
		if v, ok := b.allowances[allowanceKey{to, args[0].(common.Address), args[1].(common.Address)}]; ok {
			return []interface{}{new(big.Int).Set(v)}, nil
		}
		return []interface{}{new(big.Int)}, nil
	case "balanceOf":
		if v, ok := b.balances[balanceKey{to, args[0].(common.Address)}]; ok {
			return []interface{}{new(big.Int).Set(v)}, nil
		}
		return []interface{}{new(big.Int)}, nil
	case "symbol":
		return []interface{}{b.symbols[to]}, nil
	}
	return nil, fmt.Errorf("method %s not readable", method)
}

// apply 只模拟 approve 的链上效果，Pool 写操作交给 OnWrite
func (b *Backend) apply(c Call) {
	if c.Method == chain.MethodApprove {
		spender := c.Args[0].(common.Address)
		amount := c.Args[1].(*big.Int)
		b.allowances[allowanceKey{c.To, c.From, spender}] = new(big.Int).Set(amount)
	}
}

func nonNil(list []common.Address) []common.Address {
	if list == nil {
		return []common.Address{}
	}
	return list
}

func normalizeAsset(a chain.AssetData) chain.AssetData {
	for _, v := range []**big.Int{
		&a.LTV, &a.LiquidationThreshold, &a.LiquidationBonus, &a.SupplyCap, &a.BorrowCap,
		&a.TotalSupply, &a.TotalBorrow, &a.UtilizationRate, &a.SupplyRate, &a.BorrowRate, &a.Price,
	} {
		if *v == nil {
			*v = new(big.Int)
		}
	}
	if a.StakedTokens == nil {
		a.StakedTokens = []common.Address{}
	}
	if a.StakedAmounts == nil {
		a.StakedAmounts = []*big.Int{}
	}
	return a
}

func emptyUser(u chain.UserData) chain.UserData {
	zero := func(v *big.Int) *big.Int {
		if v == nil {
			return new(big.Int)
		}
		return v
	}
	u.TotalCollateralValue = zero(u.TotalCollateralValue)
	u.TotalDebtValue = zero(u.TotalDebtValue)
	u.AvailableBorrowsValue = zero(u.AvailableBorrowsValue)
	u.HealthFactor = zero(u.HealthFactor)
	if u.CollateralAssets == nil {
		u.CollateralAssets = []common.Address{}
	}
	if u.CollateralAmounts == nil {
		u.CollateralAmounts = []*big.Int{}
	}
	if u.DebtAssets == nil {
		u.DebtAssets = []common.Address{}
	}
	if u.SupplyAmounts == nil {
		u.SupplyAmounts = []*big.Int{}
	}
	if u.BorrowAmounts == nil {
		u.BorrowAmounts = []*big.Int{}
	}
	return u
}

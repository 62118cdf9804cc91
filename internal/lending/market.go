package lending

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"lukechampine.com/blake3"

	"zeur-core/internal/chain"
	"zeur-core/pkg/cache"
	"zeur-core/pkg/config"
)

const cachePrefix = "zeur:market:"

// Reader 只读链访问，由 chain.Gateway 实现
type Reader interface {
	CollateralAssetList(ctx context.Context) ([]common.Address, error)
	DebtAssetList(ctx context.Context) ([]common.Address, error)
	ReadAssetConfig(ctx context.Context, asset common.Address) (*chain.AssetData, error)
	ReadUserPosition(ctx context.Context, user common.Address) (*chain.UserData, error)
	TokenSymbol(ctx context.Context, token common.Address) (string, error)
}

// assetBundle 一次完整的资产读取结果，也是缓存中的值
type assetBundle struct {
	Assets  []chain.AssetData                  `json:"assets"`
	Symbols map[common.Address]string          `json:"symbols"`
	ByAddr  map[common.Address]chain.AssetData `json:"-"`
}

type snapshot[T any] struct {
	data        T
	version     uint64
	fingerprint [32]byte
	loadedAt    time.Time
}

// memo 按 key 记忆一次计算结果，key 不变则不重新计算
type memo[K comparable, V any] struct {
	key K
	val V
	ok  bool
}

func (m *memo[K, V]) get(key K, compute func() V) V {
	if !m.ok || m.key != key {
		m.val = compute()
		m.key = key
		m.ok = true
	}
	return m.val
}

type assetProjection struct {
	debts       []AssetView
	collaterals []CollateralView
}

type positionKey struct {
	assets uint64
	user   uint64
}

// Market 资产与仓位的读模型
// 原始数据经 pkg/cache 缓存；展示模型以 (资产版本, 用户版本) 为 key 记忆，只有数据变化时才重新计算
type Market struct {
	reader Reader
	cache  cache.Cache
	ttl    time.Duration
	reg    Registry
	logger *zap.Logger

	mu        sync.Mutex
	version   uint64
	assets    *snapshot[assetBundle]
	users     map[common.Address]*snapshot[chain.UserData]
	assetMemo memo[uint64, assetProjection]
	posMemo   map[common.Address]*memo[positionKey, PositionView]

	projections int // 展示模型计算次数
}

func NewMarket(reader Reader, c cache.Cache, ttl time.Duration, metas []config.AssetMeta, logger *zap.Logger) *Market {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if c == nil {
		c = cache.NewMemoryCache(ttl, 2*ttl)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Market{
		reader:  reader,
		cache:   c,
		ttl:     ttl,
		reg:     NewRegistry(metas),
		logger:  logger,
		users:   make(map[common.Address]*snapshot[chain.UserData]),
		posMemo: make(map[common.Address]*memo[positionKey, PositionView]),
	}
}

// Assets 债务资产 (借贷市场) 列表
func (m *Market) Assets(ctx context.Context) ([]AssetView, error) {
	p, err := m.assetProjection(ctx)
	if err != nil {
		return nil, err
	}
	return p.debts, nil
}

// Collaterals 抵押资产列表
func (m *Market) Collaterals(ctx context.Context) ([]CollateralView, error) {
	p, err := m.assetProjection(ctx)
	if err != nil {
		return nil, err
	}
	return p.collaterals, nil
}

// Position 用户仓位；没有仓位时各列表为空
func (m *Market) Position(ctx context.Context, user common.Address) (PositionView, error) {
	assets, err := m.loadAssets(ctx, false)
	if err != nil {
		return PositionView{}, err
	}
	u, err := m.loadUser(ctx, user, false)
	if err != nil {
		return PositionView{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	pm, ok := m.posMemo[user]
	if !ok {
		pm = &memo[positionKey, PositionView]{}
		m.posMemo[user] = pm
	}
	return pm.get(positionKey{assets.version, u.version}, func() PositionView {
		m.projections++
		return projectPosition(user, u.data, assets.data.ByAddr, assets.data.Symbols, m.reg)
	}), nil
}

// Asset 单个资产的原始数据与元数据
func (m *Market) Asset(ctx context.Context, addr common.Address) (chain.AssetData, config.AssetMeta, error) {
	assets, err := m.loadAssets(ctx, false)
	if err != nil {
		return chain.AssetData{}, config.AssetMeta{}, err
	}
	a, ok := assets.data.ByAddr[addr]
	if !ok {
		return chain.AssetData{}, config.AssetMeta{}, invalid("asset", ErrUnknownAsset)
	}
	return a, m.reg.meta(addr, assets.data.Symbols[addr]), nil
}

// UserData 用户原始聚合数据
func (m *Market) UserData(ctx context.Context, user common.Address) (chain.UserData, error) {
	u, err := m.loadUser(ctx, user, false)
	if err != nil {
		return chain.UserData{}, err
	}
	return u.data, nil
}

// Refetch 丢弃缓存并重新读取；user 为零地址时只刷新资产
func (m *Market) Refetch(ctx context.Context, user common.Address) error {
	if d, ok := m.cache.(cache.PrefixDeleter); ok {
		_ = d.DeletePrefix(ctx, cachePrefix)
	} else {
		_ = m.cache.Delete(ctx, cachePrefix+"assets")
		if user != (common.Address{}) {
			_ = m.cache.Delete(ctx, userKey(user))
		}
	}

	if _, err := m.loadAssets(ctx, true); err != nil {
		return err
	}
	if user != (common.Address{}) {
		if _, err := m.loadUser(ctx, user, true); err != nil {
			return err
		}
	}
	return nil
}

// Projections 返回展示模型累计计算次数
func (m *Market) Projections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.projections
}

func (m *Market) assetProjection(ctx context.Context) (assetProjection, error) {
	assets, err := m.loadAssets(ctx, false)
	if err != nil {
		return assetProjection{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assetMemo.get(assets.version, func() assetProjection {
		m.projections++
		debts, collaterals := projectAssets(assets.data.Assets, assets.data.Symbols, m.reg)
		return assetProjection{debts: debts, collaterals: collaterals}
	}), nil
}

func (m *Market) loadAssets(ctx context.Context, force bool) (*snapshot[assetBundle], error) {
	m.mu.Lock()
	cur := m.assets
	m.mu.Unlock()
	if !force && cur != nil && time.Since(cur.loadedAt) < m.ttl {
		return cur, nil
	}

	bundle, err := getOrLoad(ctx, m.cache, cachePrefix+"assets", m.ttl, m.fetchAssets)
	if err != nil {
		m.logger.Warn("asset data unavailable", zap.Error(err))
		return nil, unavailable(err)
	}
	bundle.ByAddr = make(map[common.Address]chain.AssetData, len(bundle.Assets))
	for _, a := range bundle.Assets {
		bundle.ByAddr[a.Asset] = a
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets = next(m, m.assets, bundle)
	return m.assets, nil
}

func (m *Market) loadUser(ctx context.Context, user common.Address, force bool) (*snapshot[chain.UserData], error) {
	m.mu.Lock()
	cur := m.users[user]
	m.mu.Unlock()
	if !force && cur != nil && time.Since(cur.loadedAt) < m.ttl {
		return cur, nil
	}

	data, err := getOrLoad(ctx, m.cache, userKey(user), m.ttl, func(ctx context.Context) (chain.UserData, error) {
		u, err := m.reader.ReadUserPosition(ctx, user)
		if err != nil {
			return chain.UserData{}, err
		}
		return *u, nil
	})
	if err != nil {
		m.logger.Warn("user data unavailable", zap.String("user", user.Hex()), zap.Error(err))
		return nil, unavailable(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user] = next(m, m.users[user], data)
	return m.users[user], nil
}

// next 生成新快照；内容未变化时沿用旧版本号，展示模型不必重新计算
func next[T any](m *Market, prev *snapshot[T], data T) *snapshot[T] {
	fp := fingerprint(data)
	s := &snapshot[T]{data: data, fingerprint: fp, loadedAt: time.Now()}
	if prev != nil && prev.fingerprint == fp {
		s.version = prev.version
		return s
	}
	m.version++
	s.version = m.version
	return s
}

func (m *Market) fetchAssets(ctx context.Context) (assetBundle, error) {
	collaterals, err := m.reader.CollateralAssetList(ctx)
	if err != nil {
		return assetBundle{}, err
	}
	debts, err := m.reader.DebtAssetList(ctx)
	if err != nil {
		return assetBundle{}, err
	}

	bundle := assetBundle{Symbols: make(map[common.Address]string)}
	for _, addr := range append(collaterals, debts...) {
		a, err := m.reader.ReadAssetConfig(ctx, addr)
		if err != nil {
			return assetBundle{}, err
		}
		bundle.Assets = append(bundle.Assets, *a)

		if _, ok := m.reg[addr]; ok {
			continue
		}
		// 原生币地址不是合约，读取失败时退回缩写地址
		if sym, err := m.reader.TokenSymbol(ctx, addr); err == nil {
			bundle.Symbols[addr] = sym
		} else {
			bundle.Symbols[addr] = addr.Hex()[:8]
		}
	}
	return bundle, nil
}

func getOrLoad[T any](ctx context.Context, c cache.Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var v T
	if err := c.Get(ctx, key, &v); err == nil {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	_ = c.Set(ctx, key, v, ttl)
	return v, nil
}

func fingerprint(v interface{}) [32]byte {
	raw, _ := json.Marshal(v)
	return blake3.Sum256(raw)
}

func userKey(user common.Address) string {
	return cachePrefix + "user:" + user.Hex()
}

// 仓位查询辅助：找不到返回 0
func amountOf(assets []common.Address, amounts []*big.Int, asset common.Address) *big.Int {
	for i, a := range assets {
		if a == asset && i < len(amounts) && amounts[i] != nil {
			return amounts[i]
		}
	}
	return new(big.Int)
}

// Package wallet implements WalletPool: per-chain signing lanes, each
// owning a monotonic nonce counter and fee cache, selected by the
// Scheduler under a balance/outstanding-count policy.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/crypto"
	"github.com/luxfi/geth/log"

	"github.com/luxfi/privacy-relayer/internal/evmclient"
	"github.com/luxfi/privacy-relayer/internal/model"
)

// Config holds per-chain wallet pool tunables.
type Config struct {
	ChainID           model.ChainID
	GasUpdateInterval time.Duration // default 60s
	GasMultiplier     float64       // default 1.10
	MaxOutstanding    int           // default: batch size
	BalanceFloor      *big.Int      // configured balance floor, wei; not read by the pool or HealthAPI
}

func DefaultConfig(chainID model.ChainID) Config {
	return Config{
		ChainID:           chainID,
		GasUpdateInterval: 60 * time.Second,
		GasMultiplier:     1.10,
		MaxOutstanding:    5,
		BalanceFloor:      big.NewInt(0),
	}
}

// Slot is a single signing key's lane: its own nonce counter, pending
// count, and gas cache, guarded by its own lock.
type Slot struct {
	mu sync.Mutex

	address    common.Address
	privateKey *ecdsa.PrivateKey
	client     *evmclient.Client

	nextNonce    uint64
	pendingCount int
	balance      *big.Int
	gas          model.GasFees
	gasUpdated   time.Time
}

func (s *Slot) Address() common.Address { return s.address }

// Pool holds the k signing slots for a single chain.
type Pool struct {
	cfg     Config
	chainID *big.Int // EVM chain id for tx signing
	signer  types.Signer
	slots   []*Slot
}

// New builds a Pool from raw hex private keys, querying each address's
// current pending nonce and balance. Fails if fewer than 2 keys are
// given, matching the per-chain k >= 2 startup requirement.
func New(ctx context.Context, cfg Config, evmChainID int64, client *evmclient.Client, rawKeys []string) (*Pool, error) {
	if len(rawKeys) < 2 {
		return nil, fmt.Errorf("wallet: chain %s requires at least 2 signing keys, got %d", cfg.ChainID, len(rawKeys))
	}

	chainIDBig := big.NewInt(evmChainID)
	p := &Pool{
		cfg:     cfg,
		chainID: chainIDBig,
		signer:  types.LatestSignerForChainID(chainIDBig),
	}

	for _, raw := range rawKeys {
		key, err := crypto.HexToECDSA(trimHexPrefix(raw))
		if err != nil {
			return nil, fmt.Errorf("wallet: invalid private key: %w", err)
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)

		nonce, err := client.TransactionCount(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("wallet: initial nonce query for %s failed: %w", addr, err)
		}
		balance, err := client.Balance(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("wallet: initial balance query for %s failed: %w", addr, err)
		}

		p.slots = append(p.slots, &Slot{
			address:    addr,
			privateKey: key,
			client:     client,
			nextNonce:  nonce,
			balance:    balance,
		})
	}

	sort.Slice(p.slots, func(i, j int) bool {
		return p.slots[i].address.Hex() < p.slots[j].address.Hex()
	})

	log.Info("wallet pool initialized", "chainId", cfg.ChainID, "keyCount", len(p.slots))
	return p, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Slots returns the pool's signing lanes, sorted address-lexicographically.
func (p *Pool) Slots() []*Slot { return p.slots }

// Select picks a uniformly random slot among those with spare outstanding
// capacity and sufficient balance for amount+estimatedFee. It reports
// false if no slot qualifies.
func (p *Pool) Select(amountWei, estimatedFee *big.Int, excluded map[common.Address]bool) (*Slot, bool) {
	required := new(big.Int).Add(amountWei, estimatedFee)

	var candidates []*Slot
	for _, s := range p.slots {
		if excluded[s.address] {
			continue
		}
		s.mu.Lock()
		ok := s.pendingCount < p.cfg.MaxOutstanding && s.balance.Cmp(required) >= 0
		s.mu.Unlock()
		if ok {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// ReserveNonce reserves the next nonce from slot, incrementing pendingCount.
func (s *Slot) ReserveNonce() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	nonce := s.nextNonce
	s.nextNonce++
	s.pendingCount++
	return nonce
}

// ReleaseNonce returns a reserved-but-unbroadcast nonce to the pool so the
// next issuer reuses it, for a broadcast failure before network acceptance.
func (s *Slot) ReleaseNonce(nonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextNonce == nonce+1 {
		s.nextNonce = nonce
	}
	if s.pendingCount > 0 {
		s.pendingCount--
	}
}

// ConfirmNonce marks a broadcast nonce as settled, decrementing pendingCount
// without touching nextNonce (which already advanced at broadcast time).
func (s *Slot) ConfirmNonce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingCount > 0 {
		s.pendingCount--
	}
}

// RefreshNonce reconciles nextNonce with the chain's pending count,
// repairing drift from out-of-band transactions.
func (s *Slot) RefreshNonce(ctx context.Context) error {
	observed, err := s.client.TransactionCount(ctx, s.address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if observed > s.nextNonce {
		s.nextNonce = observed
	}
	return nil
}

// RefreshBalance re-queries the slot's on-chain balance.
func (s *Slot) RefreshBalance(ctx context.Context) error {
	bal, err := s.client.Balance(ctx, s.address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = bal
	return nil
}

func (s *Slot) Balance() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.balance)
}

// RefreshNonces reconciles every slot's nonce counter, called after each
// batch completes.
func (p *Pool) RefreshNonces(ctx context.Context) {
	for _, s := range p.slots {
		if err := s.RefreshNonce(ctx); err != nil {
			log.Warn("wallet: nonce refresh failed", "chainId", p.cfg.ChainID, "address", s.address, "err", err)
		}
	}
}

// GasFees returns the slot's cached gas fields, refreshing from the chain
// if the cache is older than GasUpdateInterval.
func (s *Slot) GasFees(ctx context.Context, cfg Config) (model.GasFees, error) {
	s.mu.Lock()
	fresh := time.Since(s.gasUpdated) < cfg.GasUpdateInterval && !s.gas.RefreshedAt.IsZero()
	cached := s.gas
	s.mu.Unlock()
	if fresh {
		return cached, nil
	}

	priority, maxFee, err := s.client.SuggestedFees(ctx)
	fees := model.GasFees{GasLimit: 21000, RefreshedAt: time.Now()}
	if err == nil {
		fees.UseDynamicFee = true
		fees.MaxPriorityFeePerGas = applyMultiplier(priority, cfg.GasMultiplier)
		fees.MaxFeePerGas = applyMultiplier(maxFee, cfg.GasMultiplier)
	} else {
		gasPrice, gpErr := s.client.GasPrice(ctx)
		if gpErr != nil {
			return model.GasFees{}, fmt.Errorf("wallet: gas fee lookup failed: eip1559=%v legacy=%v", err, gpErr)
		}
		fees.GasPrice = applyMultiplier(gasPrice, cfg.GasMultiplier)
	}

	s.mu.Lock()
	s.gas = fees
	s.gasUpdated = fees.RefreshedAt
	s.mu.Unlock()
	return fees, nil
}

func applyMultiplier(v *big.Int, mult float64) *big.Int {
	scaled := new(big.Rat).Mul(new(big.Rat).SetInt(v), big.NewRat(int64(mult*1000), 1000))
	out := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	return out
}

// BuildAndSignTx constructs and signs a native-token transfer from slot
// to recipient with the given gas fields and nonce.
func (p *Pool) BuildAndSignTx(s *Slot, nonce uint64, recipient common.Address, amountWei *big.Int, fees model.GasFees) (*types.Transaction, error) {
	var tx *types.Transaction
	if fees.UseDynamicFee {
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   p.chainID,
			Nonce:     nonce,
			To:        &recipient,
			Value:     amountWei,
			Gas:       fees.GasLimit,
			GasFeeCap: fees.MaxFeePerGas,
			GasTipCap: fees.MaxPriorityFeePerGas,
		})
	} else {
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &recipient,
			Value:    amountWei,
			Gas:      fees.GasLimit,
			GasPrice: fees.GasPrice,
		})
	}
	return types.SignTx(tx, p.signer, s.privateKey)
}

// Package listener implements AleoListener, the long-running poll loop
// that turns Aleo chain transitions into validated TransferIntents.
package listener

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/geth/log"

	"github.com/luxfi/privacy-relayer/internal/aleoclient"
	"github.com/luxfi/privacy-relayer/internal/breaker"
	"github.com/luxfi/privacy-relayer/internal/dedupcache"
	"github.com/luxfi/privacy-relayer/internal/model"
	"github.com/luxfi/privacy-relayer/internal/ratelimit"
	"github.com/luxfi/privacy-relayer/internal/store"
)

// Config holds the listener's tunables.
type Config struct {
	ProgramID      string
	IntentFunction string // the program function name that creates a transfer intent
	PollInterval   time.Duration
	RecentCacheCap int
}

func DefaultConfig(programID string) Config {
	return Config{
		ProgramID:      programID,
		IntentFunction: "create_transfer_intent",
		PollInterval:   10 * time.Second,
		RecentCacheCap: 4096,
	}
}

// Sink receives each newly discovered, deduplicated intent.
type Sink func(intent *model.TransferIntent)

// Listener polls the Aleo chain for new blocks and extracts transfer
// intents from matching program transitions.
type Listener struct {
	cfg     Config
	client  *aleoclient.Client
	limiter *ratelimit.Limiter
	breaker *breaker.Breaker
	store   store.PersistentStore
	recent  dedupcache.Cacher[string, struct{}]

	lastHeight atomic.Uint64
	stop       chan struct{}
	stopped    chan struct{}
	once       sync.Once
}

func New(cfg Config, client *aleoclient.Client, limiter *ratelimit.Limiter, br *breaker.Breaker, st store.PersistentStore) *Listener {
	return &Listener{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		breaker: br,
		store:   st,
		recent:  dedupcache.New[string, struct{}](cfg.RecentCacheCap),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins polling in the background and delivers each newly
// discovered intent to sink. It returns once the initial tip height has
// been established.
func (l *Listener) Start(ctx context.Context, sink Sink) error {
	height, err := l.fetchLatestHeight(ctx)
	if err != nil {
		return fmt.Errorf("listener startup: %w", err)
	}
	l.lastHeight.Store(height)
	log.Info("listener started", "programId", l.cfg.ProgramID, "startHeight", height)

	go l.run(ctx, sink)
	return nil
}

// Stop cooperatively cancels the poll loop and waits for it to exit.
func (l *Listener) Stop() {
	l.once.Do(func() { close(l.stop) })
	<-l.stopped
}

func (l *Listener) run(ctx context.Context, sink Sink) {
	defer close(l.stopped)
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.pollOnce(ctx, sink)
		}
	}
}

func (l *Listener) pollOnce(ctx context.Context, sink Sink) {
	heightNow, err := l.fetchLatestHeight(ctx)
	if err != nil {
		log.Warn("listener: failed to fetch latest height", "err", err)
		return
	}

	lastHeight := l.lastHeight.Load()
	for h := lastHeight + 1; h <= heightNow; h++ {
		select {
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		default:
		}
		l.processBlock(ctx, h, sink)
	}
	l.lastHeight.Store(heightNow)
}

func (l *Listener) fetchLatestHeight(ctx context.Context) (uint64, error) {
	if err := l.limiter.Acquire(ctx); err != nil {
		return 0, err
	}
	var height uint64
	err := l.breaker.Execute(func() error {
		h, err := l.client.LatestBlockHeight(ctx)
		if err != nil {
			return err
		}
		height = h
		return nil
	})
	return height, err
}

func (l *Listener) processBlock(ctx context.Context, height uint64, sink Sink) {
	if err := l.limiter.Acquire(ctx); err != nil {
		log.Warn("listener: rate limiter wait cancelled", "height", height, "err", err)
		return
	}

	var txs []aleoclient.Transaction
	err := l.breaker.Execute(func() error {
		fetched, err := l.client.BlockTransactions(ctx, height)
		if err != nil {
			return err
		}
		txs = fetched
		return nil
	})
	if err != nil {
		log.Warn("listener: failed to fetch block transactions", "height", height, "err", err)
		return
	}

	for txIdx, tx := range txs {
		for _, transition := range tx.Transitions {
			if transition.Program != l.cfg.ProgramID || transition.Function != l.cfg.IntentFunction {
				continue
			}
			intent, ok := l.extractIntent(transition, tx.ID, height, txIdx)
			if !ok {
				continue
			}
			l.dedupAndEmit(intent, sink)
		}
	}
}

// extractIntent scans a transition's inputs and outputs for the three
// typed literals an intent requires: a u64 amount, a u8 chain code, and
// a 0x-prefixed EVM address. Extraction never aborts the poll loop; a
// malformed or incomplete transition is dropped with a warning.
func (l *Listener) extractIntent(t aleoclient.Transition, sourceTxID string, height uint64, txIdx int) (*model.TransferIntent, bool) {
	var (
		haveAmount bool
		haveChain  bool
		amount     uint64
		chainCode  uint8
		recipient  string
	)

	for _, lit := range append(append([]aleoclient.Literal{}, t.Inputs...), t.Outputs...) {
		switch {
		case !haveAmount && strings.HasPrefix(lit.Type, "u64"):
			if v, ok := parseU64Literal(lit.Value); ok {
				amount, haveAmount = v, true
			}
		case !haveChain && strings.HasPrefix(lit.Type, "u8"):
			if v, ok := parseU8Literal(lit.Value); ok {
				chainCode, haveChain = v, true
			}
		case recipient == "" && model.LooksLikeEVMAddress(lit.Value):
			recipient = lit.Value
		}
	}

	if !haveAmount || !haveChain || recipient == "" {
		log.Warn("listener: transition missing required fields, dropping",
			"sourceTxId", sourceTxID, "haveAmount", haveAmount, "haveChain", haveChain, "haveRecipient", recipient != "")
		return nil, false
	}

	chainID, ok := model.ChainFromAleoCode(chainCode)
	if !ok {
		log.Warn("listener: unknown chain code, dropping", "sourceTxId", sourceTxID, "chainCode", chainCode)
		return nil, false
	}

	requestID := sourceTxID
	if requestID == "" {
		requestID = fmt.Sprintf("%d:%d", height, txIdx)
	}

	return &model.TransferIntent{
		RequestID:  requestID,
		SourceTxID: sourceTxID,
		ChainID:    chainID,
		Amount:     model.NormalizeAleoAmount(amount),
		Recipient:  recipient,
		CreatedAt:  time.Now(),
	}, true
}

func (l *Listener) dedupAndEmit(intent *model.TransferIntent, sink Sink) {
	if _, seen := l.recent.Get(intent.RequestID); seen {
		return
	}
	processed, err := l.store.IsProcessed(intent.RequestID)
	if err != nil {
		log.Error("listener: isProcessed check failed", "requestId", intent.RequestID, "err", err)
		return
	}
	if processed {
		l.recent.Put(intent.RequestID, struct{}{})
		return
	}

	record := &model.IntentRecord{
		RequestID: intent.RequestID,
		AleoTxID:  intent.SourceTxID,
		ChainID:   intent.ChainID,
		Amount:    intent.Amount,
		Recipient: intent.Recipient,
	}
	if err := l.store.MarkPending(record); err != nil {
		log.Error("listener: markPending failed", "requestId", intent.RequestID, "err", err)
		return
	}
	l.recent.Put(intent.RequestID, struct{}{})
	sink(intent)
}

// parseU64Literal parses an Aleo-formatted integer literal such as
// "12345u64" or a bare decimal string.
func parseU64Literal(s string) (uint64, bool) {
	s = strings.TrimSuffix(s, "u64")
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseU8Literal(s string) (uint8, bool) {
	s = strings.TrimSuffix(s, "u8")
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}

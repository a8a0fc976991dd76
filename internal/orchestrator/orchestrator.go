// Package orchestrator wires every component into the running relayer
// process and owns its startup recovery sweep and graceful shutdown, the
// one place the rest of the packages are assembled by reference rather
// than reached through a process-wide singleton.
package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/luxfi/geth/log"

	"github.com/luxfi/privacy-relayer/internal/aleoclient"
	"github.com/luxfi/privacy-relayer/internal/api"
	"github.com/luxfi/privacy-relayer/internal/batch"
	"github.com/luxfi/privacy-relayer/internal/breaker"
	"github.com/luxfi/privacy-relayer/internal/config"
	"github.com/luxfi/privacy-relayer/internal/dlq"
	"github.com/luxfi/privacy-relayer/internal/evmclient"
	"github.com/luxfi/privacy-relayer/internal/executor"
	"github.com/luxfi/privacy-relayer/internal/listener"
	"github.com/luxfi/privacy-relayer/internal/metricsregistry"
	"github.com/luxfi/privacy-relayer/internal/model"
	"github.com/luxfi/privacy-relayer/internal/ratelimit"
	"github.com/luxfi/privacy-relayer/internal/scheduler"
	"github.com/luxfi/privacy-relayer/internal/store"
	"github.com/luxfi/privacy-relayer/internal/wallet"
)

// chainPipeline holds the per-target-chain components: one EVM client,
// wallet pool, executor, and scheduler per supported chain.
type chainPipeline struct {
	chainID   model.ChainID
	evmClient *evmclient.Client
	pool      *wallet.Pool
	executor  *executor.Executor
	scheduler *scheduler.Scheduler
	breaker   *breaker.Breaker
}

// Orchestrator owns every long-running component and the shutdown
// sequence that brings them all down within the grace window.
type Orchestrator struct {
	cfg   *config.Config
	store store.PersistentStore

	metrics     *metricsregistry.Registry
	aleoClient  *aleoclient.Client
	aleoLimiter *ratelimit.Limiter
	aleoBreaker *breaker.Breaker
	listener    *listener.Listener
	batchQueue  *batch.Queue
	dlqQueue    *dlq.Queue
	api         *api.Server

	chains map[model.ChainID]*chainPipeline

	stop chan struct{}
}

// New wires every component per the startup sequence's dependency order,
// but does not start any loop; call Start for that.
func New(ctx context.Context, cfg *config.Config) (*Orchestrator, error) {
	st, err := store.Open(cfg.StoreDir)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	o := &Orchestrator{
		cfg:         cfg,
		store:       st,
		metrics:     metricsregistry.New(),
		aleoClient:  aleoclient.New(cfg.AleoRPC, 10*time.Second),
		aleoLimiter: ratelimit.New(cfg.AleoRateLimitRPS, cfg.AleoRateLimitRPM),
		aleoBreaker: breaker.New(breaker.DefaultConfig()),
		chains:      make(map[model.ChainID]*chainPipeline),
		stop:        make(chan struct{}),
	}

	o.batchQueue = batch.New(batch.Config{MaxBatchSize: cfg.MaxBatchSize, MaxBatchWait: cfg.MaxBatchWaitTime}, o.onBatchReady)

	o.listener = listener.New(listener.Config{
		ProgramID:      cfg.AleoProgramID,
		IntentFunction: "create_transfer_intent",
		PollInterval:   cfg.AleoPollInterval,
		RecentCacheCap: 4096,
	}, o.aleoClient, o.aleoLimiter, o.aleoBreaker, st)

	balanceFloorWei, err := parseFloorWei(cfg.WalletBalanceFloor)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	chainRPCs := map[model.ChainID]string{
		model.ChainSepolia: cfg.SepoliaRPC,
		model.ChainAmoy:    cfg.PolygonAmoyRPC,
	}
	requeuers := make(map[model.ChainID]dlq.Requeuer, len(chainRPCs))

	for chainID, rpcURL := range chainRPCs {
		cp, err := newChainPipeline(ctx, chainID, rpcURL, cfg, o.batchQueue, balanceFloorWei)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("orchestrator: failed to initialize %s wallet pool: %w", chainID, err)
		}
		o.chains[chainID] = cp
		requeuers[chainID] = o.batchQueue
	}

	o.dlqQueue = dlq.New(dlq.DefaultConfig(), st, requeuers)

	breakers := make(map[model.ChainID]*breaker.Breaker, len(o.chains))
	for chainID, cp := range o.chains {
		breakers[chainID] = cp.breaker
	}
	o.api = api.New(api.Config{
		Addr:     cfg.HTTPAddr,
		Breakers: breakers,
		Metrics:  o.metrics,
		Store:    st,
		Ingress:  o,
	})

	return o, nil
}

func newChainPipeline(ctx context.Context, chainID model.ChainID, rpcURL string, cfg *config.Config, requeuer scheduler.Requeuer, balanceFloorWei *big.Int) (*chainPipeline, error) {
	client := evmclient.New(rpcURL)

	walletCfg := wallet.DefaultConfig(chainID)
	walletCfg.MaxOutstanding = cfg.MaxBatchSize
	walletCfg.BalanceFloor = balanceFloorWei

	pool, err := wallet.New(ctx, walletCfg, int64(chainID), client, cfg.RelayerPrivateKeys)
	if err != nil {
		return nil, err
	}

	exec := executor.New(executor.DefaultConfig(), client, pool, walletCfg)
	sched := scheduler.New(pool, exec, requeuer)

	return &chainPipeline{
		chainID:   chainID,
		evmClient: client,
		pool:      pool,
		executor:  exec,
		scheduler: sched,
		breaker:   breaker.New(breaker.DefaultConfig()),
	}, nil
}

func parseFloorWei(decimal string) (*big.Int, error) {
	amount, err := model.ParseAmount(decimal)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet balance floor %q: %w", decimal, err)
	}
	return model.AmountToWei(amount), nil
}

// Store exposes the underlying PersistentStore for status lookups by
// callers that hold an Orchestrator directly, such as test harnesses.
func (o *Orchestrator) Store() store.PersistentStore { return o.store }

// Register implements api.Ingress, accepting an HTTP-submitted intent
// into the same store+BatchQueue pipeline the Aleo listener uses.
func (o *Orchestrator) Register(intent *model.TransferIntent) error {
	processed, err := o.store.IsProcessed(intent.RequestID)
	if err != nil {
		return model.StorageError("failed to check idempotency", err)
	}
	if processed {
		return model.DuplicateError(fmt.Sprintf("requestId %s already processed", intent.RequestID))
	}

	record := &model.IntentRecord{
		RequestID: intent.RequestID,
		AleoTxID:  intent.SourceTxID,
		ChainID:   intent.ChainID,
		Amount:    intent.Amount,
		Recipient: intent.Recipient,
	}
	if err := o.store.MarkPending(record); err != nil {
		return err
	}
	return o.batchQueue.Add(intent)
}

// Start runs the startup sequence: recovery sweep, HealthAPI, DLQ
// worker, AleoListener, and the periodic metrics log.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.recoverySweep(); err != nil {
		return err
	}

	o.api.Start()
	go o.dlqQueue.Run(o.stop)

	if err := o.listener.Start(ctx, o.onIntent); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	go o.logMetricsLoop(ctx)
	return nil
}

// recoverySweep re-enqueues every orphaned pending or in_flight record
// left over from a crash; idempotency at the store/dedup layer makes
// re-enqueueing safe even if the intent actually completed.
func (o *Orchestrator) recoverySweep() error {
	for _, status := range []model.IntentStatus{model.StatusPending, model.StatusInFlight} {
		records, err := o.store.ListByStatus(status, 0)
		if err != nil {
			return fmt.Errorf("orchestrator: recovery sweep failed to list %s: %w", status, err)
		}
		for _, record := range records {
			if err := o.batchQueue.Add(intentFromRecord(record)); err != nil {
				log.Error("orchestrator: recovery sweep failed to re-enqueue intent", "requestId", record.RequestID, "err", err)
			}
		}
		if len(records) > 0 {
			log.Info("orchestrator: recovery sweep re-enqueued orphaned intents", "status", status, "count", len(records))
		}
	}
	return nil
}

func intentFromRecord(r *model.IntentRecord) *model.TransferIntent {
	return &model.TransferIntent{
		RequestID:  r.RequestID,
		SourceTxID: r.AleoTxID,
		ChainID:    r.ChainID,
		Amount:     r.Amount,
		Recipient:  r.Recipient,
		CreatedAt:  r.FirstSeenAt,
		RetryCount: r.RetryCount,
	}
}

func (o *Orchestrator) onIntent(intent *model.TransferIntent) {
	if err := o.batchQueue.Add(intent); err != nil {
		log.Error("orchestrator: failed to enqueue listener intent", "requestId", intent.RequestID, "err", err)
		return
	}

	depth := o.batchQueue.Depth(intent.ChainID)
	o.metrics.SetQueueDepth(intent.ChainID, int64(depth))
	if depth > o.cfg.QueueHighWaterMark {
		log.Warn("orchestrator: chain batch queue depth crossed high-water mark, settlement is falling behind intent ingestion",
			"chainId", intent.ChainID, "depth", depth, "highWaterMark", o.cfg.QueueHighWaterMark)
	}
}

// onBatchReady transitions every intent in batch to in_flight, dispatches
// the batch through its chain's Scheduler, records each outcome, and then
// reconciles the chain's wallet nonces.
func (o *Orchestrator) onBatchReady(b *model.Batch) {
	cp, ok := o.chains[b.ChainID]
	if !ok {
		log.Error("orchestrator: batch closed for unconfigured chain", "chainId", b.ChainID)
		return
	}

	for _, intent := range b.Intents {
		o.markInFlight(intent.RequestID)
	}

	o.metrics.SetQueueDepth(b.ChainID, 0)
	results := cp.scheduler.RunBatch(context.Background(), b)
	for _, result := range results {
		o.recordResult(cp, result)
	}
	cp.pool.RefreshNonces(context.Background())
}

func (o *Orchestrator) markInFlight(requestID string) {
	record, err := o.store.Get(requestID)
	if err != nil || record == nil {
		log.Error("orchestrator: failed to load record before marking in_flight", "requestId", requestID, "err", err)
		return
	}
	if record.Status == model.StatusInFlight {
		return
	}
	if err := o.store.UpdateStatus(requestID, model.StatusInFlight, model.StatusUpdate{}); err != nil {
		log.Error("orchestrator: failed to mark in_flight", "requestId", requestID, "err", err)
	}
}

func (o *Orchestrator) recordResult(cp *chainPipeline, result model.ExecutionResult) {
	if result.Intent == nil {
		return
	}

	if result.Success {
		if err := o.store.UpdateStatus(result.Intent.RequestID, model.StatusConfirmed, model.StatusUpdate{
			EVMTxHash: result.TxHash, BlockNumber: result.BlockNumber,
		}); err != nil {
			log.Error("orchestrator: failed to mark confirmed", "requestId", result.Intent.RequestID, "err", err)
		}
		o.metrics.IncConfirmed(cp.chainID)
		o.metrics.MarkExecutionCompleted(cp.chainID)
		return
	}

	o.metrics.IncFailed(cp.chainID)
	errMsg := ""
	if result.Err != nil {
		errMsg = result.Err.Error()
	}
	if err := o.store.UpdateStatus(result.Intent.RequestID, model.StatusFailed, model.StatusUpdate{ErrorMessage: errMsg}); err != nil {
		log.Error("orchestrator: failed to mark failed", "requestId", result.Intent.RequestID, "err", err)
		return
	}

	if model.KindOf(result.Err) == model.KindChainPermanent {
		if err := o.store.UpdateStatus(result.Intent.RequestID, model.StatusPermanentlyFailed, model.StatusUpdate{ErrorMessage: errMsg}); err != nil {
			log.Error("orchestrator: failed to mark permanently_failed", "requestId", result.Intent.RequestID, "err", err)
		}
		return
	}

	o.dlqQueue.Enqueue(result.Intent)
}

// logMetricsLoop emits a structured summary of per-chain throughput and
// queue depth every 30s until ctx is cancelled.
func (o *Orchestrator) logMetricsLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stop:
			return
		case <-ticker.C:
			for chainID := range o.chains {
				log.Info("relayer metrics",
					"chainId", chainID,
					"queueDepth", o.metrics.QueueDepth(chainID),
					"dlqSize", o.dlqQueue.Len(),
					"executionRate1m", o.metrics.ExecutionRate1(chainID))
			}
		}
	}
}

// Shutdown runs the shutdown sequence: stop the listener, flush batch
// queues, stop the DLQ worker, drain HealthAPI with a 10s grace, and
// close the store.
func (o *Orchestrator) Shutdown() error {
	o.listener.Stop()
	o.batchQueue.FlushAll()

	close(o.stop)
	o.dlqQueue.Wait()

	if err := o.api.Shutdown(10 * time.Second); err != nil {
		log.Error("orchestrator: api shutdown error", "err", err)
	}

	if err := o.store.Close(); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	return nil
}

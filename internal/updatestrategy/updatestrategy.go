// Package updatestrategy orchestrates the per-batch pipeline from spec.md
// 4.11: read raw rows and rates, invoke the Transformer, apply, checkpoint.
// Shaped like node.SyncEngine (sync.go): one struct holding its
// dependencies plus a tunable Config, a constructor that fills in
// defaults, and a loop method the CLI drives to completion.
package updatestrategy

import (
	"context"

	"github.com/graphsense/graphsense-lib-sub000/internal/applier"
	"github.com/graphsense/graphsense-lib-sub000/internal/config"
	"github.com/graphsense/graphsense-lib-sub000/internal/deltamodel"
	"github.com/graphsense/graphsense-lib-sub000/internal/engineerr"
	"github.com/graphsense/graphsense-lib-sub000/internal/idalloc"
	"github.com/graphsense/graphsense-lib-sub000/internal/logx"
	"github.com/graphsense/graphsense-lib-sub000/internal/recovery"
	"github.com/graphsense/graphsense-lib-sub000/internal/sink"
)

// BatchResult is what a BatchProcessor hands back for one block range:
// the changes to apply, in ChangeBuilder order, plus the index of each
// transaction's first change (consulted only in per-transaction apply
// mode; see internal/applier).
type BatchResult struct {
	Delta        deltamodel.DbDelta
	Changes      []deltamodel.DbChange
	TxBoundaries []int
}

// BatchProcessor turns one batch's raw block range into a BatchResult. It
// is the seam between orchestration (this package) and the pure
// Transformer/ChangeBuilder pipeline, so UpdateStrategy can be exercised
// and tested without constructing a full chain-specific Transformer.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, startBlock, endBlock int64, rawSink sink.RawSink, transformedSink sink.TransformedSink) (BatchResult, error)
}

// Strategy owns the engine's only in-process mutable state besides the
// UTXO resolver's LRU: the IdAllocator (spec.md section 5).
type Strategy struct {
	cfg         config.Config
	raw         sink.RawSink
	transformed sink.TransformedSink
	allocator   *idalloc.Allocator
	recoverer   *recovery.Recoverer
	applier     *applier.Applier
	processor   BatchProcessor
	log         *logx.Logger
}

func New(cfg config.Config, raw sink.RawSink, transformed sink.TransformedSink, allocator *idalloc.Allocator, recoverer *recovery.Recoverer, processor BatchProcessor, log *logx.Logger) *Strategy {
	if log == nil {
		log = logx.Nop()
	}
	return &Strategy{
		cfg: cfg, raw: raw, transformed: transformed, allocator: allocator,
		recoverer: recoverer, applier: applier.New(transformed, cfg.ApplyMode),
		processor: processor, log: log,
	}
}

// ResolveStartBlock implements spec.md 4.11: infer from
// delta_updater_status.last_synced_block + 1 unless overridden, and the
// safety checks from spec.md 4.11's "Safety checks at startup".
func (s *Strategy) ResolveStartBlock(ctx context.Context) (int64, error) {
	if s.cfg.StartBlock >= 0 {
		return s.cfg.StartBlock, nil
	}
	status, ok, err := s.transformed.GetDeltaUpdaterStatus(ctx)
	if err != nil {
		return 0, engineerr.Wrap(engineerr.KindSinkError, "updatestrategy: read delta_updater_status", err)
	}
	if !ok {
		return 0, nil
	}
	return status.LastSyncedBlock + 1, nil
}

// CheckSafety implements spec.md 4.11's safety checks, skipped entirely
// when cfg.DisableSafetyChecks is set.
func (s *Strategy) CheckSafety(ctx context.Context, startBlock int64) error {
	if s.cfg.DisableSafetyChecks {
		return nil
	}
	status, ok, err := s.transformed.GetDeltaUpdaterStatus(ctx)
	if err != nil {
		return engineerr.Wrap(engineerr.KindSinkError, "updatestrategy: safety check read status", err)
	}
	if !ok {
		return nil
	}
	if startBlock <= status.LastSyncedBlock {
		return engineerr.AssertionFailure("updatestrategy: start_block must not precede the last synced block")
	}
	if startBlock != status.LastSyncedBlock+1 {
		return engineerr.AssertionFailure("updatestrategy: start_block must equal last_synced_block+1, no skipping")
	}
	return nil
}

// ResolveEndBlock returns the smaller of cfg.EndBlock and candidate, or
// candidate when cfg.EndBlock is negative. It does not look up which
// blocks have exchange rates; the result is not capped by rate
// availability.
func (s *Strategy) ResolveEndBlock(ctx context.Context, candidate int64) (int64, error) {
	end := s.cfg.EndBlock
	if end < 0 || candidate < end {
		end = candidate
	}
	return end, nil
}

// RunOneBatch executes a single batch: Transformer invocation, apply,
// checkpoint (spec.md 4.11 steps 1-5). The caller is responsible for
// cancellation checks between batches (spec.md section 5: "outer loop
// checks a shutdown flag between batches").
func (s *Strategy) RunOneBatch(ctx context.Context, startBlock, endBlock int64) error {
	hint := map[string]any{"current_tx_id": float64(-1), "last_successful_tx_id": float64(startBlock - 1)}
	scope, err := s.recoverer.EnterCriticalSection(hint)
	if err != nil {
		return err
	}

	result, err := s.processor.ProcessBatch(ctx, startBlock, endBlock, s.raw, s.transformed)
	if err != nil {
		return scope.Done(err)
	}

	if err := s.applier.ApplyBatch(ctx, result.Changes, result.TxBoundaries); err != nil {
		return scope.Done(engineerr.Wrap(engineerr.KindSinkError, "updatestrategy: apply_changes", err))
	}

	if err := scope.Done(nil); err != nil {
		return err
	}
	if err := s.recoverer.LeaveRecoveryMode(); err != nil {
		return err
	}

	s.log.Info("batch applied start_block=%d end_block=%d changes=%d", startBlock, endBlock, len(result.Changes))
	return nil
}

// Run drives batches from startBlock to endBlock (inclusive) in steps of
// cfg.BatchSize, checking ctx between batches for cancellation (spec.md
// section 5: "Cancellation does not attempt to roll back an in-flight
// sink write" — Run simply stops issuing new batches once ctx is done).
func (s *Strategy) Run(ctx context.Context, endOverride int64) error {
	start, err := s.ResolveStartBlock(ctx)
	if err != nil {
		return err
	}
	if err := s.CheckSafety(ctx, start); err != nil {
		return err
	}
	end, err := s.ResolveEndBlock(ctx, endOverride)
	if err != nil {
		return err
	}

	for cursor := start; cursor <= end; cursor += int64(s.cfg.BatchSize) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batchEnd := cursor + int64(s.cfg.BatchSize) - 1
		if batchEnd > end {
			batchEnd = end
		}
		if err := s.RunOneBatch(ctx, cursor, batchEnd); err != nil {
			return err
		}
	}
	return nil
}

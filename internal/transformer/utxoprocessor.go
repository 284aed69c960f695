package transformer

import (
	"context"

	"github.com/graphsense/graphsense-lib-sub000/internal/changebuilder"
	"github.com/graphsense/graphsense-lib-sub000/internal/deltamodel"
	"github.com/graphsense/graphsense-lib-sub000/internal/engineerr"
	"github.com/graphsense/graphsense-lib-sub000/internal/idalloc"
	"github.com/graphsense/graphsense-lib-sub000/internal/rawadapter"
	"github.com/graphsense/graphsense-lib-sub000/internal/sink"
	"github.com/graphsense/graphsense-lib-sub000/internal/updatestrategy"
)

// UTXOBatchProcessor implements updatestrategy.BatchProcessor for the UTXO
// dialect (spec.md 4.6 UTXO dialect), the account dialect's counterpart to
// AccountBatchProcessor. It runs the address-layer pipeline exactly as the
// account dialect does (minus balances, which are account-only), then
// re-projects the same compressed delta onto the cluster layer via
// DbDelta.ToClusterDelta and emits both layers through ChangeBuilder.
//
// TransformedSink currently exposes existing-relation lookups only for the
// address_*_relations tables, not cluster_*_relations (see DESIGN.md), so
// cluster-layer relation rows are always emitted as NEW; the address layer
// still gets the full NEW-vs-UPDATE/parity treatment.
type UTXOBatchProcessor struct {
	cfg          Config
	addrAlloc    *idalloc.Allocator
	clusterAlloc *idalloc.Allocator
	txAlloc      *idalloc.Allocator
}

func NewUTXOBatchProcessor(cfg Config, addrAlloc, clusterAlloc, txAlloc *idalloc.Allocator) *UTXOBatchProcessor {
	return &UTXOBatchProcessor{cfg: cfg, addrAlloc: addrAlloc, clusterAlloc: clusterAlloc, txAlloc: txAlloc}
}

func (p *UTXOBatchProcessor) ProcessBatch(ctx context.Context, startBlock, endBlock int64, raw sink.RawSink, transformed sink.TransformedSink) (updatestrategy.BatchResult, error) {
	var allTxs []deltamodel.Tx
	var entities []deltamodel.EntityDelta
	var entityTxs []deltamodel.RawEntityTx
	var relations []deltamodel.RelationDelta
	var appearances []AddressAppearance

	for b := startBlock; b <= endBlock; b++ {
		utxoTxs, err := raw.GetUTXOTransactionsInBlock(ctx, b)
		if err != nil {
			return updatestrategy.BatchResult{}, engineerr.SinkError("utxoprocessor: read utxo transactions", err)
		}
		for _, tx := range utxoTxs {
			txID := AssignTransactionID(false, p.txAlloc, b, tx.TxIndex)
			allTxs = append(allTxs, deltamodel.Tx{BlockID: b, TxID: txID, TxHash: tx.TxHash, TxIndex: tx.TxIndex})

			inputs := make([]UTXOInput, len(tx.Inputs))
			for i, in := range tx.Inputs {
				inputs[i] = UTXOInput{Address: in.Address, Value: in.Value}
			}
			outputs := make([]UTXOOutput, len(tx.Outputs))
			for i, out := range tx.Outputs {
				outputs[i] = UTXOOutput{Address: out.Address, Value: out.Value}
			}

			res := TransformUTXOTx(txID, inputs, outputs, tx.TotalInputValue)
			entities = append(entities, res.Entities...)
			entityTxs = append(entityTxs, res.EntityTxs...)
			relations = append(relations, res.Relations...)

			for _, in := range tx.Inputs {
				appearances = append(appearances,
					AddressAppearance{Address: in.Address, BlockID: b, IsLog: false, Index: tx.TxIndex, IsFromAddress: true})
			}
			for _, out := range tx.Outputs {
				appearances = append(appearances,
					AddressAppearance{Address: out.Address, BlockID: b, IsLog: false, Index: tx.TxIndex, IsFromAddress: false})
			}
		}
	}

	ordered := OrderAddressAppearances(appearances)
	addrResolved, err := ResolveAddressIDs(ctx, transformed, p.addrAlloc, ordered)
	if err != nil {
		return updatestrategy.BatchResult{}, engineerr.Wrap(engineerr.KindSinkError, "utxoprocessor: resolve address ids", err)
	}
	addrResolve := make(map[string]int64, len(addrResolved))
	for key, r := range addrResolved {
		addrResolve[key] = r.ID
	}

	delta := deltamodel.DbDelta{EntityUpdates: entities, NewEntityTxs: entityTxs, RelationUpdates: relations}.Compress()

	clusterOf, newClusters, err := ResolveClusterIDs(ctx, transformed, addrResolved, p.clusterAlloc, ordered)
	if err != nil {
		return updatestrategy.BatchResult{}, engineerr.Wrap(engineerr.KindSinkError, "utxoprocessor: resolve cluster ids", err)
	}
	addressToClusterID := func(address []byte) int64 { return clusterOf[string(address)] }
	clusterDelta := delta.ToClusterDelta(addressToClusterID)

	clusterResolve := make(map[string]int64)
	for _, e := range clusterDelta.EntityUpdates {
		clusterResolve[string(e.Identifier)] = deltamodel.DecodeClusterID(e.Identifier)
	}
	for _, r := range clusterDelta.RelationUpdates {
		clusterResolve[string(r.Src)] = deltamodel.DecodeClusterID(r.Src)
		clusterResolve[string(r.Dst)] = deltamodel.DecodeClusterID(r.Dst)
	}

	existingOutAddr := make(map[string]changebuilder.ExistingRelation, len(delta.RelationUpdates))
	existingInAddr := make(map[string]changebuilder.ExistingRelation, len(delta.RelationUpdates))
	for _, rel := range delta.RelationUpdates {
		srcID, dstID := addrResolve[string(rel.Src)], addrResolve[string(rel.Dst)]
		key := string(rel.Src) + "\x00" + string(rel.Dst)
		if row, found, err := transformed.GetAddressOutgoingRelations(ctx, srcID, dstID); err != nil {
			return updatestrategy.BatchResult{}, engineerr.SinkError("utxoprocessor: read outgoing relation", err)
		} else if found {
			existingOutAddr[key] = changebuilder.ExistingRelation{Exists: true, NoTransactions: row.NoTransactions}
		}
		if row, found, err := transformed.GetAddressIncomingRelations(ctx, dstID, srcID); err != nil {
			return updatestrategy.BatchResult{}, engineerr.SinkError("utxoprocessor: read incoming relation", err)
		} else if found {
			existingInAddr[key] = changebuilder.ExistingRelation{Exists: true, NoTransactions: row.NoTransactions}
		}
	}

	addrCtxByKey := make(map[string]changebuilder.AddressContext, len(addrResolved))
	for key, r := range addrResolved {
		addrCtxByKey[key] = changebuilder.AddressContext{ID: r.ID, IsNew: r.IsNew}
	}
	for _, rel := range delta.RelationUpdates {
		srcKey, dstKey := string(rel.Src), string(rel.Dst)
		relKey := srcKey + "\x00" + dstKey
		if existingOutAddr[relKey].Exists || existingInAddr[relKey].Exists {
			continue
		}
		sc := addrCtxByKey[srcKey]
		sc.NewOutgoingRels++
		addrCtxByKey[srcKey] = sc
		dc := addrCtxByKey[dstKey]
		dc.NewIncomingRels++
		addrCtxByKey[dstKey] = dc
	}

	clusterCtxByKey := make(map[string]changebuilder.AddressContext, len(clusterResolve))
	for key, id := range clusterResolve {
		clusterCtxByKey[key] = changebuilder.AddressContext{ID: id, IsNew: newClusters[id]}
	}
	for _, rel := range clusterDelta.RelationUpdates {
		srcKey, dstKey := string(rel.Src), string(rel.Dst)
		sc := clusterCtxByKey[srcKey]
		sc.NewOutgoingRels++
		clusterCtxByKey[srcKey] = sc
		dc := clusterCtxByKey[dstKey]
		dc.NewIncomingRels++
		clusterCtxByKey[dstKey] = dc
	}

	// anchorByCluster records, for every cluster touched this batch, the
	// first address (in appearance order) assigned to it — the
	// cluster_addresses row a newly allocated cluster attaches to.
	anchorByCluster := make(map[int64]int64)
	for _, addr := range ordered {
		key := string(addr)
		cid, ok := clusterOf[key]
		if !ok {
			continue
		}
		if _, exists := anchorByCluster[cid]; exists {
			continue
		}
		if addrID, ok := addrResolve[key]; ok {
			anchorByCluster[cid] = addrID
		}
	}

	groupIDs := make(map[int64]bool, len(allTxs))
	for _, tx := range allTxs {
		groupIDs[rawadapter.BlockIDGroup(tx.BlockID, p.cfg.BlockBucketSize)] = true
	}
	groupList := make([]int64, 0, len(groupIDs))
	for g := range groupIDs {
		groupList = append(groupList, g)
	}
	loadedMaxima, err := transformed.GetMaxSecondaryIDs(ctx, groupList, "block_transactions", "block_id_group")
	if err != nil {
		return updatestrategy.BatchResult{}, engineerr.SinkError("utxoprocessor: read secondary ids", err)
	}
	groupState := changebuilder.NewSecondaryGroupState(nil)
	for g, max := range loadedMaxima {
		groupState.Preload("block_transactions", g, max)
	}

	builder := changebuilder.New(p.cfg.ValidationMode, nil)
	builder.EmitTransactionRows(allTxs)
	builder.EmitBlockTransactions(allTxs)
	for _, tx := range allTxs {
		builder.EmitSecondaryGroupMaxima(groupState, "block_transactions", rawadapter.BlockIDGroup(tx.BlockID, p.cfg.BlockBucketSize), int64(tx.TxIndex))
	}
	if err := builder.EmitEntityTxRows(delta.NewEntityTxs, changebuilder.EntityAddress, addrResolve); err != nil {
		return updatestrategy.BatchResult{}, err
	}
	if err := builder.EmitRelationUpdates(delta.RelationUpdates, existingOutAddr, existingInAddr, changebuilder.EntityAddress, addrResolve); err != nil {
		return updatestrategy.BatchResult{}, err
	}
	if err := builder.EmitRelationUpdates(clusterDelta.RelationUpdates, nil, nil, changebuilder.EntityCluster, clusterResolve); err != nil {
		return updatestrategy.BatchResult{}, err
	}
	extrasAddr := changebuilder.EntityRowExtras{
		AddressPrefix:      addressPrefix,
		AddressToClusterID: addressToClusterID,
	}
	if err := builder.EmitAddressRows(delta.EntityUpdates, addrCtxByKey, changebuilder.EntityAddress, addrResolve, extrasAddr); err != nil {
		return updatestrategy.BatchResult{}, err
	}
	extrasCluster := changebuilder.EntityRowExtras{
		ClusterAnchorAddressID: func(clusterID int64) int64 { return anchorByCluster[clusterID] },
	}
	if err := builder.EmitAddressRows(clusterDelta.EntityUpdates, clusterCtxByKey, changebuilder.EntityCluster, clusterResolve, extrasCluster); err != nil {
		return updatestrategy.BatchResult{}, err
	}
	nrNewAddresses := 0
	for _, c := range addrCtxByKey {
		if c.IsNew {
			nrNewAddresses++
		}
	}
	nrNewAddressRelations := 0
	for _, rel := range delta.RelationUpdates {
		key := string(rel.Src) + "\x00" + string(rel.Dst)
		if !existingOutAddr[key].Exists && !existingInAddr[key].Exists {
			nrNewAddressRelations++
		}
	}
	nrNewTx := 0
	for _, tx := range allTxs {
		if !tx.Failed {
			nrNewTx++
		}
	}
	var highestAddressID int64
	for _, id := range addrResolve {
		if id > highestAddressID {
			highestAddressID = id
		}
	}
	lastSyncedBlockTimestamp, err := raw.GetBlockTimestamp(ctx, endBlock)
	if err != nil {
		return updatestrategy.BatchResult{}, engineerr.SinkError("utxoprocessor: read block timestamp", err)
	}

	// See accountprocessor.go's equivalent call: fields mirror
	// deltahelpers.py's get_bookkeeping_changes, minus the two
	// non-deterministic ones (runtime_seconds, a wall-clock "now").
	builder.EmitBookkeeping(
		map[string]any{
			"no_blocks":            endBlock - startBlock + 1,
			"timestamp":            lastSyncedBlockTimestamp,
			"no_address_relations": nrNewAddressRelations,
			"no_addresses":         nrNewAddresses,
			"no_transactions":      nrNewTx,
		},
		map[string]any{
			"last_synced_block":           float64(endBlock),
			"last_synced_block_timestamp": lastSyncedBlockTimestamp,
			"highest_address_id":          highestAddressID,
			"write_new":                   false,
			"write_dirty":                 false,
		},
	)

	return updatestrategy.BatchResult{Delta: delta, Changes: builder.Changes()}, nil
}

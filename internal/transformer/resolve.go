package transformer

import (
	"context"

	"github.com/graphsense/graphsense-lib-sub000/internal/idalloc"
	"github.com/graphsense/graphsense-lib-sub000/internal/sink"
)

// ResolvedAddress is one entry of the batch-wide address->id resolution
// (spec.md 4.6 step 5): the allocated id plus whether it already existed in
// the store before this batch (IsNew false) or was freshly drawn from the
// allocator (IsNew true).
type ResolvedAddress struct {
	ID    int64
	IsNew bool
}

// ResolveAddressIDs looks up every address in ordered (already deduplicated,
// in the fixed appearance-stream order spec.md 4.6 step 5 requires) against
// the store, then draws fresh ids for every address the store doesn't know
// about, in the same order. Grounded on account.py's get_changes: the
// addr_ids = dict(tdb.get_address_id_async_batch(...)) existence check
// followed by get_next_address_ids_with_aliases for the misses.
func ResolveAddressIDs(ctx context.Context, tdb sink.TransformedSink, alloc *idalloc.Allocator, ordered [][]byte) (map[string]ResolvedAddress, error) {
	resolved := make(map[string]ResolvedAddress, len(ordered))
	var unseen []string
	seen := make(map[string]bool, len(ordered))

	for _, addr := range ordered {
		key := string(addr)
		if seen[key] {
			continue
		}
		seen[key] = true

		id, found, err := tdb.GetAddressID(ctx, addr)
		if err != nil {
			return nil, err
		}
		if found {
			resolved[key] = ResolvedAddress{ID: id, IsNew: false}
			continue
		}
		unseen = append(unseen, key)
	}

	existing := make(map[string]int64, len(unseen))
	alloc.AssignNewAddresses(unseen, existing)
	for _, key := range unseen {
		resolved[key] = ResolvedAddress{ID: existing[key], IsNew: true}
	}

	return resolved, nil
}

// ResolveClusterIDs is the UTXO dialect's cluster-layer counterpart of
// ResolveAddressIDs (spec.md 4.6: "address->cluster id is looked up").
// Addresses already carrying a cluster id (sink.AddressRow.HasClusterID)
// keep it; every other address in ordered draws a fresh cluster id from
// clusterAlloc, in appearance order, mirroring utxo.py's
// get_clusters/address_to_cluster_id closures — each new address starts
// life as the sole member of its own singleton cluster, merged with others
// only by the UTXO clustering heuristics, which are out of this engine's
// scope (spec.md Non-goals).
// newClusters collects the cluster ids freshly allocated this batch (as
// opposed to ones read back from an existing address row), so callers can
// tell ChangeBuilder which cluster entities are NEW vs UPDATE.
func ResolveClusterIDs(ctx context.Context, tdb sink.TransformedSink, addressIDs map[string]ResolvedAddress, clusterAlloc *idalloc.Allocator, ordered [][]byte) (clusterOf map[string]int64, newClusters map[int64]bool, err error) {
	clusterOf = make(map[string]int64, len(ordered))
	newClusters = make(map[int64]bool)
	seen := make(map[string]bool, len(ordered))

	for _, addr := range ordered {
		key := string(addr)
		if seen[key] {
			continue
		}
		seen[key] = true

		resolvedAddr, ok := addressIDs[key]
		if ok && !resolvedAddr.IsNew {
			row, found, err := tdb.GetAddress(ctx, resolvedAddr.ID)
			if err != nil {
				return nil, nil, err
			}
			if found && row.HasClusterID {
				clusterOf[key] = row.ClusterID
				continue
			}
		}
		id := clusterAlloc.Next()
		clusterOf[key] = id
		newClusters[id] = true
	}

	return clusterOf, newClusters, nil
}

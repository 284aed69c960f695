// Package boltsink implements sink.TransformedSink over a single embedded
// bbolt database, one bucket per logical table. Grounded on the teacher's
// node/store/db.go: bolt.Open with a short Timeout doubling as a process
// lock, CreateBucketIfNotExists at open time, and one bolt.Tx per
// operation. Unlike the teacher's store (which hand-encodes fixed binary
// layouts for consensus-critical headers), row values here are
// JSON-encoded — the schema is wide and evolving, and nothing here is
// consensus-critical, so the simpler encoding is preferred (see DESIGN.md).
package boltsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/graphsense/graphsense-lib-sub000/internal/deltamodel"
	"github.com/graphsense/graphsense-lib-sub000/internal/engineerr"
	"github.com/graphsense/graphsense-lib-sub000/internal/sink"
)

var (
	bucketAddressByID   = []byte("address_by_id")
	bucketAddressIDByAddr = []byte("address_id_by_address")
	bucketRelOut        = []byte("address_outgoing_relations")
	bucketRelIn         = []byte("address_incoming_relations")
	bucketBalance       = []byte("balance")
	bucketSecondaryMax  = []byte("secondary_ids_max")
	bucketExchangeRates = []byte("exchange_rates")
	bucketUpdaterStatus = []byte("delta_updater_status")
	bucketSummaryStats  = []byte("summary_statistics")
	bucketRaw           = []byte("raw_mirror") // rows of tables applyOne has no dedicated bucket for

	allBuckets = [][]byte{
		bucketAddressByID, bucketAddressIDByAddr, bucketRelOut, bucketRelIn,
		bucketBalance, bucketSecondaryMax, bucketExchangeRates,
		bucketUpdaterStatus, bucketSummaryStats, bucketRaw,
	}
)

// DB wraps a bbolt database as the transformed sink (spec.md section 6).
// lockTimeout mirrors the teacher's Timeout-as-lock idiom (spec.md section
// 5: "a process-wide lock file ... acquired non-blocking with a 1-second
// timeout at startup").
type DB struct {
	db *bolt.DB
}

func Open(path string, lockTimeout time.Duration) (*DB, error) {
	if lockTimeout <= 0 {
		lockTimeout = time.Second
	}
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, engineerr.SinkError("boltsink: open", err)
	}
	d := &DB{db: bdb}
	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, engineerr.SinkError("boltsink: init buckets", err)
	}
	return d, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func putJSON(tx *bolt.Tx, bucket, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put(key, b)
}

func getJSON(tx *bolt.Tx, bucket, key []byte, v any) (bool, error) {
	raw := tx.Bucket(bucket).Get(key)
	if raw == nil {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

var _ sink.TransformedSink = (*DB)(nil)

func (d *DB) GetAddressID(ctx context.Context, address []byte) (int64, bool, error) {
	var id int64
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		var e error
		ok, e = getJSON(tx, bucketAddressIDByAddr, address, &id)
		return e
	})
	if err != nil {
		return 0, false, engineerr.SinkError("boltsink: get address id", err)
	}
	return id, ok, nil
}

func (d *DB) GetAddress(ctx context.Context, id int64) (sink.AddressRow, bool, error) {
	var row sink.AddressRow
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		var e error
		ok, e = getJSON(tx, bucketAddressByID, addressIDKey(id), &row)
		return e
	})
	if err != nil {
		return sink.AddressRow{}, false, engineerr.SinkError("boltsink: get address", err)
	}
	return row, ok, nil
}

func addressIDKey(id int64) []byte {
	return []byte(fmt.Sprintf("%d", id))
}

func relationKey(src, dst int64) []byte {
	return []byte(fmt.Sprintf("%d:%d", src, dst))
}

func (d *DB) GetAddressIncomingRelations(ctx context.Context, dst, src int64) (sink.RelationRow, bool, error) {
	var row sink.RelationRow
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		var e error
		ok, e = getJSON(tx, bucketRelIn, relationKey(src, dst), &row)
		return e
	})
	if err != nil {
		return sink.RelationRow{}, false, engineerr.SinkError("boltsink: get incoming relation", err)
	}
	return row, ok, nil
}

func (d *DB) GetAddressOutgoingRelations(ctx context.Context, src, dst int64) (sink.RelationRow, bool, error) {
	var row sink.RelationRow
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		var e error
		ok, e = getJSON(tx, bucketRelOut, relationKey(src, dst), &row)
		return e
	})
	if err != nil {
		return sink.RelationRow{}, false, engineerr.SinkError("boltsink: get outgoing relation", err)
	}
	return row, ok, nil
}

func (d *DB) GetBalanceBatchAccount(ctx context.Context, ids []int64) (map[int64]deltamodel.BalanceDelta, error) {
	out := make(map[int64]deltamodel.BalanceDelta, len(ids))
	err := d.db.View(func(tx *bolt.Tx) error {
		for _, id := range ids {
			var stored deltamodel.BalanceDelta
			key := []byte(fmt.Sprintf("%d", id))
			ok, e := getJSON(tx, bucketBalance, key, &stored)
			if e != nil {
				return e
			}
			if ok {
				out[id] = stored
			}
		}
		return nil
	})
	if err != nil {
		return nil, engineerr.SinkError("boltsink: get balance batch", err)
	}
	return out, nil
}

func (d *DB) GetMaxSecondaryIDs(ctx context.Context, groups []int64, table, groupCol string) (map[int64]int64, error) {
	out := make(map[int64]int64, len(groups))
	err := d.db.View(func(tx *bolt.Tx) error {
		for _, g := range groups {
			var max int64
			key := []byte(fmt.Sprintf("%s:%s:%d", table, groupCol, g))
			ok, e := getJSON(tx, bucketSecondaryMax, key, &max)
			if e != nil {
				return e
			}
			if ok {
				out[g] = max
			}
		}
		return nil
	})
	if err != nil {
		return nil, engineerr.SinkError("boltsink: get max secondary ids", err)
	}
	return out, nil
}

func (d *DB) GetExchangeRatesByBlock(ctx context.Context, blockID int64) (sink.ExchangeRates, bool, error) {
	var rates sink.ExchangeRates
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		var e error
		ok, e = getJSON(tx, bucketExchangeRates, blockKey(blockID), &rates)
		return e
	})
	if err != nil {
		return sink.ExchangeRates{}, false, engineerr.SinkError("boltsink: get exchange rates", err)
	}
	return rates, ok, nil
}

func (d *DB) GetSummaryStatistics(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := d.db.View(func(tx *bolt.Tx) error {
		_, e := getJSON(tx, bucketSummaryStats, []byte("current"), &out)
		return e
	})
	if err != nil {
		return nil, engineerr.SinkError("boltsink: get summary statistics", err)
	}
	return out, nil
}

func (d *DB) GetDeltaUpdaterStatus(ctx context.Context) (sink.UpdaterStatus, bool, error) {
	var status sink.UpdaterStatus
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		var e error
		ok, e = getJSON(tx, bucketUpdaterStatus, []byte("current"), &status)
		return e
	})
	if err != nil {
		return sink.UpdaterStatus{}, false, engineerr.SinkError("boltsink: get updater status", err)
	}
	return status, ok, nil
}

func blockKey(blockID int64) []byte {
	return []byte(fmt.Sprintf("%d", blockID))
}

// ApplyChanges writes the ordered change list inside a single bolt.Tx when
// atomic is true, giving all-or-nothing visibility for free from bbolt's
// own transaction semantics; non-atomic mode still uses one transaction
// per call here since bbolt has no cheaper granularity to offer (spec.md
// 4.9: "implementations MAY use a batched write when the sink supports
// it").
func (d *DB) ApplyChanges(ctx context.Context, changes []deltamodel.DbChange, atomic bool) error {
	err := d.db.Update(func(tx *bolt.Tx) error {
		for _, c := range changes {
			if err := applyOne(tx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return engineerr.SinkError("boltsink: apply changes", err)
	}
	return nil
}

// addressID extracts an address_id/cluster_id column value as int64,
// tolerating the float64 shape json.Unmarshal would have produced had the
// value round-tripped through encoding (it hasn't, here, but ApplyChanges
// callers in tests sometimes build literals that way).
func addressID(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func applyOne(tx *bolt.Tx, c deltamodel.DbChange) error {
	switch c.Table {
	case "address", "cluster":
		id := addressID(c.Data["address_id"])
		if c.Table == "cluster" {
			id = addressID(c.Data["cluster_id"])
		}
		return putJSON(tx, bucketAddressByID, addressIDKey(id), c.Data)
	case "address_ids_by_address_prefix":
		addr, _ := c.Data["address"].([]byte)
		id := addressID(c.Data["address_id"])
		return putJSON(tx, bucketAddressIDByAddr, addr, id)
	case "address_outgoing_relations", "cluster_outgoing_relations":
		src := addressID(c.Data["src_address_id"])
		dst := addressID(c.Data["dst_address_id"])
		return putJSON(tx, bucketRelOut, relationKey(src, dst), c.Data)
	case "address_incoming_relations", "cluster_incoming_relations":
		src := addressID(c.Data["src_address_id"])
		dst := addressID(c.Data["dst_address_id"])
		return putJSON(tx, bucketRelIn, relationKey(src, dst), c.Data)
	case "balance":
		id := addressID(c.Data["address_id"])
		return putJSON(tx, bucketBalance, addressIDKey(id), c.Data)
	case "summary_statistics":
		return putJSON(tx, bucketSummaryStats, []byte("current"), c.Data)
	case "delta_updater_status":
		return putJSON(tx, bucketUpdaterStatus, []byte("current"), c.Data)
	case "delta_updater_history":
		key := []byte(fmt.Sprintf("%d", c.Seq))
		return putJSON(tx, bucketUpdaterStatus, key, c.Data)
	default:
		// transaction_ids_by_*, block_transactions, *_secondary_ids,
		// cluster_addresses and any other bookkeeping table not read back
		// by this engine are still written, keyed by (table, seq), so
		// apply_changes remains total over its input.
		key := []byte(fmt.Sprintf("%s:%d", c.Table, c.Seq))
		return putJSON(tx, bucketRaw, key, c.Data)
	}
}

func (d *DB) EnsureTableExists(ctx context.Context, name string, columns []string, primaryKeys []string, truncate bool) error {
	bucket := []byte(name)
	return d.db.Update(func(tx *bolt.Tx) error {
		if truncate {
			_ = tx.DeleteBucket(bucket)
		}
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
}

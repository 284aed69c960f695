// Command deltaupdate runs the delta-update engine's batch loop: it
// reads raw chain data, transforms it into the address-centric schema,
// and writes changes to the configured sink. Grounded on cmd/rubin-node's
// run(args, stdout, stderr) int shape: flag parsing, validated config,
// explicit exit codes, signal-driven shutdown.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/graphsense/graphsense-lib-sub000/internal/codec"
	"github.com/graphsense/graphsense-lib-sub000/internal/config"
	"github.com/graphsense/graphsense-lib-sub000/internal/deltamodel"
	"github.com/graphsense/graphsense-lib-sub000/internal/idalloc"
	"github.com/graphsense/graphsense-lib-sub000/internal/logx"
	"github.com/graphsense/graphsense-lib-sub000/internal/recovery"
	"github.com/graphsense/graphsense-lib-sub000/internal/sink"
	"github.com/graphsense/graphsense-lib-sub000/internal/sink/boltsink"
	"github.com/graphsense/graphsense-lib-sub000/internal/transformer"
	"github.com/graphsense/graphsense-lib-sub000/internal/updatestrategy"
)

// Exit codes (spec.md section 5: "Exit codes (core)").
const (
	exitOK                  = 0
	exitRuntimeError        = 1 // not part of spec.md's reserved codes; covers failures none of the named codes describe
	exitConfigError         = 10
	exitDeltaUpdateDisabled = 125
	exitExchangeRateGap     = 92
	exitLockContention      = 911
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// newRawSinkFn and newBatchProcessorFn are extension seams: a concrete
// deployment supplies a chain-specific raw store and a dialect-specific
// BatchProcessor (account vs UTXO) built on internal/transformer and
// internal/changebuilder. Left as package vars, in the teacher's style of
// newSyncEngineFn/newMinerFn, so tests can substitute fakes.
var newRawSinkFn = func(cfg config.Config) (sink.RawSink, error) {
	return nil, fmt.Errorf("deltaupdate: no raw sink wired for network %q; supply one via newRawSinkFn", cfg.Network)
}

var newBatchProcessorFn = func(cfg config.Config, allocator *idalloc.Allocator) updatestrategy.BatchProcessor {
	network, ok := networkByName(cfg.Network)
	if !ok {
		return noopBatchProcessor{}
	}
	tcfg := transformer.Config{
		NativeSymbol:    nativeSymbol(network),
		BlockBucketSize: int64(cfg.BlockBucketSize),
		ValidationMode:  cfg.ValidationMode,
	}
	switch cfg.Dialect {
	case config.DialectUTXO:
		return transformer.NewUTXOBatchProcessor(tcfg, allocator, idalloc.New(-1), idalloc.New(-1))
	default:
		return transformer.NewAccountBatchProcessor(tcfg, allocator, network, nil)
	}
}

// networkByName resolves a configured network name to its codec.Network,
// the way config.Config carries the name as a plain string (JSON/flag
// friendly) while every codec/transformer call needs the struct.
func networkByName(name string) (codec.Network, bool) {
	switch name {
	case codec.ETH.Name:
		return codec.ETH, true
	case codec.TRX.Name:
		return codec.TRX, true
	case codec.BTC.Name:
		return codec.BTC, true
	case codec.LTC.Name:
		return codec.LTC, true
	default:
		return codec.Network{}, false
	}
}

// nativeSymbol is the fiat-pricing symbol NativeCoinPricesForBlock expects
// (spec.md 4.6 step 7); UTXO dialects don't price at the entity level, so
// only the account dialect's two networks matter here.
func nativeSymbol(network codec.Network) string {
	switch network.Kind {
	case codec.KindTron:
		return "TRX"
	default:
		return "ETH"
	}
}

// noopBatchProcessor is the BatchProcessor newBatchProcessorFn falls back
// to when cfg.Network does not name a known network: it produces no
// changes. Run() still exercises the full lifecycle (lock, recovery,
// checkpoint, safety checks) against it, and tests substitute it to drive
// the orchestration loop without a live chain connector.
type noopBatchProcessor struct{}

func (noopBatchProcessor) ProcessBatch(ctx context.Context, startBlock, endBlock int64, raw sink.RawSink, transformed sink.TransformedSink) (updatestrategy.BatchResult, error) {
	return updatestrategy.BatchResult{Delta: deltamodel.DbDelta{}}, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := config.DefaultConfig()
	cfg := defaults

	fs := flag.NewFlagSet("deltaupdate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "path to a JSON config file; flags below override its values")
	fs.StringVar(&cfg.Network, "network", defaults.Network, "network name (eth/trx/btc/ltc)")
	dialect := fs.String("dialect", string(defaults.Dialect), "dialect: account|utxo")
	fs.StringVar(&cfg.RawKeyspace, "raw-keyspace", defaults.RawKeyspace, "raw sink keyspace/namespace")
	fs.StringVar(&cfg.TransformedKeyspace, "transformed-keyspace", defaults.TransformedKeyspace, "transformed sink keyspace/namespace")
	fs.IntVar(&cfg.BatchSize, "batch-size", defaults.BatchSize, "blocks per batch")
	applyMode := fs.String("apply-mode", string(defaults.ApplyMode), "apply mode: batch|per_tx")
	fs.BoolVar(&cfg.ForwardFillRates, "forward-fill-rates", defaults.ForwardFillRates, "carry the last exchange rate vector forward on a gap")
	fs.BoolVar(&cfg.DisableSafetyChecks, "disable-safety-checks", defaults.DisableSafetyChecks, "skip start_block continuity checks")
	fs.BoolVar(&cfg.StrictExchangeRates, "strict-exchange-rates", defaults.StrictExchangeRates, "treat a missing exchange rate as fatal")
	fs.BoolVar(&cfg.PatchMode, "patch-mode", defaults.PatchMode, "allow re-processing blocks at or below the last synced block")
	fs.BoolVar(&cfg.ValidationMode, "validation-mode", defaults.ValidationMode, "pedantic ChangeBuilder pre-checks")
	fs.BoolVar(&cfg.DisableDeltaUpdates, "disable-delta-updates", defaults.DisableDeltaUpdates, "refuse to run (operational kill switch)")
	fs.Int64Var(&cfg.StartBlock, "start-block", defaults.StartBlock, "first block to process; -1 infers from delta_updater_status")
	fs.Int64Var(&cfg.EndBlock, "end-block", defaults.EndBlock, "last block to process; -1 means unbounded")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	fs.IntVar(&cfg.LockTimeoutMillis, "lock-timeout-millis", defaults.LockTimeoutMillis, "non-blocking lock acquisition timeout")
	dataDir := fs.String("datadir", "", "directory holding the sink file and recovery hint (required)")
	validate := fs.Bool("validate", false, "check exchange-rate coverage over [start-block, end-block] and exit without applying changes")
	dryRun := fs.Bool("dry-run", false, "print the effective config and exit")

	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}

	if *configPath != "" {
		if err := loadConfigFile(*configPath, &cfg); err != nil {
			fmt.Fprintf(stderr, "config file load failed: %v\n", err)
			return exitConfigError
		}
	}
	cfg.Dialect = config.Dialect(*dialect)
	cfg.ApplyMode = config.ApplyMode(*applyMode)

	if err := config.ValidateConfig(cfg); err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return exitConfigError
	}
	if *dataDir == "" {
		fmt.Fprintln(stderr, "invalid config: -datadir is required")
		return exitConfigError
	}

	if err := printConfig(stdout, cfg); err != nil {
		fmt.Fprintf(stderr, "config encode failed: %v\n", err)
		return exitConfigError
	}
	if *dryRun {
		return exitOK
	}

	if cfg.DisableDeltaUpdates {
		fmt.Fprintln(stderr, "delta updates disabled by config")
		return exitDeltaUpdateDisabled
	}

	if err := os.MkdirAll(*dataDir, 0o750); err != nil {
		fmt.Fprintf(stderr, "datadir create failed: %v\n", err)
		return exitConfigError
	}

	level, err := logx.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "invalid log level: %v\n", err)
		return exitConfigError
	}
	log := logx.New(stdout, level)

	rawSink, err := newRawSinkFn(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "raw sink init failed: %v\n", err)
		return exitConfigError
	}

	if *validate {
		return runValidate(context.Background(), cfg, rawSink, stdout, stderr)
	}

	dbPath := filepath.Join(*dataDir, cfg.TransformedKeyspace+".bolt")
	lockTimeout := time.Duration(cfg.LockTimeoutMillis) * time.Millisecond
	transformedSink, err := boltsink.Open(dbPath, lockTimeout)
	if err != nil {
		fmt.Fprintf(stderr, "transformed sink open failed (lock contention or I/O error): %v\n", err)
		return exitLockContention
	}
	defer transformedSink.Close()

	rec := recovery.New(*dataDir, cfg.RawKeyspace, cfg.TransformedKeyspace)
	if rec.IsInRecoveryMode() {
		hint, herr := rec.GetRecoveryHint()
		if herr == nil {
			log.Warn("resuming from a crash; last recovery hint: %v", hint)
		}
	}

	allocator := idalloc.New(-1) // TODO: seed from the sink's persisted highest-assigned counter once a concrete raw/transformed store exposes one.
	processor := newBatchProcessorFn(cfg, allocator)
	strategy := updatestrategy.New(cfg, rawSink, transformedSink, allocator, rec, processor, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := strategy.Run(ctx, cfg.EndBlock); err != nil {
		if ctx.Err() != nil {
			log.Info("stopped by signal")
			return exitOK
		}
		fmt.Fprintf(stderr, "delta update failed: %v\n", err)
		return exitRuntimeError
	}
	return exitOK
}

// runValidate implements the "validate mode" exit path: scan
// [start_block, end_block] for exchange-rate gaps without writing
// anything (spec.md section 5: "92 = exchange-rate gap found in
// validate mode").
func runValidate(ctx context.Context, cfg config.Config, rawSink sink.RawSink, stdout, stderr io.Writer) int {
	if cfg.StartBlock < 0 || cfg.EndBlock < 0 {
		fmt.Fprintln(stderr, "validate mode requires explicit -start-block and -end-block")
		return exitConfigError
	}
	ids := make([]int64, 0, cfg.EndBlock-cfg.StartBlock+1)
	for b := cfg.StartBlock; b <= cfg.EndBlock; b++ {
		ids = append(ids, b)
	}
	rates, err := rawSink.GetExchangeRatesForBlockBatch(ctx, ids)
	if err != nil {
		fmt.Fprintf(stderr, "exchange rate lookup failed: %v\n", err)
		return exitRuntimeError
	}
	seen := make(map[int64]bool, len(rates))
	for _, r := range rates {
		seen[r.BlockID] = true
	}
	var gaps []int64
	for _, b := range ids {
		if !seen[b] {
			gaps = append(gaps, b)
		}
	}
	if len(gaps) > 0 {
		fmt.Fprintf(stderr, "exchange rate gap at blocks %v\n", gaps)
		return exitExchangeRateGap
	}
	fmt.Fprintln(stdout, "no exchange rate gaps found")
	return exitOK
}

func printConfig(w io.Writer, cfg config.Config) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

func loadConfigFile(path string, cfg *config.Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, cfg)
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nftops/mintbatch/internal/audit"
	"github.com/nftops/mintbatch/internal/backoff"
	"github.com/nftops/mintbatch/internal/identity"
	"github.com/nftops/mintbatch/internal/ledger"
	"github.com/nftops/mintbatch/internal/lock"
	"github.com/nftops/mintbatch/internal/manifest"
	"github.com/nftops/mintbatch/internal/mint"
	"github.com/nftops/mintbatch/internal/model"
	"github.com/nftops/mintbatch/internal/orchestrator"
	"github.com/nftops/mintbatch/internal/report"
	"github.com/nftops/mintbatch/internal/transport"
	"github.com/nftops/mintbatch/internal/watch"
	"github.com/nftops/mintbatch/internal/yamlutil"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun(os.Args[2:])
	case "verify":
		runVerify(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "version":
		fmt.Printf("mintbatch %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `mintbatch - batch NFT minting against a remote ledger

Usage:
  mintbatch run <manifest.yaml> [options]     mint every entry in the manifest
  mintbatch verify <manifest.yaml> [options]  validate entries without minting
  mintbatch status [options]                  show the progress ledger
  mintbatch watch <dir> [options]             mint manifests dropped into a directory
  mintbatch version                           print version
  mintbatch help                              show this help

Options:
  --config <path>        YAML config file
  --keypair <path>       mint authority keypair (JSON byte array or base58)
  --network <name>       devnet|testnet|mainnet or an RPC URL
  --ledger <path>        progress ledger file (default: <manifest>.ledger.yaml)
  --audit-log <path>     JSONL audit log file
  --concurrency <n>      max in-flight mint calls
  --max-attempts <n>     attempts per entry before terminal failure
  --base-backoff <ms>    initial retry delay
  --max-backoff <ms>     retry delay cap
  --timeout <sec>        per-call timeout
  --rate <n>             max mint calls per second (0 = unlimited)
  --resume               skip entries the ledger already records as succeeded
  --yes, -y              mint entries without content sources unprompted
  --json                 machine-readable output
  --log-level <level>    debug|info|warn|error
  --debounce <sec>       watch mode settle time
`)
}

// runOptions carries everything parsed from flags plus the merged config.
type runOptions struct {
	configPath  string
	keypairPath string
	ledgerPath  string
	jsonOutput  bool
	yes         bool
	debounceSec int

	cfg model.Config
}

// parseRunFlags merges, lowest precedence first: built-in defaults, the
// config file, then explicit flags.
func parseRunFlags(args []string, usage string) (rest []string, opts runOptions) {
	type override func(*model.Config)
	var overrides []override

	value := func(i *int, name string) string {
		if *i+1 >= len(args) {
			fmt.Fprintf(os.Stderr, "%s requires a value\n", name)
			os.Exit(1)
		}
		*i++
		return args[*i]
	}
	intValue := func(i *int, name string) int {
		v := value(i, name)
		n, err := strconv.Atoi(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid %s value: %s\n", name, v)
			os.Exit(1)
		}
		return n
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			opts.configPath = value(&i, "--config")
		case "--keypair":
			opts.keypairPath = value(&i, "--keypair")
		case "--ledger":
			opts.ledgerPath = value(&i, "--ledger")
		case "--audit-log":
			v := value(&i, "--audit-log")
			overrides = append(overrides, func(c *model.Config) { c.Audit.Path = v })
		case "--network":
			v := value(&i, "--network")
			overrides = append(overrides, func(c *model.Config) { c.Network.Endpoint = v })
		case "--concurrency":
			n := intValue(&i, "--concurrency")
			overrides = append(overrides, func(c *model.Config) { c.Mint.Concurrency = n })
		case "--max-attempts":
			n := intValue(&i, "--max-attempts")
			overrides = append(overrides, func(c *model.Config) { c.Mint.MaxAttempts = n })
		case "--base-backoff":
			n := intValue(&i, "--base-backoff")
			overrides = append(overrides, func(c *model.Config) { c.Mint.BaseBackoffMs = n })
		case "--max-backoff":
			n := intValue(&i, "--max-backoff")
			overrides = append(overrides, func(c *model.Config) { c.Mint.MaxBackoffMs = n })
		case "--timeout":
			n := intValue(&i, "--timeout")
			overrides = append(overrides, func(c *model.Config) { c.Mint.PerCallTimeoutSec = n })
		case "--rate":
			v := value(&i, "--rate")
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid --rate value: %s\n", v)
				os.Exit(1)
			}
			overrides = append(overrides, func(c *model.Config) { c.Mint.RatePerSec = f })
		case "--resume":
			overrides = append(overrides, func(c *model.Config) { c.Mint.Resume = true })
		case "--yes", "-y":
			opts.yes = true
		case "--json":
			opts.jsonOutput = true
		case "--log-level":
			v := value(&i, "--log-level")
			overrides = append(overrides, func(c *model.Config) { c.Logging.Level = v })
		case "--debounce":
			opts.debounceSec = intValue(&i, "--debounce")
		default:
			if strings.HasPrefix(args[i], "-") {
				fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: %s\n", args[i], usage)
				os.Exit(1)
			}
			rest = append(rest, args[i])
		}
	}

	opts.cfg = model.DefaultConfig()
	if opts.configPath != "" {
		if err := yamlutil.ReadInto(opts.configPath, &opts.cfg); err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}
	for _, ov := range overrides {
		ov(&opts.cfg)
	}
	opts.cfg.ApplyDefaults()
	return rest, opts
}

func runRun(args []string) {
	rest, opts := parseRunFlags(args, "mintbatch run <manifest.yaml> [options]")
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "usage: mintbatch run <manifest.yaml> [options]")
		os.Exit(1)
	}
	manifestPath := rest[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := executeRun(ctx, manifestPath, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted; progress is preserved in the ledger, re-run with --resume")
			printSummary(summary, opts.jsonOutput)
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(2)
	}

	printSummary(summary, opts.jsonOutput)
	switch {
	case summary.Aborted:
		os.Exit(2)
	case summary.Failed > 0:
		os.Exit(1)
	}
}

func executeRun(ctx context.Context, manifestPath string, opts runOptions) (model.BatchSummary, error) {
	var summary model.BatchSummary

	entries, err := manifest.Load(manifestPath)
	if err != nil {
		return summary, err
	}

	if opts.keypairPath == "" {
		return summary, errors.New("--keypair is required")
	}
	signer, err := identity.Load(opts.keypairPath)
	if err != nil {
		return summary, fmt.Errorf("load mint authority: %w", err)
	}

	if !opts.yes {
		if err := confirmContentless(entries); err != nil {
			return summary, err
		}
	}

	ledgerPath := opts.ledgerPath
	if ledgerPath == "" {
		ledgerPath = ledger.DefaultPath(manifestPath)
	}
	store, err := ledger.Open(ledgerPath, lock.NewMutexMap())
	if err != nil {
		return summary, err
	}
	defer store.Close()

	var sink audit.Sink = audit.Nop{}
	if opts.cfg.Audit.Path != "" {
		auditor, err := audit.NewLogger(opts.cfg.Audit.Path, opts.cfg.Audit.MaxBytes)
		if err != nil {
			return summary, err
		}
		defer auditor.Close()
		sink = auditor
	}

	logger := log.New(os.Stderr, "", 0)
	logLevel := orchestrator.ParseLogLevel(opts.cfg.Logging.Level)

	timeout := time.Duration(opts.cfg.Mint.PerCallTimeoutSec) * time.Second
	caller := transport.NewSolana(opts.cfg.Network.Endpoint, signer, timeout)

	policy := backoff.New(
		opts.cfg.Mint.MaxAttempts,
		time.Duration(opts.cfg.Mint.BaseBackoffMs)*time.Millisecond,
		time.Duration(opts.cfg.Mint.MaxBackoffMs)*time.Millisecond,
	)

	runID, err := model.GenerateRunID()
	if err != nil {
		return summary, err
	}
	orch := orchestrator.New(
		orchestrator.Options{
			RunID:        runID,
			ManifestPath: manifestPath,
			Config:       opts.cfg.Mint,
		},
		mint.NewBuilder(signer.PublicKey()),
		caller,
		policy,
		store,
		sink,
		logger,
		logLevel,
	)

	summary, runErr := orch.Run(ctx, entries)

	metricsPath := strings.TrimSuffix(ledgerPath, ".yaml") + ".metrics.yaml"
	if err := yamlutil.AtomicWrite(metricsPath, orch.Metrics()); err != nil {
		logger.Printf("write metrics snapshot: %v", err)
	}

	return summary, runErr
}

// confirmContentless prompts before minting entries that carry no content
// source at all, since those produce tokens with metadata only. Without a
// terminal it warns and proceeds instead of blocking on stdin.
func confirmContentless(entries []model.ManifestEntry) error {
	var ids []string
	for _, e := range entries {
		if !e.Content.HasSource() {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	fmt.Fprintf(os.Stderr, "%d entries have no content source and will mint metadata-only tokens: %s\n",
		len(ids), strings.Join(ids, ", "))

	stat, err := os.Stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice == 0 {
		return nil
	}
	fmt.Fprint(os.Stderr, "continue? [y/N] ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	if answer != "y" && answer != "yes" {
		return errors.New("aborted by operator")
	}
	return nil
}

func printSummary(summary model.BatchSummary, jsonOutput bool) {
	if summary.RunID == "" {
		return
	}
	var err error
	if jsonOutput {
		err = report.WriteJSON(os.Stdout, summary)
	} else {
		err = report.WriteText(os.Stdout, summary)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "print summary: %v\n", err)
	}
}

func runVerify(args []string) {
	rest, opts := parseRunFlags(args, "mintbatch verify <manifest.yaml> [options]")
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "usage: mintbatch verify <manifest.yaml> [options]")
		os.Exit(1)
	}

	entries, err := manifest.Load(rest[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify: %v\n", err)
		os.Exit(2)
	}

	// Verification needs an authority key only to stamp requests; any
	// placeholder works when no keypair is given.
	authority := "11111111111111111111111111111111"
	if opts.keypairPath != "" {
		signer, err := identity.Load(opts.keypairPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "verify: load mint authority: %v\n", err)
			os.Exit(2)
		}
		authority = signer.PublicKey()
	}

	builder := mint.NewBuilder(authority)
	invalid := 0
	for _, e := range entries {
		if _, err := builder.Build(e); err != nil {
			invalid++
			fmt.Printf("%s: INVALID: %v\n", e.ID, err)
		} else if !opts.jsonOutput {
			fmt.Printf("%s: ok\n", e.ID)
		}
	}

	fmt.Printf("%d entries, %d invalid\n", len(entries), invalid)
	if invalid > 0 {
		os.Exit(1)
	}
}

func runStatus(args []string) {
	rest, opts := parseRunFlags(args, "mintbatch status [--ledger <path>] [options]")

	ledgerPath := opts.ledgerPath
	if ledgerPath == "" && len(rest) == 1 {
		ledgerPath = ledger.DefaultPath(rest[0])
	}
	if ledgerPath == "" {
		fmt.Fprintln(os.Stderr, "usage: mintbatch status --ledger <path>  (or: mintbatch status <manifest.yaml>)")
		os.Exit(1)
	}

	store, err := ledger.Open(ledgerPath, lock.NewMutexMap())
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		os.Exit(2)
	}
	defer store.Close()

	if err := report.WriteLedgerText(os.Stdout, store.Records()); err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		os.Exit(2)
	}
}

func runWatch(args []string) {
	rest, opts := parseRunFlags(args, "mintbatch watch <dir> [options]")
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "usage: mintbatch watch <dir> [options]")
		os.Exit(1)
	}
	if opts.keypairPath == "" {
		fmt.Fprintln(os.Stderr, "watch: --keypair is required")
		os.Exit(1)
	}

	// Dropped manifests mint unattended, so resume on by default and no
	// interactive confirmation.
	opts.cfg.Mint.Resume = true
	opts.yes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.New(os.Stderr, "", log.LstdFlags)
	w := watch.New(rest[0], time.Duration(opts.debounceSec)*time.Second,
		func(ctx context.Context, manifestPath string) error {
			summary, err := executeRun(ctx, manifestPath, opts)
			printSummary(summary, opts.jsonOutput)
			return err
		}, logger)

	if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		os.Exit(2)
	}
}

// zylith-query answers read-only questions about a deployed privacy pool.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/colorfulnotion/zylith/client"
	"github.com/colorfulnotion/zylith/config"
	log "github.com/colorfulnotion/zylith/log"
	"github.com/colorfulnotion/zylith/poolerrors"
	"github.com/colorfulnotion/zylith/scanner"
	"github.com/colorfulnotion/zylith/selector"
	"github.com/colorfulnotion/zylith/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// app holds the state shared by every subcommand of one invocation.
type app struct {
	configPath    string
	rpcURL        string
	contract      string
	logLevel      string
	logFormat     string
	debugModules  string
	metricsListen string
	timeout       time.Duration
	jsonOut       bool

	cfg      config.Config
	client   *client.Client
	metrics  *telemetry.Metrics
	server   *telemetry.MetricsServer
	shutdown telemetry.ShutdownFunc
}

// setup loads configuration, applies flag overrides and starts logging,
// metrics and tracing.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("rpc") {
		cfg.RPCURL = a.rpcURL
	}
	if flags.Changed("contract") {
		cfg.Contract = a.contract
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if flags.Changed("debug") {
		cfg.Log.Modules = a.debugModules
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Listen = a.metricsListen
	}
	a.cfg = cfg

	if err := log.InitLogger(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("%w: %v", poolerrors.ErrInvalidConfiguration, err)
	}
	log.EnableModules(cfg.Log.Modules)

	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		a.metrics = telemetry.NewMetrics(reg)
		a.server, err = telemetry.NewMetricsServer(cfg.Metrics.Listen, reg)
		if err != nil {
			return fmt.Errorf("%w: metrics listen %s: %v", poolerrors.ErrInvalidConfiguration, cfg.Metrics.Listen, err)
		}
		a.server.Start()
	}

	a.shutdown, err = telemetry.InitTracing(cmd.Context(), cfg.TracingSettings())
	if err != nil {
		return err
	}
	return nil
}

// dial builds the pool client on first use.
func (a *app) dial(ctx context.Context) (*client.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	cc, err := a.cfg.ClientConfig(a.metrics)
	if err != nil {
		return nil, err
	}
	a.client, err = client.Dial(ctx, cc)
	if err != nil {
		return nil, err
	}
	return a.client, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.client != nil {
		a.client.Close()
	}
	if a.server != nil {
		a.server.Close(ctx)
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			log.Warn(log.RPCMonitoring, "tracer shutdown", "err", err)
		}
	}
}

// queryContext applies the --timeout flag to a command context.
func (a *app) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

func (a *app) print(cmd *cobra.Command, v interface{}) error {
	if a.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(render(v))
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), formatResult(v))
	return err
}

func (a *app) queryCommand(q query) *cobra.Command {
	use := q.cmd
	for _, arg := range q.args {
		use += " <" + arg + ">"
	}
	return &cobra.Command{
		Use:   use,
		Short: q.short,
		Args:  cobra.ExactArgs(len(q.args)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.queryContext(cmd.Context())
			defer cancel()
			c, err := a.dial(ctx)
			if err != nil {
				return err
			}
			result, err := q.run(ctx, c, args)
			if err != nil {
				return err
			}
			return a.print(cmd, result)
		},
	}
}

func (a *app) poolCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pool",
		Short: "Initialization flag and token pair of the pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.queryContext(cmd.Context())
			defer cancel()
			c, err := a.dial(ctx)
			if err != nil {
				return err
			}
			initialized, err := c.IsPoolInitialized(ctx)
			if err != nil {
				return err
			}
			out := map[string]interface{}{
				"contract":    c.Contract().Padded(),
				"initialized": initialized,
			}
			if initialized {
				t0, err := c.PoolToken0(ctx)
				if err != nil {
					return err
				}
				t1, err := c.PoolToken1(ctx)
				if err != nil {
					return err
				}
				out["token0"] = t0.Short()
				out["token1"] = t1.Short()
			}
			if a.jsonOut {
				return a.print(cmd, out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "contract:    %s\n", out["contract"])
			fmt.Fprintf(cmd.OutOrStdout(), "initialized: %v\n", initialized)
			if initialized {
				fmt.Fprintf(cmd.OutOrStdout(), "token0:      %s\n", out["token0"])
				fmt.Fprintf(cmd.OutOrStdout(), "token1:      %s\n", out["token1"])
			}
			return nil
		},
	}
}

func (a *app) depositsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "deposits",
		Short: "List Deposit events from the deployment block to the head",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.queryContext(cmd.Context())
			defer cancel()
			c, err := a.dial(ctx)
			if err != nil {
				return err
			}
			var printErr error
			printed := 0
			n, err := c.Deposits(ctx, func(d scanner.Deposit) bool {
				if a.jsonOut {
					printErr = a.print(cmd, d)
				} else {
					_, printErr = fmt.Fprintf(cmd.OutOrStdout(), "leaf=%d commitment=%s block=%d tx=%s\n",
						d.LeafIndex, d.Commitment.Short(), d.BlockNumber, d.TransactionHash.Short())
				}
				printed++
				return printErr == nil && (limit <= 0 || printed < limit)
			})
			if err != nil {
				return err
			}
			log.Info(log.ScanMonitoring, "deposits listed", "count", n)
			return printErr
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many deposits (0 lists all)")
	return cmd
}

func (a *app) diagnoseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Probe every storage candidate of the token pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.queryContext(cmd.Context())
			defer cancel()
			c, err := a.dial(ctx)
			if err != nil {
				return err
			}
			d, err := c.DiagnosePoolTokens(ctx)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.print(cmd, d)
			}
			fmt.Fprint(cmd.OutOrStdout(), diagnosisTree(c.Contract(), d).String())
			return nil
		},
	}
}

func (a *app) consoleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive JavaScript console bound to the pool queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.dial(cmd.Context())
			if err != nil {
				return err
			}
			return runConsole(cmd.Context(), c)
		},
	}
}

func selectorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "selector <name>",
		Short: "Starknet keccak selector of an entry point or event name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := selector.FromName(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), sel.Short())
			return err
		},
	}
}

// newRootCommand returns the command tree and a cleanup that releases the
// client, the metrics listener and the tracer.
func newRootCommand() (*cobra.Command, func()) {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "zylith-query",
		Short: "Read-only queries against a Starknet privacy pool",
		Long: `zylith-query reads merkle roots, nullifier and root membership, token
balances and allowances, the pool's token pair, and recovers deposit leaf
indices from the pool's event history.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "selector" {
				return nil
			}
			return a.setup(cmd)
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.StringVar(&a.rpcURL, "rpc", "", "Starknet JSON-RPC endpoint (overrides config and "+config.EnvRPCURL+")")
	pf.StringVar(&a.contract, "contract", "", "Pool contract address (overrides config and "+config.EnvContract+")")
	pf.StringVar(&a.logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", log.FormatText, "Log format: text or json")
	pf.StringVar(&a.debugModules, "debug", "", "Comma separated modules to log at debug level (rpc_mod,storage_mod,scan_mod,client_mod or all)")
	pf.StringVar(&a.metricsListen, "metrics", "", "Serve prometheus metrics on this address, e.g. :9101")
	pf.DurationVar(&a.timeout, "timeout", 0, "Overall deadline per command (0 disables)")
	pf.BoolVar(&a.jsonOut, "json", false, "Print results as JSON")

	for _, q := range queries {
		rootCmd.AddCommand(a.queryCommand(q))
	}
	rootCmd.AddCommand(
		a.poolCommand(),
		a.depositsCommand(),
		a.diagnoseCommand(),
		a.consoleCommand(),
		selectorCommand(),
	)
	return rootCmd, a.close
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd, cleanup := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	cleanup()
	if err != nil {
		code := poolerrors.GetErrorCode(err)
		if code == "" {
			code = "-"
		}
		fmt.Fprintf(os.Stderr, "error [%s]: %s\n", code, strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/theblitlabs/csvtrain/internal/config"
	"github.com/theblitlabs/csvtrain/internal/telemetry"
	"github.com/theblitlabs/csvtrain/internal/utils/errorutil"
	"github.com/theblitlabs/csvtrain/pkg/ipfs"
	"github.com/theblitlabs/csvtrain/pkg/logger"
)

// app holds the state shared by every subcommand of one invocation.
type app struct {
	in  io.Reader
	out io.Writer

	configPath string
	logLevel   string
	pretty     bool

	cfg      *config.Config
	shutdown telemetry.ShutdownFunc
	ipfs     *ipfs.Service
}

// exitError carries the exact line shown to the user while still matching
// its cause with errors.Is.
type exitError struct {
	msg string
	err error
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) Unwrap() error { return e.err }

// NewRootCommand assembles the csvtrain command tree.
func NewRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	cmd, _ := newRootCommand(in, out, errOut)
	return cmd
}

func newRootCommand(in io.Reader, out, errOut io.Writer) (*cobra.Command, *app) {
	a := &app{in: in, out: out}

	rootCmd := &cobra.Command{
		Use:   "csvtrain",
		Short: "Train small regression networks on CSV files",
		Long: `csvtrain loads a CSV file, preprocesses it, trains a small fully-connected
network on one or two numeric targets and prints a prediction or saves the
trained model together with its scaler.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML or JSON config file")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log", "info", "Log level: debug, info, warn, error, disabled")
	rootCmd.PersistentFlags().BoolVar(&a.pretty, "pretty", true, "Human readable console logs")

	rootCmd.AddCommand(
		a.predictCommand(),
		a.trainCommand(),
		a.trainEncodedCommand(),
		a.cleanCommand(),
		a.inferCommand(),
		a.historyCommand(),
	)
	return rootCmd, a
}

// setup loads the configuration and initializes logging and telemetry.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if cmd.Flags().Changed("log") {
		level = a.logLevel
	}
	pretty := cfg.Log.Pretty
	if cmd.Flags().Changed("pretty") {
		pretty = a.pretty
	}
	logger.Init(logger.Config{
		Level:  logger.LogLevel(level),
		Pretty: pretty,
		Output: cmd.ErrOrStderr(),
	})

	shutdown, err := telemetry.InitTelemetry(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return err
	}
	a.shutdown = shutdown
	return nil
}

// ipfsService returns the lazily created IPFS client.
func (a *app) ipfsService() *ipfs.Service {
	if a.ipfs == nil {
		a.ipfs = ipfs.New(ipfs.Config{
			APIEndpoint: a.cfg.IPFS.APIEndpoint,
			Timeout:     a.cfg.IPFS.Timeout,
		})
	}
	return a.ipfs
}

// Run executes the command line in args and returns the process exit code.
// Errors are printed as a single "Error: ..." line on errOut.
func Run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	rootCmd, a := newRootCommand(in, out, errOut)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	if a.shutdown != nil {
		errorutil.HandleError(logger.WithComponent("cli"), a.shutdown(context.Background()), "Failed to flush telemetry")
	}
	if err != nil {
		fmt.Fprintf(errOut, "Error: %s\n", err)
		return 1
	}
	return 0
}

// Execute runs csvtrain with the process arguments. SIGINT and SIGTERM
// cancel the command context.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

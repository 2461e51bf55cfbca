package main

import (
	"NetSpectraIDS/internal/config"
	"NetSpectraIDS/internal/logging"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	serverURL  string
	logLevel   string
	maxPackets uint64
	pcapFile   string
	enableAPI  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "ns-ids [interface]",
		Short: "Classify live network traffic with a remote intrusion detection model",
		Long: "ns-ids captures packets, derives NSL-KDD style features from each one and asks a\n" +
			"classification service whether the traffic looks like an attack.\n\n" +
			"Without arguments it lists the capture interfaces and exits, unless the status API is\n" +
			"enabled, in which case it serves the API and waits for sessions started through it.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if len(args) == 0 && opts.pcapFile == "" && !cfg.API.Enabled {
				return printInterfaces(cmd)
			}
			iface := ""
			if len(args) == 1 {
				iface = args[0]
			}
			return runCapture(cmd.Context(), cfg, opts, iface)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file")
	pf.StringVar(&opts.serverURL, "server-url", "", "classifier predict endpoint (overrides classifier.server_url)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log.level)")

	f := root.Flags()
	f.Uint64VarP(&opts.maxPackets, "max-packets", "n", 0, "stop after this many classified packets (0 = unbounded)")
	f.StringVar(&opts.pcapFile, "pcap", "", "replay a pcap file instead of capturing live")
	f.BoolVar(&opts.enableAPI, "api", false, "serve the status API (overrides api.enabled)")

	root.AddCommand(newHealthCmd(opts), newPredictCmd(opts), newWatchCmd(opts), newFeaturesCmd(opts))
	return root
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.serverURL != "" {
		cfg.Classifier.ServerURL = opts.serverURL
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.maxPackets > 0 {
		cfg.Session.MaxPackets = opts.maxPackets
	}
	if opts.enableAPI {
		cfg.API.Enabled = true
	}
	if opts.pcapFile != "" {
		// Replay reads faster than any classifier, so wait instead of dropping.
		cfg.Capture.Backpressure = config.BackpressureBlock
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logging.Setup(cfg.Log)
	return cfg, nil
}

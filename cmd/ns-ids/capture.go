package main

import (
	"NetSpectraIDS/internal/alerter"
	"NetSpectraIDS/internal/api"
	"NetSpectraIDS/internal/classifier"
	"NetSpectraIDS/internal/config"
	"NetSpectraIDS/internal/engine/capture"
	"NetSpectraIDS/internal/metrics"
	"NetSpectraIDS/internal/model"
	"NetSpectraIDS/internal/notification"
	"NetSpectraIDS/internal/probe"
	"NetSpectraIDS/internal/probe/persistent"
	"NetSpectraIDS/internal/session"
	"NetSpectraIDS/internal/snapshot"
	"NetSpectraIDS/internal/stats"
	"NetSpectraIDS/internal/storage"
	"NetSpectraIDS/pkg/pcap"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func printInterfaces(cmd *cobra.Command) error {
	ifaces, err := pcap.ListInterfaces()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(ifaces) == 0 {
		fmt.Fprintln(out, "No capture interfaces found.")
		return nil
	}
	fmt.Fprintln(out, "Available network interfaces:")
	for i, iface := range ifaces {
		fmt.Fprintf(out, "%d. %s", i+1, iface.Name)
		if iface.Description != "" {
			fmt.Fprintf(out, " (%s)", iface.Description)
		}
		fmt.Fprintln(out)
		if len(iface.Addresses) > 0 {
			fmt.Fprintf(out, "   Addresses: %s\n", strings.Join(iface.Addresses, ", "))
		}
	}
	return nil
}

func newOpener(cfg *config.Config, pcapFile string) capture.Opener {
	if pcapFile != "" {
		return func(string) (capture.Source, error) {
			r, err := pcap.NewReader(pcapFile)
			if err != nil {
				return nil, err
			}
			return r, nil
		}
	}
	return func(name string) (capture.Source, error) {
		s, err := pcap.OpenLive(name, cfg.Capture)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// addSinks wires every enabled detection sink into the controller.
func addSinks(ctx context.Context, cfg *config.Config, ctrl *session.Controller) error {
	if cfg.Persistence.Enabled {
		w, err := persistent.NewWorker(cfg.Persistence, uint32(cfg.Capture.SnapshotLen))
		if err != nil {
			return err
		}
		ctrl.AddSink(w)
	}
	if cfg.NATS.Enabled {
		pub, err := probe.NewPublisher(cfg.NATS)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		ctrl.AddSink(pub)
	}
	if cfg.ClickHouse.Enabled {
		w, err := storage.NewClickHouseWriter(ctx, cfg.ClickHouse)
		if err != nil {
			return err
		}
		ctrl.AddSink(w)
	}
	return nil
}

func runCapture(ctx context.Context, cfg *config.Config, opts *options, iface string) error {
	m := metrics.New()
	client, err := classifier.New(cfg.Classifier, m)
	if err != nil {
		return err
	}

	if opts.pcapFile != "" {
		iface = opts.pcapFile
	}
	engine := capture.NewEngine(cfg.Capture, newOpener(cfg, opts.pcapFile), pcap.ListInterfaces, client, m)
	ctrl := session.NewController(engine, stats.NewTracker())
	defer ctrl.Close()

	// Sessions end on their own (packet limit, end of file, read error) or
	// through the API, so their ends are collected from a hook.
	ended := make(chan sessionEnd)
	finished := make(chan struct{})
	defer close(finished)
	ctrl.OnSessionEnd(func(status session.Status, err error) {
		select {
		case ended <- sessionEnd{status: status, err: err}:
		case <-finished:
		}
	})

	if err := addSinks(ctx, cfg, ctrl); err != nil {
		return err
	}

	if cfg.Alerter.Enabled {
		var notifier model.Notifier
		if cfg.SMTP.Host != "" {
			notifier, err = notification.NewEmailNotifier(cfg.SMTP)
			if err != nil {
				return err
			}
		}
		a, err := alerter.NewAlerter(cfg.Alerter, ctrl, notifier)
		if err != nil {
			return err
		}
		a.Start()
		defer a.Stop()
	}

	apiCtx, cancelAPI := context.WithCancel(ctx)
	defer cancelAPI()
	if cfg.API.Enabled {
		shutdown, err := startAPI(apiCtx, cfg, ctrl, client, m)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	log.Info().Str("classifier", client.URL()).Msg("Using classifier")
	if iface != "" {
		if err := ctrl.StartBounded(iface, cfg.Session.MaxPackets); err != nil {
			return err
		}
	} else {
		log.Info().Str("addr", cfg.API.HttpListenAddr).Msg("No interface given, waiting for sessions started through the API")
	}

	progress := time.NewTicker(10 * time.Second)
	defer progress.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutdown signal received, stopping capture")
			if ctrl.Phase() == capture.PhaseIdle {
				return nil
			}
			ctrl.Stop()
			select {
			case end := <-ended:
				return finishSession(cfg, end)
			case <-time.After(cfg.Capture.JoinTimeout + time.Second):
				return nil
			}
		case end := <-ended:
			err := finishSession(cfg, end)
			if !cfg.API.Enabled {
				return err
			}
			log.Info().Msg("Session ended, waiting for sessions started through the API")
		case <-progress.C:
			if ctrl.Phase() == capture.PhaseCapturing {
				logStatistics(ctrl.Statistics(), "Capture progress")
			}
		}
	}
}

type sessionEnd struct {
	status session.Status
	err    error
}

func finishSession(cfg *config.Config, end sessionEnd) error {
	logStatistics(end.status.Statistics, "Capture finished")
	if cfg.Persistence.Enabled {
		writeReport(cfg.Persistence.Path, end.status, end.status.Interface, end.err)
	}
	return end.err
}

func writeReport(root string, status session.Status, iface string, sessionErr error) {
	report := snapshot.NewReport(status, iface, sessionErr)
	dir, err := snapshot.NewWriter(root).Write(report, time.Now().UTC().Format("20060102T150405Z"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to write session report")
		return
	}
	log.Info().Str("dir", dir).Msg("Session report written")
}

func logStatistics(s model.SessionStatistics, msg string) {
	log.Info().
		Uint64("total", s.TotalCaptured).
		Uint64("normal", s.NormalCount).
		Uint64("attack", s.AttackCount).
		Uint64("errors", s.ErrorCount).
		Uint64("dropped", s.Dropped).
		Str("attack_ratio", fmt.Sprintf("%.2f%%", s.AttackRatio()*100)).
		Msg(msg)
}

// startAPI serves the status API, the statistics stream and the gRPC health
// service until the returned function is called.
func startAPI(ctx context.Context, cfg *config.Config, ctrl *session.Controller, client *classifier.Client, m *metrics.Metrics) (func(), error) {
	var querier storage.Querier
	if cfg.ClickHouse.Enabled {
		q, err := storage.NewClickHouseQuerier(ctx, cfg.ClickHouse)
		if err != nil {
			return nil, err
		}
		querier = q
	}

	hub := newStatsHub(ctx, ctrl.Tracker())
	server := api.NewServer(cfg.API, ctrl, client, querier, hub, m)
	reporter := api.NewHealthReporter(client, cfg.API.HealthInterval, m)
	go reporter.Run(ctx)

	lis, err := net.Listen("tcp", cfg.API.GrpcListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.API.GrpcListenAddr, err)
	}
	go func() {
		if err := reporter.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC health server failed")
		}
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("API server failed")
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server forced to shutdown")
		}
		reporter.Stop()
		if querier != nil {
			querier.Close()
		}
		log.Info().Msg("API server exited")
	}, nil
}

// newStatsHub starts a statistics hub fed by tracker until ctx is done.
func newStatsHub(ctx context.Context, tracker *stats.Tracker) *api.StatsHub {
	hub := api.NewStatsHub()
	events, unsubscribe := tracker.Subscribe(64)
	go func() {
		defer unsubscribe()
		hub.Run(ctx, events)
	}()
	return hub
}

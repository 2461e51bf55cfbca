package main

import (
	"NetSpectraIDS/internal/classifier"
	"NetSpectraIDS/internal/engine/protocol"
	"NetSpectraIDS/internal/probe"
	"NetSpectraIDS/pkg/pcap"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/gopacket"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the classifier's readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			client, err := classifier.New(cfg.Classifier, nil)
			if err != nil {
				return err
			}

			h := client.Health(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Endpoint: %s\n", client.HealthURL())
			fmt.Fprintf(out, "Status: %s\n", h.Status)
			if h.ErrorMessage != "" {
				fmt.Fprintf(out, "Error: %s\n", h.ErrorMessage)
			} else {
				fmt.Fprintf(out, "Total features: %d\n", h.TotalFeatures)
				fmt.Fprintf(out, "Models loaded: encoder=%t features=%t model=%t scaler=%t\n",
					h.EncoderLoaded, h.FeaturesLoaded, h.ModelLoaded, h.ScalerLoaded)
			}
			if !h.IsHealthy() {
				return errors.New("classifier is not healthy")
			}
			return nil
		},
	}
}

func newPredictCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "predict \"key: value ...\"",
		Short:   "Classify a single manually entered feature record",
		Example: `  ns-ids predict "duration: 0 protocol_type: tcp service: http flag: SF src_bytes: 181 dst_bytes: 5450"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			features, err := classifier.ParseKeyValue(strings.Join(args, " "))
			if err != nil {
				return err
			}
			client, err := classifier.New(cfg.Classifier, nil)
			if err != nil {
				return err
			}

			p := client.ClassifyFeatures(cmd.Context(), features)
			fmt.Fprintln(cmd.OutOrStdout(), p.Formatted())
			if !p.Succeeded() {
				return errors.New("prediction failed")
			}
			return nil
		},
	}
}

func newWatchCmd(opts *options) *cobra.Command {
	var attacksOnly bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print detections published by running sessions over NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			sub, err := probe.NewSubscriber(cfg.NATS)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer sub.Close()

			out := cmd.OutOrStdout()
			err = sub.Start(func(ev probe.DetectionEvent) {
				if attacksOnly && !ev.IsAttack() {
					return
				}
				fmt.Fprintf(out, "%s %s:%d -> %s:%d %s/%s label=%s confidence=%.2f\n",
					ev.Timestamp.Format("15:04:05.000"), ev.SrcIP, ev.SrcPort, ev.DstIP, ev.DstPort,
					ev.Service, ev.Flag, ev.Label, ev.Confidence)
			})
			if err != nil {
				return err
			}

			<-cmd.Context().Done()
			log.Info().Msg("Shutdown signal received, cleaning up")
			return nil
		},
	}
	cmd.Flags().BoolVar(&attacksOnly, "attacks-only", false, "only print attack detections")
	return cmd
}

func newFeaturesCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "features <file.pcap>",
		Short: "Print the feature records extracted from a capture file without classifying them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(opts); err != nil {
				return err
			}
			reader, err := pcap.NewReader(args[0])
			if err != nil {
				return err
			}
			defer reader.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			read, skipped := 0, 0
			for limit <= 0 || read < limit {
				data, _, err := reader.ReadPacketData()
				if err == io.EOF {
					break
				}
				if err != nil {
					return fmt.Errorf("failed to read packet %d: %w", read+1, err)
				}
				read++

				record := protocol.ExtractFeatures(gopacket.NewPacket(data, reader.LinkType(), gopacket.Default))
				if record == nil {
					skipped++
					continue
				}
				if err := enc.Encode(record); err != nil {
					return err
				}
			}
			log.Info().Int("packets", read).Int("skipped", skipped).Msg("Finished extracting features")
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "stop after this many packets (0 reads the whole file)")
	return cmd
}

package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ewfx/sradg-ai-innovators/internal/config"
	"github.com/ewfx/sradg-ai-innovators/internal/detect"
	"github.com/ewfx/sradg-ai-innovators/internal/domain"
	"github.com/ewfx/sradg-ai-innovators/internal/features"
	"github.com/ewfx/sradg-ai-innovators/internal/ingest"
)

func newScanCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one batch from a CSV of trade records and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			records, err := ingest.ReadRecords(input)
			if err != nil {
				return err
			}
			log.Info().Int("records", len(records)).Str("input", input).Msg("scanning batch")

			pipe, cleanup, err := buildPipeline(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			anomalies, err := pipe.Run(cmd.Context(), records)
			if err != nil {
				return err
			}

			resolved := 0
			for _, a := range anomalies {
				if a.Feedback == domain.FeedbackResolvedByAgent {
					resolved++
				}
			}
			log.Info().
				Int("anomalies", len(anomalies)).
				Int("auto_resolved", resolved).
				Msg("scan complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Path to the trade record CSV")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newTrainCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Pre-fit the detector, clusterer and desk vocabulary from a training CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			records, err := ingest.ReadRecords(input)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("training file %s holds no records", input)
			}

			vocab := features.NewVocabStore(cfg.Data.VocabPath)
			builder := features.NewBuilder(vocab)
			_, vectors, err := builder.Build(records)
			if err != nil {
				return err
			}

			models := detect.NewStore(detect.Config{
				DetectorPath:  cfg.Data.DetectorPath,
				ClusterPath:   cfg.Data.ClusterPath,
				Contamination: cfg.Data.ContaminationRate,
				Clusters:      cfg.Data.NClusters,
				Seed:          cfg.Data.ModelSeed,
			})

			matrix := domain.Matrix(vectors)
			if _, err := models.Detect(matrix); err != nil {
				return err
			}
			if _, err := models.Cluster(matrix); err != nil {
				return err
			}

			log.Info().
				Int("rows", len(records)).
				Str("detector", cfg.Data.DetectorPath).
				Str("clusterer", cfg.Data.ClusterPath).
				Str("vocabulary", cfg.Data.VocabPath).
				Msg("models fitted and persisted")
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Path to the training CSV")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

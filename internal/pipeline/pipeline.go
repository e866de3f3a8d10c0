// Package pipeline sequences the anomaly-detection and resolution stages
// over a batch of trade-reconciliation records.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ewfx/sradg-ai-innovators/internal/detect"
	"github.com/ewfx/sradg-ai-innovators/internal/domain"
	"github.com/ewfx/sradg-ai-innovators/internal/features"
	"github.com/ewfx/sradg-ai-innovators/internal/llm"
	"github.com/ewfx/sradg-ai-innovators/internal/metrics"
	"github.com/ewfx/sradg-ai-innovators/internal/notify"
	"github.com/ewfx/sradg-ai-innovators/internal/persistence"
	"github.com/ewfx/sradg-ai-innovators/internal/resolution"
	"github.com/ewfx/sradg-ai-innovators/internal/validation"
)

// Options carries the pipeline's tunables and output wiring.
type Options struct {
	QuantityThreshold float64
	// Workers bounds the per-row LLM fan-out.
	Workers int
	// OutputTemplate is the anomaly CSV destination; {timestamp} expands
	// per batch. Empty disables the dump.
	OutputTemplate string
	// Recipient for the post-save notification. Empty disables it.
	Recipient string
}

// Pipeline runs feature building, scoring, clustering and resolution over a
// batch, then hands results to the persistence and notification
// collaborators. It is safe for concurrent use; shared model state is
// serialized inside the stores.
type Pipeline struct {
	builder  *features.Builder
	models   *detect.Store
	llm      llm.Capability
	resolver *resolution.Resolver
	saver    persistence.Saver
	repo     *persistence.PostgresRepo
	notifier notify.Notifier
	opts     Options
}

func New(
	builder *features.Builder,
	models *detect.Store,
	capability llm.Capability,
	resolver *resolution.Resolver,
	saver persistence.Saver,
	notifier notify.Notifier,
	opts Options,
) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	return &Pipeline{
		builder:  builder,
		models:   models,
		llm:      capability,
		resolver: resolver,
		saver:    saver,
		notifier: notifier,
		opts:     opts,
	}
}

// WithPostgres attaches an optional secondary persistence sink.
func (p *Pipeline) WithPostgres(repo *persistence.PostgresRepo) *Pipeline {
	p.repo = repo
	return p
}

// Run processes one batch end to end and returns the surviving anomaly
// records. Hard failures (feature build, model fit) abort the batch with no
// output; per-row capability failures degrade to sentinels; persistence and
// notification failures are logged and do not affect the returned set.
func (p *Pipeline) Run(ctx context.Context, records []domain.TradeRecord) ([]domain.AnomalyRecord, error) {
	start := time.Now()
	defer func() { metrics.PipelineDuration.Observe(time.Since(start).Seconds()) }()

	anomalies, err := p.detectAnomalies(records)
	if err != nil {
		metrics.BatchesProcessed.WithLabelValues("error").Inc()
		log.Error().Err(err).Int("rows", len(records)).Msg("pipeline aborted")
		return nil, err
	}

	resolution.InitFeedback(anomalies)
	p.categorize(ctx, anomalies)
	p.summarize(ctx, anomalies)

	anomalies = validation.FilterConsistent(anomalies, p.opts.QuantityThreshold)
	p.resolver.AutoResolve(ctx, anomalies)
	for _, rec := range anomalies {
		if rec.Feedback == domain.FeedbackResolvedByAgent {
			metrics.AnomaliesAutoResolved.Inc()
		}
	}

	p.persistAndNotify(ctx, anomalies)

	metrics.BatchesProcessed.WithLabelValues("ok").Inc()
	log.Info().Int("rows", len(records)).Int("anomalies", len(anomalies)).
		Dur("elapsed", time.Since(start)).Msg("pipeline batch complete")
	return anomalies, nil
}

// detectAnomalies runs the feature builder and both models, returning one
// AnomalyRecord per row the detector flagged, in RISKDATE order.
func (p *Pipeline) detectAnomalies(records []domain.TradeRecord) ([]domain.AnomalyRecord, error) {
	sorted, vectors, err := p.builder.Build(records)
	if err != nil {
		return nil, fmt.Errorf("feature build: %w", err)
	}
	if len(sorted) == 0 {
		return nil, nil
	}

	matrix := domain.Matrix(vectors)
	labels, err := p.models.Detect(matrix)
	if err != nil {
		return nil, fmt.Errorf("anomaly detection: %w", err)
	}
	clusters, err := p.models.Cluster(matrix)
	if err != nil {
		return nil, fmt.Errorf("pattern clustering: %w", err)
	}

	var anomalies []domain.AnomalyRecord
	for i, rec := range sorted {
		if labels[i] != domain.AnomalyYes {
			continue
		}
		anomalies = append(anomalies, domain.AnomalyRecord{
			TradeRecord:    rec,
			Anomaly:        labels[i],
			PatternCluster: clusters[i],
		})
	}
	metrics.AnomaliesFlagged.Add(float64(len(anomalies)))
	return anomalies, nil
}

// categorize fans the categorization capability out over the batch on a
// bounded worker pool. Results land positionally; one row's failure
// degrades that row to the Uncategorized sentinel only.
func (p *Pipeline) categorize(ctx context.Context, anomalies []domain.AnomalyRecord) {
	p.forEach(len(anomalies), func(i int) {
		category, err := p.llm.Categorize(ctx, anomalies[i].Comment)
		if err != nil {
			metrics.CapabilityFailures.WithLabelValues("categorize").Inc()
			log.Error().Err(err).Int64("trade_id", anomalies[i].TradeID).Msg("categorization failed")
			category = domain.CategoryUncategorized
		}
		anomalies[i].AnomalyCategory = category
	})
}

// summarize fans the summarization capability out the same way; failures
// degrade to the unavailability sentinel.
func (p *Pipeline) summarize(ctx context.Context, anomalies []domain.AnomalyRecord) {
	p.forEach(len(anomalies), func(i int) {
		summary, err := p.llm.Summarize(ctx, anomalies[i])
		if err != nil {
			metrics.CapabilityFailures.WithLabelValues("summarize").Inc()
			log.Error().Err(err).Int64("trade_id", anomalies[i].TradeID).Msg("summarization failed")
			summary = domain.SummaryUnavailable
		}
		anomalies[i].ResolutionSummary = summary
	})
}

// forEach runs fn(i) for i in [0, n) on at most opts.Workers goroutines.
func (p *Pipeline) forEach(n int, fn func(i int)) {
	if n == 0 {
		return
	}
	sem := make(chan struct{}, p.opts.Workers)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}

// persistAndNotify hands the final set to the output collaborators. All
// failures here are infrastructure errors: logged, never propagated.
func (p *Pipeline) persistAndNotify(ctx context.Context, anomalies []domain.AnomalyRecord) {
	if len(anomalies) == 0 {
		log.Info().Msg("no anomalies to persist")
		return
	}

	saved := false
	outputPath := ""
	if p.opts.OutputTemplate != "" {
		outputPath = persistence.OutputPath(p.opts.OutputTemplate, time.Now())
		if err := p.saver.Save(anomalies, outputPath); err != nil {
			metrics.CapabilityFailures.WithLabelValues("persist").Inc()
			log.Error().Err(err).Str("path", outputPath).Msg("anomaly dump failed")
		} else {
			saved = true
		}
	}

	if p.repo != nil {
		if err := p.repo.InsertBatch(ctx, anomalies); err != nil {
			metrics.CapabilityFailures.WithLabelValues("persist").Inc()
			log.Error().Err(err).Msg("postgres persistence failed")
		}
	}

	if saved && p.opts.Recipient != "" && p.notifier != nil {
		err := p.notifier.Notify(ctx,
			"Anomalies Detected",
			fmt.Sprintf("%d reconciliation anomalies detected. Report attached.", len(anomalies)),
			p.opts.Recipient,
			outputPath,
		)
		if err != nil {
			metrics.CapabilityFailures.WithLabelValues("notify").Inc()
			log.Error().Err(err).Msg("anomaly notification failed")
		}
	}
}

// Package assemble combines a study's fields with its aggregated samples.
package assemble

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/geo-harvester/internal/aggregate"
	"github.com/JakeFAU/geo-harvester/internal/extract"
	"github.com/JakeFAU/geo-harvester/internal/geo"
)

// Assembler fetches a study and its samples and builds an AssembledStudy.
type Assembler struct {
	fetcher    geo.DocumentFetcher
	extractor  *extract.Extractor
	aggregator *aggregate.Aggregator
	logger     *zap.Logger
}

// New constructs an Assembler. Nil extractor or aggregator get defaults.
func New(
	fetcher geo.DocumentFetcher,
	extractor *extract.Extractor,
	aggregator *aggregate.Aggregator,
	logger *zap.Logger,
) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = extract.New(logger)
	}
	if aggregator == nil {
		aggregator = aggregate.New()
	}
	return &Assembler{
		fetcher:    fetcher,
		extractor:  extractor,
		aggregator: aggregator,
		logger:     logger.Named("assemble"),
	}
}

// Assemble fetches the study document and then every sample in document
// order. A failed sample fetch aborts the whole study.
func (a *Assembler) Assemble(ctx context.Context, key geo.StudyKey) (geo.AssembledStudy, error) {
	doc, err := a.fetcher.Fetch(ctx, string(key))
	if err != nil {
		return geo.AssembledStudy{}, fmt.Errorf("study %s: %w", key, err)
	}
	meta := a.extractor.StudyFields(doc.Body)

	samples := make([]geo.SampleAttributes, 0, len(meta.Samples))
	for _, sampleKey := range meta.Samples {
		sampleDoc, err := a.fetcher.Fetch(ctx, string(sampleKey))
		if err != nil {
			return geo.AssembledStudy{}, fmt.Errorf("study %s sample %s: %w", key, sampleKey, err)
		}
		samples = append(samples, a.extractor.SampleFields(sampleDoc.Body))
	}

	a.logger.Debug("assembled study",
		zap.String("study_id", string(key)),
		zap.Int("samples", len(samples)),
		zap.Strings("platforms", meta.Platforms),
	)
	return geo.AssembledStudy{
		Key:            key,
		Metadata:       meta,
		SampleMetadata: a.aggregator.Aggregate(samples),
	}, nil
}

// OverallDesign fetches only the study document and returns its
// "Overall design" value, nil when absent.
func (a *Assembler) OverallDesign(ctx context.Context, key geo.StudyKey) (*string, error) {
	doc, err := a.fetcher.Fetch(ctx, string(key))
	if err != nil {
		return nil, fmt.Errorf("study %s: %w", key, err)
	}
	return a.extractor.StudyFields(doc.Body).OverallDesign, nil
}

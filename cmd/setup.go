package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/geomind-labs/geomind/internal/cache"
	"github.com/geomind-labs/geomind/internal/config"
	"github.com/geomind-labs/geomind/internal/exif"
	"github.com/geomind-labs/geomind/internal/pipeline"
	"github.com/geomind-labs/geomind/internal/verify"
	"github.com/geomind-labs/geomind/pkg/anthropic"
	"github.com/geomind-labs/geomind/pkg/geoclip"
	"github.com/geomind-labs/geomind/pkg/llm"
	"github.com/geomind-labs/geomind/pkg/vision"
)

// buildOrchestrator wires the pipeline from configuration.
func buildOrchestrator(c *config.Config) *pipeline.Orchestrator {
	client := anthropic.NewClient(c.Anthropic.Key)

	visionModel := vision.NewAnthropicModel(client, c.Anthropic.VisionModel,
		vision.WithSystemPrompt(pipeline.PerceptionSystemPrompt),
	)
	reasoningModel := llm.NewAnthropicModel(client, c.Anthropic.ReasoningModel,
		llm.WithSystemPrompt(pipeline.HypothesisSystemPrompt),
	)

	geoOpts := []geoclip.Option{geoclip.WithBaseURL(c.Retrieval.BaseURL)}
	if c.Retrieval.RateLimit > 0 {
		geoOpts = append(geoOpts, geoclip.WithRateLimit(c.Retrieval.RateLimit, int(c.Retrieval.RateLimit)))
	}
	retrievalClient := geoclip.NewClient(c.Retrieval.Key, geoOpts...)

	opts := pipeline.Options{
		LoopEnabled:         c.Session.LoopEnabled,
		MaxIterations:       c.Session.MaxIterations,
		ConfidenceThreshold: c.Session.ConfidenceThreshold,
		Strategy:            pipeline.Strategy(c.Session.Strategy),
		Verifiers:           c.Verify.Enabled,
		UseJudge:            c.Session.UseJudge,
		TopK:                c.Session.TopK,
		MaxHypotheses:       c.Session.MaxHypotheses,
		EXIFFallback:        c.Session.EXIFFallback,
	}

	return pipeline.New(
		visionModel,
		reasoningModel,
		retrievalClient,
		exif.NewReader(),
		verify.DefaultRegistry(),
		opts,
		pipeline.WithScorerWeights(c.Verify.PriorWeight, c.Verify.EvidenceWeight),
	)
}

// openCache opens the prediction cache, or returns nil when caching is
// disabled.
func openCache(ctx context.Context, c *config.Config) (*cache.Cache, error) {
	if c.Cache.Path == "" {
		return nil, nil
	}
	pc, err := cache.Open(c.Cache.Path, time.Duration(c.Cache.TTLHours)*time.Hour)
	if err != nil {
		return nil, eris.Wrap(err, "open prediction cache")
	}
	if err := pc.Migrate(ctx); err != nil {
		pc.Close()
		return nil, eris.Wrap(err, "migrate prediction cache")
	}
	zap.L().Debug("prediction cache ready", zap.String("path", c.Cache.Path))
	return pc, nil
}

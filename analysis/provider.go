// Package analysis abstracts the AI pipeline behind a Provider strategy
// chosen once at startup: the bundled demo dataset for local development, or
// a remote analyzer service in production. Call sites never branch on mode.
package analysis

import (
	"context"

	"github.com/sirupsen/logrus"

	"coherence/config"
	"coherence/core"
)

// Stage is one step of the processing pipeline as surfaced to pollers.
type Stage struct {
	Progress   int
	Label      string
	EtaSeconds int
}

// PipelineStages is the progress sequence shown while a job runs. The final
// 100% stage is written only when results are durably stored.
var PipelineStages = []Stage{
	{Progress: 10, Label: "Extracting audio...", EtaSeconds: 40},
	{Progress: 25, Label: "Transcribing speech...", EtaSeconds: 35},
	{Progress: 45, Label: "Analyzing body language...", EtaSeconds: 25},
	{Progress: 65, Label: "Detecting dissonance patterns...", EtaSeconds: 15},
	{Progress: 85, Label: "Generating coaching insights...", EtaSeconds: 8},
}

// FinalStage is the terminal happy-path stage.
var FinalStage = Stage{Progress: 100, Label: "Analysis complete!"}

// Provider produces a complete analysis for an uploaded video.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, meta core.VideoMeta) (*core.AnalysisResult, error)
}

// NewProvider resolves the configured analyzer strategy.
func NewProvider(cfg *config.Config, logger *logrus.Logger) Provider {
	if cfg.AnalyzerMode == "remote" {
		logger.WithField("url", cfg.AnalyzerURL).Info("Analyzer initialized: remote")
		return NewRemoteProvider(cfg.AnalyzerURL)
	}
	logger.Info("Analyzer initialized: demo")
	return NewDemoProvider()
}

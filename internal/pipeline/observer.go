package pipeline

import (
	"log/slog"
)

// Stage identifies a phase of the indexing pipeline.
type Stage string

const (
	// StageChunk splits documents into chunks.
	StageChunk Stage = "chunk"
	// StageEmbed converts chunks into vectors.
	StageEmbed Stage = "embed"
	// StageStore upserts chunks and vectors into the vector store.
	StageStore Stage = "store"
	// StageSave persists the store to disk.
	StageSave Stage = "save"
	// StageVerify runs a retrieval query against the finished index.
	StageVerify Stage = "verify"
)

// Observer receives progress events from a pipeline run. Implementations
// must be safe to call from the goroutine running the pipeline.
type Observer interface {
	// StageStarted is called when a stage begins. detail is human-readable.
	StageStarted(stage Stage, detail string)
	// StageCompleted is called when a stage finishes successfully.
	StageCompleted(stage Stage, detail string)
	// StageFailed is called once, for the stage whose error aborts the run.
	StageFailed(stage Stage, err error)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) StageStarted(Stage, string)   {}
func (NopObserver) StageCompleted(Stage, string) {}
func (NopObserver) StageFailed(Stage, error)     {}

// SlogObserver reports pipeline events through a structured logger.
type SlogObserver struct {
	Log *slog.Logger
}

// NewSlogObserver constructs a SlogObserver. A nil logger uses slog.Default.
func NewSlogObserver(log *slog.Logger) *SlogObserver {
	if log == nil {
		log = slog.Default()
	}
	return &SlogObserver{Log: log}
}

func (o *SlogObserver) StageStarted(stage Stage, detail string) {
	o.Log.Info("pipeline stage started", slog.String("stage", string(stage)), slog.String("detail", detail))
}

func (o *SlogObserver) StageCompleted(stage Stage, detail string) {
	o.Log.Info("pipeline stage completed", slog.String("stage", string(stage)), slog.String("detail", detail))
}

func (o *SlogObserver) StageFailed(stage Stage, err error) {
	o.Log.Error("pipeline stage failed", slog.String("stage", string(stage)), slog.Any("error", err))
}

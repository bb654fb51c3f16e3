package docsync

import "context"

// Recorder receives engine measurements.
type Recorder interface {
	RecordCycle(ctx context.Context, report *CycleReport)
	RecordDroppedTick(ctx context.Context)
	RecordEmbedding(ctx context.Context, err error)
	RecordIndexWrite(ctx context.Context, err error)
}

// NopRecorder discards all measurements.
type NopRecorder struct{}

func (NopRecorder) RecordCycle(context.Context, *CycleReport) {}
func (NopRecorder) RecordDroppedTick(context.Context)         {}
func (NopRecorder) RecordEmbedding(context.Context, error)    {}
func (NopRecorder) RecordIndexWrite(context.Context, error)   {}

package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BatchStats describes one pipeline invocation inside a run.
type BatchStats struct {
	Index     int
	Requested int
	Returned  int
	Saved     int
	Latency   time.Duration
}

func (b BatchStats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("index", b.Index)
	enc.AddInt("requested", b.Requested)
	enc.AddInt("returned", b.Returned)
	enc.AddInt("saved", b.Saved)
	enc.AddFloat64("latency_s", b.Latency.Seconds())
	return nil
}

// RunStats summarizes a finished generation run.
type RunStats struct {
	ModelID  string
	Mode     string
	Sampler  string
	Device   string
	Images   int
	Batches  int
	Duration time.Duration
}

func (r RunStats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("model_id", r.ModelID)
	enc.AddString("mode", r.Mode)
	enc.AddString("sampler", r.Sampler)
	enc.AddString("device", r.Device)
	enc.AddInt("images", r.Images)
	enc.AddInt("batches", r.Batches)
	enc.AddInt64("duration_ms", r.Duration.Milliseconds())
	if r.Images > 0 {
		enc.AddFloat64("seconds_per_image", r.Duration.Seconds()/float64(r.Images))
	}
	return nil
}

// BatchFields nests batch stats under a "batch" key.
//
//	logger.Info("batch done", logging.BatchFields(stats))
func BatchFields(b BatchStats) zap.Field {
	return zap.Object("batch", b)
}

// RunFields nests run stats under a "run" key.
func RunFields(r RunStats) zap.Field {
	return zap.Object("run", r)
}

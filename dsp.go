package bufferpool

import "github.com/google/uuid"

// Processor is an active external processing stage for one stream.
type Processor interface {
	// ChannelLayout, SampleRate and DataFormat describe the stage output.
	ChannelLayout() ChannelLayout
	SampleRate() int
	DataFormat() DataFormat

	// InputFormat is the format the stage was built to accept.
	InputFormat() AudioFormat

	// Delay is the processing latency in seconds.
	Delay() float64

	// Process runs the stage from in to out. conv is the downstream
	// converter, usable as a target layout reference; it may be nil.
	Process(in, out *SampleBuffer, conv Converter) bool
}

// StageRequest asks a StageManager to build (or rebuild) a stage.
type StageRequest struct {
	StreamID  uuid.UUID
	Input     AudioFormat
	Output    AudioFormat
	Upmix     bool
	Quality   Quality
	WasActive bool
}

// StageManager creates and destroys processing stages.
type StageManager interface {
	// CreateStage returns the stage and true when processing is enabled
	// for the stream, or false when it is disabled or cannot be built.
	CreateStage(req StageRequest) (Processor, bool)
	DestroyStage(streamID uuid.UUID)
}

// activeStage is the state of an enabled processing stage. A nil
// *activeStage means processing is inactive.
type activeStage struct {
	proc Processor
	// pool holds stage output buffers.
	pool *BufferPool
}

// delay reports the processing latency of the stage.
func (s *activeStage) delay() float64 {
	return s.proc.Delay()
}

// upmixes reports whether the stage already expands beyond stereo.
func (s *activeStage) upmixes() bool {
	return s.proc.ChannelLayout().Count() > stereoChannels
}

// outputFormat returns in with layout, rate and data format replaced by
// what the stage produces.
func (s *activeStage) outputFormat(in AudioFormat) AudioFormat {
	in.Layout = s.proc.ChannelLayout()
	in.SampleRate = s.proc.SampleRate()
	in.DataFormat = s.proc.DataFormat()
	return in
}

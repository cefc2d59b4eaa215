package bufferpool

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inFormat is 10 ms blocks of 44.1 kHz stereo s16.
var inFormat = AudioFormat{SampleRate: 44100, Layout: LayoutStereo, DataFormat: FormatS16, Frames: 441}

type harness struct {
	t      *testing.T
	rp     *ResamplingPool
	in     *BufferPool
	convs  *converterFactory
	stages *fakeStages
}

func newHarness(t *testing.T, cfg Config, opts CreateOptions) *harness {
	t.Helper()
	h := &harness{t: t, convs: &converterFactory{}, stages: &fakeStages{}}
	if cfg.Input.SampleRate == 0 {
		cfg.Input = inFormat
	}
	if cfg.Output.SampleRate == 0 {
		cfg.Output = testFormat
	}
	if cfg.NewConverter == nil {
		cfg.NewConverter = h.convs.New
	}
	if cfg.Stages == nil {
		cfg.Stages = h.stages
	}

	rp, err := NewResamplingPool(&cfg)
	require.NoError(t, err)
	require.NoError(t, rp.Create(opts))
	h.rp = rp

	h.in = NewBufferPool(cfg.Input, nil, nil)
	require.NoError(t, h.in.Create(time.Second))
	return h
}

// push queues one input buffer with frames valid frames.
func (h *harness) push(frames int) *SampleBuffer {
	h.t.Helper()
	b := h.in.GetFreeBuffer()
	require.NotNil(h.t, b)
	b.Pkt.Frames = frames
	h.rp.PushInput(b)
	return b
}

func (h *harness) tick(ts int64) bool {
	h.t.Helper()
	busy, err := h.rp.ResampleBuffers(ts)
	require.NoError(h.t, err)
	return busy
}

// popAll returns the frame counts of all completed buffers and releases them.
func (h *harness) popAll() []int {
	var frames []int
	for b := h.rp.PopOutput(); b != nil; b = h.rp.PopOutput() {
		frames = append(frames, b.Frames())
		b.Return()
	}
	return frames
}

func TestNewResamplingPool_Validation(t *testing.T) {
	_, err := NewResamplingPool(nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad_input", Config{Output: testFormat}},
		{"bad_output", Config{Input: inFormat}},
		{"negative_skip", Config{Input: inFormat, Output: testFormat, SkipInputFactor: -1}},
		{"bad_quality", Config{Input: inFormat, Output: testFormat, Quality: Quality(9)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResamplingPool(&tt.cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestResamplingPool_StreamIDAssigned(t *testing.T) {
	h := newHarness(t, Config{}, CreateOptions{})
	assert.NotEqual(t, uuid.Nil, h.rp.StreamID())
}

func TestResamplingPool_PassThroughWithoutConverter(t *testing.T) {
	h := newHarness(t, Config{Input: testFormat}, CreateOptions{})
	require.False(t, h.rp.HasConverter())
	assert.Empty(t, h.convs.made)

	a, b := h.push(480), h.push(100)
	assert.True(t, h.tick(7))
	assert.Zero(t, h.rp.InputLen())

	require.Equal(t, 2, h.rp.OutputLen())
	first, second := h.rp.PopOutput(), h.rp.PopOutput()
	assert.Same(t, a, first)
	assert.Same(t, b, second)
	assert.Equal(t, int64(7), first.Timestamp)
	assert.Equal(t, int64(7), second.Timestamp)

	assert.False(t, h.tick(8), "nothing to do")
}

func TestResamplingPool_PassThroughKeepsFrameCounts(t *testing.T) {
	format := testFormat
	format.Frames = 512
	h := newHarness(t, Config{Input: format, Output: format}, CreateOptions{})

	for i, frames := range []int{256, 512, 128} {
		h.push(frames)
		require.True(t, h.tick(int64(10+i)))
	}

	require.Equal(t, 3, h.rp.OutputLen())
	for i, want := range []int{256, 512, 128} {
		b := h.rp.PopOutput()
		assert.Equal(t, want, b.Frames())
		assert.Equal(t, int64(10+i), b.Timestamp)
		b.Return()
	}
}

func TestResamplingPool_ConverterConfig(t *testing.T) {
	out := AudioFormat{SampleRate: 48000, Layout: LayoutStereo, DataFormat: FormatFloatP, Frames: 480}
	in := AudioFormat{SampleRate: 44100, Layout: Layout5Point1, DataFormat: FormatS16, Frames: 441}
	h := newHarness(t, Config{Input: in, Output: out, Quality: QualityVeryHigh},
		CreateOptions{Upmix: true, Remap: true})

	require.True(t, h.rp.HasConverter())
	require.Len(t, h.convs.made, 1)
	cfg := h.convs.last().cfg

	assert.Equal(t, 48000, cfg.DstRate)
	assert.Equal(t, FormatFloatP, cfg.DstFormat)
	assert.Equal(t, 2, cfg.DstChannels)
	assert.Equal(t, 32, cfg.DstBits)
	assert.Equal(t, 44100, cfg.SrcRate)
	assert.Equal(t, 6, cfg.SrcChannels)
	assert.Equal(t, 16, cfg.SrcBits)
	assert.True(t, cfg.Upmix)
	assert.False(t, cfg.Normalize, "downmix without normalize requested")
	assert.True(t, cfg.RemapLayout.Equal(LayoutStereo))
	assert.Equal(t, QualityVeryHigh, cfg.Quality)
}

func TestResamplingPool_NormalizeRule(t *testing.T) {
	// Equal channel counts keep normalization.
	h := newHarness(t, Config{}, CreateOptions{})
	assert.True(t, h.convs.last().cfg.Normalize)

	in := AudioFormat{SampleRate: 44100, Layout: Layout5Point1, DataFormat: FormatS16, Frames: 441}
	h = newHarness(t, Config{Input: in}, CreateOptions{Normalize: true})
	assert.True(t, h.convs.last().cfg.Normalize)
}

func TestResamplingPool_ConverterErrors(t *testing.T) {
	rp, err := NewResamplingPool(&Config{Input: inFormat, Output: testFormat})
	require.NoError(t, err)
	require.ErrorIs(t, rp.Create(CreateOptions{}), ErrNoConverter)

	factory := &converterFactory{initErr: errFake}
	rp, err = NewResamplingPool(&Config{Input: inFormat, Output: testFormat, NewConverter: factory.New})
	require.NoError(t, err)
	err = rp.Create(CreateOptions{})
	require.ErrorIs(t, err, ErrConverterInit)
	require.ErrorIs(t, err, errFake)
}

func TestResamplingPool_ForceConverter(t *testing.T) {
	h := newHarness(t, Config{Input: testFormat, ForceConverter: true}, CreateOptions{})
	assert.True(t, h.rp.HasConverter())
	assert.Equal(t, StateStreaming, h.rp.State())
}

func TestResamplingPool_StreamsPartialBuffers(t *testing.T) {
	h := newHarness(t, Config{}, CreateOptions{})

	in := h.push(441)
	assert.True(t, h.tick(1))
	assert.Zero(t, in.RefCount(), "input returned after conversion")
	assert.Equal(t, []int{441}, h.popAll())

	// Idle without input.
	assert.False(t, h.tick(2))
}

func TestResamplingPool_FillPackets(t *testing.T) {
	h := newHarness(t, Config{FillPackets: true}, CreateOptions{})

	h.push(441)
	assert.True(t, h.tick(1))
	assert.Zero(t, h.rp.OutputLen(), "partial buffer is held back")

	h.push(441)
	assert.True(t, h.tick(2))
	require.Equal(t, 1, h.rp.OutputLen())
	out := h.rp.PopOutput()
	assert.Equal(t, 480, out.Frames())
	assert.Equal(t, int64(2), out.Timestamp)
	out.Return()

	// The remainder stays in the converter.
	assert.Equal(t, 402, h.convs.last().BufferedFrames())
}

func TestResamplingPool_SetFillPackets(t *testing.T) {
	h := newHarness(t, Config{}, CreateOptions{})
	h.rp.SetFillPackets(true)
	h.push(441)
	h.tick(1)
	assert.Zero(t, h.rp.OutputLen())
}

func TestResamplingPool_BackpressureWhenPoolExhausted(t *testing.T) {
	h := newHarness(t, Config{}, CreateOptions{})

	for i := range minPoolBuffers {
		h.push(441)
		require.True(t, h.tick(int64(i)))
	}
	require.Equal(t, minPoolBuffers, h.rp.OutputLen())
	require.False(t, h.rp.HasFree())

	h.push(441)
	assert.False(t, h.tick(99))
	assert.Equal(t, 1, h.rp.InputLen(), "input waits for a free buffer")

	h.rp.PopOutput().Return()
	assert.True(t, h.tick(100))
	assert.Zero(t, h.rp.InputLen())
}

func TestResamplingPool_SkipsInputWhenBacklogged(t *testing.T) {
	h := newHarness(t, Config{}, CreateOptions{})
	conv := h.convs.last()
	conv.buffered = 5000

	// The first conversion always takes input.
	h.push(441)
	require.True(t, h.tick(1))
	assert.Zero(t, h.rp.InputLen())

	// Backlog 4961 exceeds 2 x 480 free frames: input stays queued.
	h.push(441)
	require.True(t, h.tick(2))
	assert.Equal(t, 1, h.rp.InputLen())
	assert.Equal(t, 1, conv.nilCall)
	assert.Equal(t, []int{480, 480}, h.popAll())
}

func TestResamplingPool_SkipInputFactor(t *testing.T) {
	h := newHarness(t, Config{SkipInputFactor: 20}, CreateOptions{})
	conv := h.convs.last()
	conv.buffered = 5000

	h.push(441)
	h.tick(1)
	h.push(441)
	h.tick(2)
	assert.Zero(t, h.rp.InputLen(), "backlog below 20 x 480")
	assert.Zero(t, conv.nilCall)
}

func TestResamplingPool_DrainsConverterOnlyAtStreamEnd(t *testing.T) {
	convs := &converterFactory{drainable: true}
	h := newHarness(t, Config{NewConverter: convs.New}, CreateOptions{})
	conv := convs.last()
	conv.buffered = 5000

	h.push(441)
	h.tick(1)
	h.push(441)
	h.tick(2)
	require.Equal(t, 1, conv.nilCall, "input skipped")
	assert.Zero(t, conv.drains, "skipping input does not end the stream")
	h.popAll()

	// Queued input is converted before the converter is drained.
	conv.buffered = 0
	h.rp.SetDrain(true)
	require.True(t, h.tick(3))
	assert.Zero(t, h.rp.InputLen())
	assert.Zero(t, conv.drains)
	assert.NotEqual(t, StateIdle, h.rp.State())

	assert.False(t, h.tick(4))
	assert.Equal(t, 1, conv.drains)
	assert.Equal(t, StateIdle, h.rp.State())
}

func TestResamplingPool_Drain(t *testing.T) {
	h := newHarness(t, Config{}, CreateOptions{})
	h.convs.last().hold = 100

	h.push(441)
	require.True(t, h.tick(1))
	assert.Equal(t, []int{341}, h.popAll())

	h.rp.SetDrain(true)
	assert.True(t, h.rp.Draining())
	assert.Equal(t, StateDrainPending, h.rp.State())

	// The held back frames come out without new input.
	require.True(t, h.tick(2))
	assert.Equal(t, []int{100}, h.popAll())

	// Nothing left: the empty buffer goes back to the pool.
	assert.False(t, h.tick(3))
	assert.Equal(t, StateIdle, h.rp.State())
	assert.Zero(t, h.rp.OutputLen())
	assert.Equal(t, minPoolBuffers, h.rp.FreeCount())

	// New input leaves idle again.
	h.push(441)
	assert.Equal(t, StateDrainPending, h.rp.State())
	h.rp.SetDrain(false)
	assert.Equal(t, StateStreaming, h.rp.State())
}

func TestResamplingPool_DrainZeroPadsFilledPackets(t *testing.T) {
	h := newHarness(t, Config{FillPackets: true}, CreateOptions{})
	h.convs.last().hold = 100

	h.push(441)
	h.tick(1)
	h.rp.SetDrain(true)
	h.tick(2)
	require.Zero(t, h.rp.OutputLen(), "441 frames do not fill a packet")

	require.True(t, h.tick(3))
	require.Equal(t, 1, h.rp.OutputLen())
	out := h.rp.PopOutput()
	assert.Equal(t, 441, out.Frames())
	assert.Equal(t, int64(3), out.Timestamp)

	data := out.Pkt.Data[0]
	assert.Equal(t, byte(0xAB), data[441*4-1], "converted data kept")
	for i := 441 * 4; i < len(data); i++ {
		require.Zero(t, data[i], "byte %d after the valid frames", i)
	}
	out.Return()

	assert.False(t, h.tick(4))
	assert.Equal(t, StateIdle, h.rp.State())
}

func TestResamplingPool_ResamplerChangeAtSafePoint(t *testing.T) {
	h := newHarness(t, Config{}, CreateOptions{})
	first := h.convs.last()
	first.hold = 100

	h.push(441)
	h.tick(1)
	h.popAll()

	h.rp.RequestResamplerChange()
	assert.Equal(t, StateReconfigurePending, h.rp.State())
	h.push(441)

	// Input is not taken while the old converter empties.
	require.True(t, h.tick(2))
	assert.Equal(t, 1, h.rp.InputLen())
	assert.Equal(t, []int{100}, h.popAll())
	assert.Len(t, h.convs.made, 1, "not rebuilt while holding data")

	require.True(t, h.tick(3))
	assert.Len(t, h.convs.made, 2)
	assert.Equal(t, StateStreaming, h.rp.State())
	assert.Zero(t, h.rp.OutputLen(), "empty buffer returned, not queued")
	assert.Equal(t, minPoolBuffers, h.rp.FreeCount())

	// The new converter takes the queued input.
	require.True(t, h.tick(4))
	assert.Zero(t, h.rp.InputLen())
	assert.Equal(t, 1, h.convs.last().calls)
}

func TestResamplingPool_ResamplerChangeUsesUpmixPolicy(t *testing.T) {
	h := newHarness(t, Config{}, CreateOptions{Upmix: true, Remap: true})
	require.True(t, h.convs.last().cfg.Upmix)

	h.rp.SetStereoUpmix(false)
	h.rp.RequestResamplerChange()
	h.tick(1)

	cfg := h.convs.last().cfg
	assert.False(t, cfg.Upmix)
	assert.Nil(t, cfg.RemapLayout, "rebuilds do not remap")
}

func TestResamplingPool_ResamplerChangeWithoutConverter(t *testing.T) {
	h := newHarness(t, Config{Input: testFormat}, CreateOptions{})
	require.False(t, h.rp.HasConverter())

	h.rp.RequestResamplerChange()
	assert.True(t, h.tick(1))
	assert.True(t, h.rp.HasConverter())
}

func TestResamplingPool_ResamplerChangeFailure(t *testing.T) {
	h := newHarness(t, Config{}, CreateOptions{})
	h.convs.initErr = errFake

	h.rp.RequestResamplerChange()
	_, err := h.rp.ResampleBuffers(1)
	require.ErrorIs(t, err, ErrConverterInit)
	assert.False(t, h.rp.HasConverter())
	assert.Equal(t, StateStreaming, h.rp.State())
}

func TestResamplingPool_ConversionError(t *testing.T) {
	h := newHarness(t, Config{}, CreateOptions{})
	h.convs.last().resampleErr = errFake

	in := h.push(441)
	busy, err := h.rp.ResampleBuffers(1)
	require.ErrorIs(t, err, errFake)
	assert.True(t, busy)
	assert.Zero(t, in.RefCount(), "input is not leaked")
}

func TestResamplingPool_ResampleRatio(t *testing.T) {
	h := newHarness(t, Config{}, CreateOptions{})
	assert.Equal(t, 1.0, h.rp.ResampleRatio())

	require.ErrorIs(t, h.rp.SetResampleRatio(0), ErrInvalidConfig)
	require.ErrorIs(t, h.rp.SetResampleRatio(1000), ErrInvalidConfig)
	require.NoError(t, h.rp.SetResampleRatio(1.002))

	h.push(441)
	h.tick(1)
	assert.Equal(t, 1.002, h.convs.last().lastRatio)
}

func TestResamplingPool_Delay(t *testing.T) {
	h := newHarness(t, Config{FillPackets: true}, CreateOptions{})
	conv := h.convs.last()
	conv.hold = 48

	assert.Zero(t, h.rp.Delay())

	// 393 frames in progress, 48 in the converter, one block queued.
	h.push(441)
	h.tick(1)
	h.push(441)
	want := 393.0/48000 + 48.0/48000 + 441.0/44100
	assert.InDelta(t, want, h.rp.Delay(), 1e-12)
}

func TestResamplingPool_DelaySumsOutputQueue(t *testing.T) {
	h := newHarness(t, Config{Input: testFormat}, CreateOptions{})
	h.push(100)
	h.push(200)
	h.tick(1)
	require.Equal(t, 2, h.rp.OutputLen())
	assert.InDelta(t, 300.0/48000, h.rp.Delay(), 1e-12)
}

func TestResamplingPool_Flush(t *testing.T) {
	h := newHarness(t, Config{FillPackets: true}, CreateOptions{})

	h.push(441)
	h.tick(1)
	h.push(441)
	h.tick(2)
	h.push(441)
	require.Equal(t, 1, h.rp.OutputLen())

	for range 2 {
		h.rp.Flush()
		assert.Zero(t, h.rp.InputLen())
		assert.Zero(t, h.rp.OutputLen())
		assert.Equal(t, minPoolBuffers, h.rp.FreeCount())
		assert.Equal(t, h.in.Len(), h.in.FreeCount())
	}
}

func TestResamplingPool_Close(t *testing.T) {
	h := newHarness(t, Config{}, CreateOptions{})
	h.push(441)
	h.tick(1)
	out := h.rp.PopOutput()

	h.rp.Close()
	assert.False(t, h.rp.HasConverter())
	assert.Zero(t, h.rp.Len())
	assert.Nil(t, out.Owner())
	assert.NotPanics(t, out.Return)
}

func TestResamplingPool_StateString(t *testing.T) {
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "drain-pending", StateDrainPending.String())
	assert.Equal(t, "reconfigure-pending", StateReconfigurePending.String())
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "PipelineState(9)", PipelineState(9).String())
}

func TestResamplingPool_StageOverridesInputFormat(t *testing.T) {
	stages := &fakeStages{enabled: true, delay: 0.005}
	h := newHarness(t, Config{Stages: stages}, CreateOptions{UseDSP: true})

	require.True(t, h.rp.HasStage())
	req := stages.lastRequest()
	assert.Equal(t, h.rp.StreamID(), req.StreamID)
	assert.Equal(t, inFormat, req.Input)
	assert.Equal(t, testFormat, req.Output)
	assert.False(t, req.WasActive)

	assert.Equal(t, FormatFloatP, h.rp.InputFormat().DataFormat)
	assert.Equal(t, 44100, h.rp.InputFormat().SampleRate)
	assert.Equal(t, FormatFloatP, h.convs.last().cfg.SrcFormat)
	assert.Equal(t, 32, h.convs.last().cfg.SrcBits)

	in := h.push(441)
	require.True(t, h.tick(1))
	assert.Equal(t, 1, stages.current.calls)
	assert.Zero(t, in.RefCount())
	assert.Equal(t, []int{441}, h.popAll())

	assert.InDelta(t, 0.005, h.rp.Delay(), 1e-12)
}

func TestResamplingPool_StageWithoutDSPRequest(t *testing.T) {
	stages := &fakeStages{enabled: true}
	h := newHarness(t, Config{Stages: stages}, CreateOptions{})
	assert.False(t, h.rp.HasStage())
	assert.Empty(t, stages.requests)
}

func TestResamplingPool_StageUpmixDisablesConverterUpmix(t *testing.T) {
	stages := &fakeStages{enabled: true, layout: Layout5Point1}
	h := newHarness(t, Config{Stages: stages}, CreateOptions{UseDSP: true, Upmix: true})

	assert.True(t, stages.lastRequest().Upmix)
	cfg := h.convs.last().cfg
	assert.False(t, cfg.Upmix)
	assert.Equal(t, 6, cfg.SrcChannels)
	assert.False(t, cfg.Normalize)
}

func TestResamplingPool_StageProcessFailure(t *testing.T) {
	stages := &fakeStages{enabled: true, fail: true}
	h := newHarness(t, Config{Stages: stages}, CreateOptions{UseDSP: true})

	in := h.push(441)
	require.True(t, h.tick(1))
	assert.Zero(t, in.RefCount(), "input consumed")
	assert.Zero(t, h.rp.OutputLen())
	assert.Equal(t, 1, h.convs.last().nilCall)
}

func TestResamplingPool_DisableStageMatchingFormats(t *testing.T) {
	stages := &fakeStages{enabled: true}
	h := newHarness(t, Config{Input: testFormat, Stages: stages}, CreateOptions{UseDSP: true})
	require.True(t, h.rp.HasStage())
	require.True(t, h.rp.HasConverter(), "stage output is float")

	stages.enabled = false
	h.rp.RequestDSPChange()
	assert.Equal(t, StateReconfigurePending, h.rp.State())
	require.True(t, h.tick(1))

	assert.True(t, stages.lastRequest().WasActive)
	assert.False(t, h.rp.HasStage())
	assert.False(t, h.rp.HasConverter())
	assert.Equal(t, []uuid.UUID{h.rp.StreamID()}, stages.destroyed)
	assert.Equal(t, FormatS16, h.rp.InputFormat().DataFormat)
	assert.Equal(t, StateStreaming, h.rp.State())

	// Pass through from now on.
	b := h.push(480)
	h.tick(2)
	assert.Same(t, b, h.rp.PopOutput())
}

func TestResamplingPool_DisableStageRebuildsConverter(t *testing.T) {
	stages := &fakeStages{enabled: true}
	h := newHarness(t, Config{Stages: stages}, CreateOptions{UseDSP: true})
	require.Len(t, h.convs.made, 1)

	stages.enabled = false
	h.rp.RequestDSPChange()
	require.True(t, h.tick(1))

	assert.False(t, h.rp.HasStage())
	require.Len(t, h.convs.made, 2)
	assert.Equal(t, FormatS16, h.convs.last().cfg.SrcFormat)
	assert.Equal(t, StateStreaming, h.rp.State())
}

func TestResamplingPool_EnableStageLater(t *testing.T) {
	h := newHarness(t, Config{}, CreateOptions{})
	require.False(t, h.rp.HasStage())

	h.stages.enabled = true
	h.rp.RequestDSPChange()
	require.True(t, h.tick(1))

	assert.True(t, h.rp.HasStage())
	assert.False(t, h.stages.lastRequest().WasActive)
	require.Len(t, h.convs.made, 2)
	assert.Equal(t, FormatFloatP, h.convs.last().cfg.SrcFormat)
}

func TestResamplingPool_StageRebuildKeepsPool(t *testing.T) {
	stages := &fakeStages{enabled: true}
	h := newHarness(t, Config{Stages: stages}, CreateOptions{UseDSP: true})
	pool := h.rp.stage.pool

	h.rp.RequestDSPChange()
	h.tick(1)
	require.True(t, h.rp.HasStage())
	assert.Same(t, pool, h.rp.stage.pool)
	assert.True(t, stages.lastRequest().WasActive)
	assert.Empty(t, stages.destroyed)

	// A different stage output format gets a new pool.
	stages.layout = Layout5Point1
	h.rp.RequestDSPChange()
	h.tick(2)
	assert.NotSame(t, pool, h.rp.stage.pool)
	assert.Zero(t, pool.Len(), "old pool closed")
	assert.Equal(t, 6, h.rp.InputFormat().Layout.Count())
}

func TestResamplingPool_StageWithoutBuffersAtCreate(t *testing.T) {
	// Room for the five output buffers only.
	alloc := NewHeapAllocator(5 * 1920)
	stages := &fakeStages{enabled: true}
	h := newHarness(t, Config{Stages: stages, Allocator: alloc}, CreateOptions{UseDSP: true})

	assert.False(t, h.rp.HasStage())
	assert.Equal(t, []uuid.UUID{h.rp.StreamID()}, stages.destroyed)
	assert.Equal(t, FormatS16, h.convs.last().cfg.SrcFormat)
	assert.Equal(t, int64(5*1920), alloc.Used())
}

func TestResamplingPool_StageRebuildWithoutBuffers(t *testing.T) {
	alloc := NewHeapAllocator(0)
	stages := &fakeStages{enabled: true}
	h := newHarness(t, Config{Stages: stages, Allocator: alloc}, CreateOptions{UseDSP: true})
	old := h.rp.stage.pool
	require.Len(t, h.convs.made, 1)

	// The new stage layout needs a new pool, but the budget is spent.
	alloc.MaxBytes = alloc.Used()
	stages.layout = Layout5Point1
	h.rp.RequestDSPChange()
	require.True(t, h.tick(1))

	assert.False(t, h.rp.HasStage())
	assert.Equal(t, []uuid.UUID{h.rp.StreamID()}, stages.destroyed)
	assert.Zero(t, old.Len(), "old stage pool closed")
	assert.True(t, h.rp.InputFormat().SameStream(inFormat), "input reverts to %s", h.rp.InputFormat())
	require.Len(t, h.convs.made, 2)
	assert.Equal(t, FormatS16, h.convs.last().cfg.SrcFormat)
	assert.Equal(t, StateStreaming, h.rp.State())

	// Unconverted input goes straight to the new converter.
	h.push(441)
	h.tick(2)
	assert.Equal(t, 1, h.rp.OutputLen())
	assert.Equal(t, 1, h.convs.last().calls)
}

func TestResamplingPool_CloseDestroysStage(t *testing.T) {
	stages := &fakeStages{enabled: true}
	h := newHarness(t, Config{Stages: stages}, CreateOptions{UseDSP: true})
	pool := h.rp.stage.pool

	h.rp.Close()
	assert.False(t, h.rp.HasStage())
	assert.Len(t, stages.destroyed, 1)
	assert.Zero(t, pool.Len())
}

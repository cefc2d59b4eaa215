// Package bufferpool provides pooled audio sample buffers and a resampling
// pipeline that turns a stream of decoded buffers into buffers of a target
// format.
//
// # Features
//
//   - Pre-allocated, reference counted sample buffers recycled through a free list
//   - Interleaved and planar sample formats from 8-bit integer to 64-bit float
//   - Rate, sample format and channel layout conversion behind a Converter interface
//   - Optional external processing stage (DSP) in front of the converter
//   - Reconfiguration at safe points only, so no audio is lost or duplicated
//   - Drain support for gapless end of stream
//   - Optional Prometheus metrics and zap logging
//
// # Buffer Pools
//
// A BufferPool owns every buffer it creates. Consumers take a buffer with
// GetFreeBuffer, pass references around with Acquire, and give them back
// with Return. The last Return puts the buffer on the free list again:
//
//	pool := bufferpool.NewBufferPool(format, nil, logger)
//	if err := pool.Create(200 * time.Millisecond); err != nil {
//	    log.Fatal(err)
//	}
//
//	buf := pool.GetFreeBuffer()
//	if buf == nil {
//	    // all buffers in flight, try again later
//	}
//	defer buf.Return()
//
// # Resampling Pipeline
//
// A ResamplingPool is a BufferPool of the output format with an input and
// an output queue. It is driven by calling ResampleBuffers once per output
// interval:
//
//	rp, err := bufferpool.NewResamplingPool(&bufferpool.Config{
//	    Input:        decoderFormat,
//	    Output:       sinkFormat,
//	    Quality:      bufferpool.QualityHigh,
//	    NewConverter: convert.Factory,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := rp.Create(bufferpool.CreateOptions{TotalTime: 200 * time.Millisecond}); err != nil {
//	    log.Fatal(err)
//	}
//
//	for tick := int64(0); ; tick++ {
//	    rp.PushInput(decoded)
//	    if _, err := rp.ResampleBuffers(tick); err != nil {
//	        log.Fatal(err)
//	    }
//	    for out := rp.PopOutput(); out != nil; out = rp.PopOutput() {
//	        sink.Write(out)
//	        out.Return()
//	    }
//	}
//
// # Reconfiguration
//
// RequestResamplerChange and RequestDSPChange only mark a change as pending.
// The pipeline then stops taking input, lets the converter run empty, emits
// the partial output buffer and applies the change. State reports where the
// pipeline is in that cycle.
//
// # Thread Safety
//
// Pools and buffers are not safe for concurrent use. Reference counts are
// plain integers; callers sharing buffers across goroutines must
// synchronize externally.
package bufferpool

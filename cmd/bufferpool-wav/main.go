// Command bufferpool-wav converts an audio file to WAV through a
// ResamplingPool, one block per tick, the way a playback engine would.
//
// Usage:
//
//	bufferpool-wav -rate 48 input.flac output.wav
//	bufferpool-wav -rate 44.1 -bits 24 -quality veryhigh input.wav output.wav
//	bufferpool-wav -layout 5.1 -upmix -dsp -gain 0.8 input.mp3 output.wav
//	bufferpool-wav -metrics-addr :9090 -v input.ogg output.wav
//
// Inputs may be WAV, MP3, Ogg Vorbis or FLAC. Output is integer PCM WAV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	bp "github.com/tphakala/go-audio-bufferpool"
	"github.com/tphakala/go-audio-bufferpool/convert"
	"github.com/tphakala/go-audio-bufferpool/dsp"
)

const (
	// CLI defaults
	defaultBlockFrames = 1024
	defaultBufferTime  = 200 * time.Millisecond
	defaultBits        = 16
	minRequiredArgs    = 2

	kHzToHz = 1000

	metricsNamespace    = "bufferpool"
	readHeaderTimeout   = 5 * time.Second
	shutdownTimeout     = 2 * time.Second
	maxIdleTicksAtDrain = 1000
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// options are the parsed command line flags.
type options struct {
	output      outputOptions
	quality     string
	buffer      time.Duration
	ratio       float64
	dsp         bool
	gain        float64
	upmix       bool
	normalize   bool
	remap       bool
	fill        bool
	verbose     bool
	metricsAddr string
}

func run() error {
	var opts options
	flag.Float64Var(&opts.output.rateKHz, "rate", 0, "Target sample rate in kHz (0 keeps the input rate)")
	flag.StringVar(&opts.output.layout, "layout", "", "Output channel layout: mono, stereo, 2.1, quad, 5.1, 7.1 (empty keeps the input layout)")
	flag.IntVar(&opts.output.bits, "bits", defaultBits, "Output bit depth: 16, 24 or 32")
	flag.IntVar(&opts.output.block, "block", defaultBlockFrames, "Frames per buffer")
	flag.StringVar(&opts.quality, "quality", "high", "Quality preset: low, medium, high, veryhigh")
	flag.DurationVar(&opts.buffer, "buffer", defaultBufferTime, "Audio held by each pool")
	flag.Float64Var(&opts.ratio, "ratio", 1, "Resample ratio for drift correction")
	flag.BoolVar(&opts.dsp, "dsp", false, "Run the gain processing stage")
	flag.Float64Var(&opts.gain, "gain", 1, "Linear gain of the processing stage")
	flag.BoolVar(&opts.upmix, "upmix", false, "Allow upmixing stereo to more channels")
	flag.BoolVar(&opts.normalize, "normalize", false, "Normalize gain when downmixing")
	flag.BoolVar(&opts.remap, "remap", false, "Pass the output layout to the converter as channel order")
	flag.BoolVar(&opts.fill, "fill", false, "Only emit completely filled buffers")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose output")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	flag.Parse()

	args := flag.Args()
	if len(args) < minRequiredArgs {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] input output.wav\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -rate 48 input.flac output.wav          # Resample to 48kHz\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -layout stereo movie.wav stereo.wav     # Downmix\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -dsp -gain 0.5 song.mp3 quiet.wav       # Through the gain stage\n", os.Args[0])
		return errors.New("insufficient arguments")
	}

	logger, err := newLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var metrics *bp.Metrics
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		metrics = bp.NewMetrics(reg, metricsNamespace)
		stop := serveMetrics(opts.metricsAddr, reg, logger)
		defer stop()
	}

	inputPath, outputPath := args[0], args[1]
	start := time.Now()
	st, err := convertFile(inputPath, outputPath, opts, metrics, logger)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("Converted %s -> %s\n", filepath.Base(inputPath), filepath.Base(outputPath))
	fmt.Printf("  %s -> %s\n", st.input, st.output)
	fmt.Printf("  %d frames -> %d frames in %d ticks\n", st.inFrames, st.outFrames, st.ticks)
	fmt.Printf("  converter: %t, processing stage: %t, max delay: %.1f ms\n",
		st.converter, st.processing, st.maxDelay*1000)
	if st.input.SampleRate > 0 && elapsed > 0 {
		fmt.Printf("  Duration: %.2fs, Speed: %.1fx realtime\n",
			elapsed.Seconds(),
			float64(st.inFrames)/float64(st.input.SampleRate)/elapsed.Seconds())
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// serveMetrics exposes reg on addr and returns a function that stops the server.
func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// convertFile decodes inputPath, runs it through a ResamplingPool and
// writes the result to outputPath.
func convertFile(inputPath, outputPath string, opts options, metrics *bp.Metrics, logger *zap.Logger) (st *stats, err error) {
	quality, err := parseQuality(opts.quality)
	if err != nil {
		return nil, err
	}

	src, err := openSource(inputPath, opts.output.block)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()

	inFormat := src.Format()
	outFormat, err := outputFormat(inFormat, opts.output)
	if err != nil {
		return nil, err
	}
	logger.Debug("formats resolved",
		zap.String("input_path", inputPath),
		zap.Stringer("input", inFormat),
		zap.Stringer("output", outFormat))

	inPool := bp.NewBufferPool(inFormat, nil, logger.Named("input"))
	if err := inPool.Create(opts.buffer); err != nil {
		return nil, err
	}
	defer inPool.Close()

	cfg := &bp.Config{
		Input:        inFormat,
		Output:       outFormat,
		Quality:      quality,
		FillPackets:  opts.fill,
		NewConverter: convert.Factory,
		Logger:       logger,
		Metrics:      metrics,
	}
	if opts.dsp {
		manager, err := dsp.NewManager(&dsp.Config{Enabled: true, Gain: opts.gain, Logger: logger})
		if err != nil {
			return nil, err
		}
		cfg.Stages = manager
	}

	rp, err := bp.NewResamplingPool(cfg)
	if err != nil {
		return nil, err
	}
	defer rp.Close()
	if err := rp.Create(bp.CreateOptions{
		TotalTime: opts.buffer,
		Remap:     opts.remap,
		Upmix:     opts.upmix,
		Normalize: opts.normalize,
		UseDSP:    opts.dsp,
	}); err != nil {
		return nil, err
	}
	if err := rp.SetResampleRatio(opts.ratio); err != nil {
		return nil, err
	}

	out, err := createWAVOutput(outputPath, outFormat)
	if err != nil {
		return nil, err
	}
	// Close output, capturing close errors on success path (the WAV header is written on close)
	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
	}()

	st = &stats{
		input:      inFormat,
		output:     outFormat,
		converter:  rp.HasConverter(),
		processing: rp.HasStage(),
	}
	if err := pump(src, inPool, rp, out, st); err != nil {
		return nil, err
	}
	return st, nil
}

// pump feeds one input block per tick until the source ends, then drains
// the pipeline until it is idle.
func pump(src source, inPool *bp.BufferPool, rp *bp.ResamplingPool, out *wavOutputWriter, st *stats) error {
	eof := false
	idle := 0
	for tick := int64(0); ; tick++ {
		if !eof && inPool.HasFree() {
			b := inPool.GetFreeBuffer()
			n, err := src.Read(b.Pkt)
			if err != nil && !errors.Is(err, io.EOF) {
				b.Return()
				return err
			}
			b.Pkt.Frames = n
			if n > 0 {
				st.inFrames += int64(n)
				rp.PushInput(b)
			} else {
				b.Return()
			}
			if err != nil {
				eof = true
				rp.SetDrain(true)
			}
		}

		busy, err := rp.ResampleBuffers(tick)
		if err != nil {
			return err
		}
		st.ticks++
		st.observe(rp)

		for b := rp.PopOutput(); b != nil; b = rp.PopOutput() {
			st.outFrames += int64(b.Frames())
			werr := out.Write(b)
			b.Return()
			if werr != nil {
				return werr
			}
		}

		if eof && rp.State() == bp.StateIdle {
			return nil
		}
		if eof && !busy {
			idle++
			if idle > maxIdleTicksAtDrain {
				return fmt.Errorf("pipeline did not drain (state %s)", rp.State())
			}
		}
	}
}

package bufferpool

// Channel constants
const (
	stereoChannels = 2  // Channel count above which a stage is considered to have upmixed
	maxChannels    = 32 // Maximum supported channel count
)

// Sample size constants
const (
	bitsPerByte = 8

	bitsPerSample8  = 8
	bitsPerSample16 = 16
	bitsPerSample24 = 24
	bitsPerSample32 = 32

	bytesPerSample8  = 1
	bytesPerSample16 = 2
	bytesPerSample24 = 3
	bytesPerSample32 = 4
	bytesPerSample64 = 8
)

// Pool sizing constants
const (
	// minPoolBuffers guarantees headroom even for very short requested durations.
	minPoolBuffers = 5

	// storageAlignment is the byte alignment of every plane stride.
	storageAlignment = 32
)

// Pipeline tuning constants
const (
	// defaultSkipInputFactor stops feeding the converter while its backlog
	// exceeds this multiple of the free space in the output buffer.
	defaultSkipInputFactor = 2.0

	// nominalRatio is the drift-free conversion ratio.
	nominalRatio = 1.0

	// Resampling ratio limits for drift correction.
	minResampleRatio = 1.0 / 256.0
	maxResampleRatio = 256.0
)

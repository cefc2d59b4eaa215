package pipeline

// Buffer sizing constants
const (
	bufferGrowthFactor = 2 // Factor for buffer growth
)

package compute

// Per-entity randomness is drawn from a counter-based hash keyed by
// (seed, entity id, tick, stream). Both backends read identical values
// for an entity no matter which goroutine or order processes it, which
// is what keeps their result distributions aligned.

const (
	streamWander uint64 = 1
	streamRepro  uint64 = 2
)

func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// hashUniform returns a float32 in [0, 1).
func hashUniform(seed, id, tick, stream uint64) float32 {
	h := splitmix(seed ^ splitmix(id^splitmix(tick^splitmix(stream))))
	return float32(h>>40) / float32(1<<24)
}

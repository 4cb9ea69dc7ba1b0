package rtpstream

const (
	bandwidthSlots    = 1024
	bandwidthWindowMs = 1000.0

	ipv4UDPOverhead = 28 // IPv4 + UDP headers
	ipv6UDPOverhead = 48 // IPv6 + UDP headers
)

type bandwidthSample struct {
	time  float64 // ms since capture start
	bytes uint32
}

// bandwidthWindow is a fixed ring of samples spanning the last second.
// The newest sample is never evicted; when the ring is full the oldest
// sample is dropped regardless of age.
type bandwidthWindow struct {
	samples [bandwidthSlots]bandwidthSample
	start   int
	count   int
	total   uint64
}

func (w *bandwidthWindow) add(now float64, bytes uint32) {
	if w.count == bandwidthSlots {
		w.evictOldest()
	}
	w.samples[(w.start+w.count)%bandwidthSlots] = bandwidthSample{time: now, bytes: bytes}
	w.count++
	w.total += uint64(bytes)

	for w.count > 1 && now-w.samples[w.start].time > bandwidthWindowMs {
		w.evictOldest()
	}
}

func (w *bandwidthWindow) evictOldest() {
	w.total -= uint64(w.samples[w.start].bytes)
	w.start = (w.start + 1) % bandwidthSlots
	w.count--
}

// kbps is the bit rate of the bytes held in the window.
func (w *bandwidthWindow) kbps() float64 {
	return float64(w.total) * 8 / 1000
}

// sum recomputes the window total from the retained samples.
func (w *bandwidthWindow) sum() uint64 {
	var total uint64
	for i := 0; i < w.count; i++ {
		total += uint64(w.samples[(w.start+i)%bandwidthSlots].bytes)
	}
	return total
}

package rtpstream

// Registry owns the streams seen in the current pass. Streams sharing a
// transport pair live in one bucket and are told apart by SSRC.
// Registry is not safe for concurrent use.
type Registry struct {
	buckets map[endpointKey][]*StreamInfo
	order   []*StreamInfo
}

func NewRegistry() *Registry {
	return &Registry{buckets: make(map[endpointKey][]*StreamInfo)}
}

// Lookup returns the stream with identity id, or nil.
func (r *Registry) Lookup(id Identity) *StreamInfo {
	for _, si := range r.buckets[id.key()] {
		if si.ID.SSRC == id.SSRC {
			return si
		}
	}
	return nil
}

// Insert adds info unless a stream with an equal identity exists.
// It reports whether info was added.
func (r *Registry) Insert(info *StreamInfo) bool {
	if r.Lookup(info.ID) != nil {
		return false
	}
	k := info.ID.key()
	r.buckets[k] = append(r.buckets[k], info)
	r.order = append(r.order, info)
	return true
}

// Reset discards every stream.
func (r *Registry) Reset() {
	clear(r.buckets)
	r.order = nil
}

func (r *Registry) Len() int {
	return len(r.order)
}

// Since returns copies of the streams inserted at position n and later,
// in insertion order. Callers keep n to consume new streams incrementally.
func (r *Registry) Since(n int) []StreamInfo {
	if n < 0 {
		n = 0
	}
	if n >= len(r.order) {
		return nil
	}
	out := make([]StreamInfo, 0, len(r.order)-n)
	for _, si := range r.order[n:] {
		out = append(out, si.Clone())
	}
	return out
}

// Snapshot returns copies of all streams in insertion order.
func (r *Registry) Snapshot() []StreamInfo {
	return r.Since(0)
}

// Find returns a copy of the stream with identity id.
func (r *Registry) Find(id Identity) (StreamInfo, bool) {
	si := r.Lookup(id)
	if si == nil {
		return StreamInfo{}, false
	}
	return si.Clone(), true
}

// FindReverse returns a copy of the first stream flowing opposite to id.
func (r *Registry) FindReverse(id Identity) (StreamInfo, bool) {
	rev := endpointKey{src: unmap(id.Dst), dst: unmap(id.Src)}
	if bucket := r.buckets[rev]; len(bucket) > 0 {
		return bucket[0].Clone(), true
	}
	return StreamInfo{}, false
}

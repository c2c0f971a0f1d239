package cache

// evictor picks a victim key out of a ledger snapshot when a capacity
// bound is violated. Only non-LRU policies need this: the LRU policy
// delegates eviction to hashicorp/golang-lru/v2/expirable directly.
type evictor interface {
	selectVictim(entries map[string]*Entry) (string, bool)
}

func newEvictor(policy EvictionPolicy) evictor {
	switch policy {
	case PolicyLFU:
		return lfuEvictor{}
	case PolicyFIFO:
		return fifoEvictor{}
	case PolicyTTL:
		return ttlEvictor{}
	case PolicySize:
		return sizeEvictor{}
	case PolicyHybrid:
		return hybridEvictor{}
	default:
		return lfuEvictor{}
	}
}

// lfuEvictor evicts the entry with the fewest accesses.
type lfuEvictor struct{}

func (lfuEvictor) selectVictim(entries map[string]*Entry) (string, bool) {
	var victim string
	var min int64 = -1
	for k, e := range entries {
		if min == -1 || e.AccessCount < min {
			min, victim = e.AccessCount, k
		}
	}
	return victim, min != -1
}

// fifoEvictor evicts the oldest-created entry regardless of access.
type fifoEvictor struct{}

func (fifoEvictor) selectVictim(entries map[string]*Entry) (string, bool) {
	var victim string
	var oldest int64
	found := false
	for k, e := range entries {
		t := e.CreatedAt.UnixNano()
		if !found || t < oldest {
			oldest, victim, found = t, k, true
		}
	}
	return victim, found
}

// ttlEvictor evicts whichever entry expires soonest, reclaiming space
// from entries that were going to disappear anyway.
type ttlEvictor struct{}

func (ttlEvictor) selectVictim(entries map[string]*Entry) (string, bool) {
	var victim string
	var soonest int64
	found := false
	for k, e := range entries {
		t := e.ExpiresAt.UnixNano()
		if !found || t < soonest {
			soonest, victim, found = t, k, true
		}
	}
	return victim, found
}

// sizeEvictor evicts the single largest entry, for workloads where a few
// oversized payloads dominate the byte budget.
type sizeEvictor struct{}

func (sizeEvictor) selectVictim(entries map[string]*Entry) (string, bool) {
	var victim string
	var largest int64 = -1
	for k, e := range entries {
		if e.Size > largest {
			largest, victim = e.Size, k
		}
	}
	return victim, largest != -1
}

// hybridEvictor scores entries by access_count/size, evicting the entry
// that returns the least value per byte held.
type hybridEvictor struct{}

func (hybridEvictor) selectVictim(entries map[string]*Entry) (string, bool) {
	var victim string
	var worst float64
	found := false
	for k, e := range entries {
		size := e.Size
		if size <= 0 {
			size = 1
		}
		score := float64(e.AccessCount) / float64(size)
		if !found || score < worst {
			worst, victim, found = score, k, true
		}
	}
	return victim, found
}

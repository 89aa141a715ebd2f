package fat

// handleTable deduplicates open handles by starting-cluster identity and
// reference-counts them, so that multiple concurrent opens of the same
// file share one chain/size/flags (§4.5).
type handleTable struct {
	byCluster map[uint32]*handle
}

func newHandleTable() *handleTable {
	return &handleTable{byCluster: make(map[uint32]*handle)}
}

// lookup returns the shared handle for startCluster, if one is open.
func (t *handleTable) lookup(startCluster uint32) (*handle, bool) {
	h, ok := t.byCluster[startCluster]
	return h, ok
}

// acquire increments the refcount of an already-open handle and returns
// it, for the case where open-by-path resolves to a cluster that is
// already resident in the table.
func (t *handleTable) acquire(h *handle) *handle {
	h.refCount++
	return h
}

// insert adds a freshly built handle to the table with a refcount of 1.
func (t *handleTable) insert(h *handle) {
	h.refCount = 1
	t.byCluster[h.startCluster] = h
}

// release decrements h's refcount. It returns true when the refcount has
// reached zero, at which point the caller (the façade) is responsible for
// running the delete-on-close cleanup sequence and then calling remove.
func (t *handleTable) release(h *handle) bool {
	h.refCount--
	return h.refCount <= 0
}

// remove unlinks h from the table. Called only after release reports the
// refcount has reached zero.
func (t *handleTable) remove(h *handle) {
	delete(t.byCluster, h.startCluster)
}

// len reports the number of distinct open identities, for tests asserting
// that open/close leaves the table in its pre-open state.
func (t *handleTable) len() int { return len(t.byCluster) }

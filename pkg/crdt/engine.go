package crdt

// Update is one opaque document update. The gateway never inspects its
// contents; the engine decides equality and the clients own the encoding.
type Update []byte

// State is the shared, mergeable document state of one room. Implementations
// are not required to be safe for concurrent use; the session registry
// serializes access per room.
type State interface {
	// Merge folds an update into the state. It reports false when the
	// update was already present, in which case the state is unchanged and
	// the caller must not rebroadcast it. Merge is commutative, associative
	// and idempotent: any interleaving of the same update set converges to
	// the same state.
	Merge(u Update) (applied bool)

	// Snapshot returns every update held by the state in a deterministic
	// order, so two converged states serialize identically. Used to catch a
	// late joiner up to the current document.
	Snapshot() []Update

	// Len reports the number of distinct updates merged so far.
	Len() int
}

// Engine builds fresh document states. One engine instance is shared by the
// whole registry; room lifecycles are owned by the registry, not the engine.
type Engine interface {
	NewState() State
}

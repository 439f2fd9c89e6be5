package replay

// visibleIndex selects the index of the version in one item history that is
// visible to the given actor under snapshot isolation, or -1.
//
// A version with creator cmin and invalidator cmax is visible iff the creator
// is the actor itself or was committed when the actor's snapshot was taken,
// and the version has not been invalidated by a transaction inside that
// snapshot. Among visible versions the one with the greatest creator id wins;
// ties (the actor overwriting its own staged value) resolve to the latest
// created. This single rule is what keeps an actor whose snapshot predates a
// later commit reading the older value.
func visibleIndex(history []Version, actor *ActorState) int {
	best := -1
	for i, v := range history {
		if v.Creator != actor.RuntimeID && !actor.InSnapshot(v.Creator) {
			continue
		}
		if v.Invalidator != 0 && actor.InSnapshot(v.Invalidator) {
			continue
		}
		if best == -1 || v.Creator >= history[best].Creator {
			best = i
		}
	}
	return best
}

// visibleVersion is the read-side wrapper around visibleIndex.
func visibleVersion(history []Version, actor *ActorState) (Version, bool) {
	i := visibleIndex(history, actor)
	if i == -1 {
		return Version{}, false
	}
	return history[i], true
}

package bus

// refCounter tracks how many live subscriptions share each canonical
// pattern, so the Router can issue a real transport subscribe only on the
// first subscription for a pattern and a real unsubscribe only when the
// last one goes away.
//
// Like the trie, it is mutated exclusively on the routing goroutine.
type refCounter struct {
	counts map[string]int
}

func newRefCounter() *refCounter {
	return &refCounter{counts: make(map[string]int)}
}

// add increments the count for a pattern and reports whether this was the
// first reference (a 0→1 transition).
func (rc *refCounter) add(pattern string) bool {
	rc.counts[pattern]++
	return rc.counts[pattern] == 1
}

// remove decrements the count for a pattern and reports whether this was
// the last reference (a 1→0 transition). Removing a pattern that is not
// present is a no-op returning false.
func (rc *refCounter) remove(pattern string) bool {
	count, ok := rc.counts[pattern]
	if !ok {
		return false
	}
	if count <= 1 {
		delete(rc.counts, pattern)
		return true
	}
	rc.counts[pattern] = count - 1
	return false
}

// includes reports whether the pattern has at least one live reference.
func (rc *refCounter) includes(pattern string) bool {
	return rc.counts[pattern] > 0
}

// clear drops all entries. Used on close.
func (rc *refCounter) clear() {
	rc.counts = make(map[string]int)
}

package bus

import "github.com/manifoldbus/manifold/topic"

// trie indexes subscriptions by their pattern segments so that matching a
// concrete topic costs topic-depth × per-level branching rather than a scan
// over every subscription.
//
// The trie is owned and mutated exclusively by the Router's routing
// goroutine; it carries no locking of its own.
type trie struct {
	scheme topic.Scheme
	root   *trieNode
}

// trieNode represents one pattern segment position.
//
// Literal segments descend through children, the single-level wildcard
// through single, and the multi-level wildcard terminates in multi (it is
// always the last segment of a valid pattern). Subscriptions whose pattern
// ends exactly at this position are held in subs.
type trieNode struct {
	children map[string]*trieNode
	single   *trieNode
	multi    *trieNode
	subs     []*Subscription
}

func newTrie(scheme topic.Scheme) *trie {
	return &trie{scheme: scheme, root: newTrieNode()}
}

func newTrieNode() *trieNode {
	return &trieNode{}
}

// insert attaches a subscription at the node addressed by its pattern
// segments, creating nodes along the path as needed. The pattern must
// already be validated: the multi-level wildcard only appears in final
// position.
func (t *trie) insert(segments []string, sub *Subscription) {
	node := t.root
	for _, segment := range segments {
		switch {
		case t.scheme.IsMulti(segment):
			if node.multi == nil {
				node.multi = newTrieNode()
			}
			node = node.multi
		case t.scheme.IsSingle(segment):
			if node.single == nil {
				node.single = newTrieNode()
			}
			node = node.single
		default:
			if node.children == nil {
				node.children = make(map[string]*trieNode)
			}
			child, ok := node.children[segment]
			if !ok {
				child = newTrieNode()
				node.children[segment] = child
			}
			node = child
		}
	}
	node.subs = append(node.subs, sub)
}

// remove detaches the subscription with the given identity from the node
// addressed by the pattern segments, then prunes any node chain left empty
// so memory stays bounded by active patterns. It reports whether the
// subscription was found.
func (t *trie) remove(segments []string, id string) bool {
	removed, _ := t.removeFrom(t.root, segments, id)
	return removed
}

// removeFrom recurses to the terminal node, removes the subscription there,
// and reports on the way back up whether the child node can be pruned.
func (t *trie) removeFrom(node *trieNode, segments []string, id string) (removed, prune bool) {
	if len(segments) == 0 {
		for i, sub := range node.subs {
			if sub.id == id {
				node.subs = append(node.subs[:i], node.subs[i+1:]...)
				removed = true
				break
			}
		}
		return removed, node.empty()
	}

	segment, rest := segments[0], segments[1:]
	switch {
	case t.scheme.IsMulti(segment):
		if node.multi == nil {
			return false, false
		}
		removed, prune = t.removeFrom(node.multi, rest, id)
		if prune {
			node.multi = nil
		}
	case t.scheme.IsSingle(segment):
		if node.single == nil {
			return false, false
		}
		removed, prune = t.removeFrom(node.single, rest, id)
		if prune {
			node.single = nil
		}
	default:
		child, ok := node.children[segment]
		if !ok {
			return false, false
		}
		removed, prune = t.removeFrom(child, rest, id)
		if prune {
			delete(node.children, segment)
			if len(node.children) == 0 {
				node.children = nil
			}
		}
	}

	return removed, node.empty()
}

// empty reports whether a node holds no subscriptions and no children and
// can therefore be pruned from its parent.
func (n *trieNode) empty() bool {
	return len(n.subs) == 0 && len(n.children) == 0 && n.single == nil && n.multi == nil
}

// match returns every subscription whose pattern matches the concrete
// topic segments. All three branch types are explored at each level —
// literal child, single-level wildcard, multi-level wildcard — because
// several distinct patterns may match the same topic. Each subscription
// identity appears at most once in the result, even when it is reachable
// through more than one path.
func (t *trie) match(segments []string) []*Subscription {
	var out []*Subscription
	seen := make(map[string]struct{})
	t.root.collect(segments, seen, &out)
	return out
}

func (n *trieNode) collect(segments []string, seen map[string]struct{}, out *[]*Subscription) {
	// The multi-level wildcard consumes all remaining segments, including
	// none: "a/#" matches "a" as well as "a/b/c".
	if n.multi != nil {
		n.multi.gather(seen, out)
	}

	if len(segments) == 0 {
		n.gather(seen, out)
		return
	}

	segment, rest := segments[0], segments[1:]
	if child, ok := n.children[segment]; ok {
		child.collect(rest, seen, out)
	}
	if n.single != nil {
		n.single.collect(rest, seen, out)
	}
}

// gather appends this node's subscriptions, deduplicated by identity.
func (n *trieNode) gather(seen map[string]struct{}, out *[]*Subscription) {
	for _, sub := range n.subs {
		if _, dup := seen[sub.id]; dup {
			continue
		}
		seen[sub.id] = struct{}{}
		*out = append(*out, sub)
	}
}

package store

import "encoding/json"

// dispatchNotifications walks, for every touched node, its ancestor
// chain (the node itself plus every parent up to the root), collecting
// the set of observer URIs registered anywhere along that chain, then
// fires one notification per URI carrying the observed node's subtree.
// Spec.md §4.1 requires this to happen after the commit, outside the
// store lock, and fire-and-forget: a slow or unreachable observer must
// never stall the write path.
//
// This is deliberately the clean "walk every ancestor" behaviour, not
// the source's walk which kept re-notifying the same first ancestor
// found rather than continuing up the chain — that quirk is not
// reproduced here.
func (s *Store) dispatchNotifications(touched []*Node) {
	if len(touched) == 0 || s.transport == nil {
		return
	}

	type pending struct {
		uri     string
		subject *Node
	}
	var fanout []pending
	seen := make(map[string]bool)

	s.mu.Lock()
	for _, n := range touched {
		for cur := n; cur != nil; cur = cur.parent {
			for uri := range cur.observers {
				key := uri + "\x00" + cur.URI()
				if seen[key] {
					continue
				}
				seen[key] = true
				fanout = append(fanout, pending{uri: uri, subject: cur})
			}
		}
	}
	var bodies []struct {
		uri  string
		body []byte
	}
	for _, p := range fanout {
		body, err := json.Marshal(map[string]json.RawMessage{
			p.subject.URI(): p.subject.marshalSubtree(),
		})
		if err != nil {
			continue
		}
		bodies = append(bodies, struct {
			uri  string
			body []byte
		}{p.uri, body})
	}
	s.mu.Unlock()

	for _, b := range bodies {
		s.transport.Notify(b.uri, b.body)
	}
}

// marshalSubtree recursively serialises n: a LEAF becomes its raw
// value, an INTERNAL node becomes a JSON object of its children.
// Caller must hold the store lock.
func (n *Node) marshalSubtree() json.RawMessage {
	if n.Type() == Leaf {
		return n.value.Raw()
	}

	obj := make(map[string]json.RawMessage, len(n.children))
	for name, c := range n.children {
		obj[name] = c.marshalSubtree()
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return json.RawMessage("{}")
	}
	return out
}

package store

import (
	"encoding/json"
	"sort"
	"strings"
)

// Read answers a read query: one response tree per inner array of
// paths. Per spec.md §4.1, each inner array is resolved by sorting its
// paths lexicographically, discarding any path that is a prefix-
// extension of another already-kept path (subsumption), and grafting
// the surviving subtrees into a fresh response tree. A path that does
// not exist materializes as an empty-object subtree at that location,
// never as an error — read never throws through the transactional
// boundary (spec.md §9).
func (s *Store) Read(queries [][]string) []json.RawMessage {
	out := make([]json.RawMessage, len(queries))

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, paths := range queries {
		out[i] = s.readOneLocked(paths)
	}
	return out
}

func (s *Store) readOneLocked(paths []string) json.RawMessage {
	kept := subsume(paths)

	root := map[string]interface{}{}
	for _, p := range kept {
		segs := SplitPath(p)
		node, err := s.root.resolveReadOnly(segs)
		var subtree json.RawMessage
		if err != nil {
			subtree = json.RawMessage("{}")
		} else {
			subtree = node.marshalSubtree()
		}

		if len(segs) == 0 {
			// Reading "/" itself: the root's subtree *is* the response,
			// not a branch to graft under some key. Subsumption already
			// guarantees no other kept path survives alongside it.
			var decoded interface{}
			if err := json.Unmarshal(subtree, &decoded); err == nil {
				if obj, ok := decoded.(map[string]interface{}); ok {
					for k, v := range obj {
						root[k] = v
					}
					continue
				}
			}
			return subtree
		}

		graft(root, segs, subtree)
	}

	body, err := json.Marshal(root)
	if err != nil {
		return json.RawMessage("{}")
	}
	return body
}

// subsume sorts paths lexicographically and drops any path that is a
// prefix-extension of another already-kept path.
func subsume(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	var kept []string
	for _, p := range sorted {
		subsumed := false
		for _, k := range kept {
			if isPrefixExtension(k, p) {
				subsumed = true
				break
			}
		}
		if subsumed {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

// isPrefixExtension reports whether child names a path at or under
// parent, comparing by path segment rather than by raw string prefix
// (so "/ab" is not mistaken for a prefix of "/abc").
func isPrefixExtension(parent, child string) bool {
	if parent == child {
		return true
	}
	p := strings.TrimRight(parent, "/")
	return strings.HasPrefix(child, p+"/")
}

// graft inserts subtree at segs under root, creating intermediate
// empty-object levels as needed. Intermediate levels are built as
// map[string]interface{} so later grafts can descend into them; leaves
// are stored as json.RawMessage, which json.Marshal embeds verbatim.
func graft(root map[string]interface{}, segs []string, subtree json.RawMessage) {
	if len(segs) == 0 {
		return
	}

	cur := root
	for i, s := range segs {
		if i == len(segs)-1 {
			cur[s] = subtree
			return
		}

		next, ok := cur[s].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			cur[s] = next
		}
		cur = next
	}
}

// Dump serialises the whole tree and reports how many live time_table
// entries there are, for the diagnostic state endpoint. The time_table
// entries themselves are not serialised.
func (s *Store) Dump() (tree json.RawMessage, liveTTLs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root.marshalSubtree(), s.timeTable.len()
}

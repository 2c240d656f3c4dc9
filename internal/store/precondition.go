package store

import (
	"encoding/json"
)

// check evaluates one transaction's precondition object. Every key is
// a path; every path's predicates must hold, and every path in the
// object must hold, for the precondition to pass. Spec.md §9 flags
// the source's check() as returning after the first key — this is the
// corrected "require all preconditions" version.
func (s *Store) check(raw json.RawMessage) bool {
	if !looksLikeObject(raw) {
		return false
	}

	var preconditions map[string]json.RawMessage
	if err := json.Unmarshal(raw, &preconditions); err != nil {
		return false
	}

	for path, predicateRaw := range preconditions {
		node, found := s.resolveReadOnlyLocked(path)

		if !looksLikeObject(predicateRaw) {
			// (a) direct literal: structural equality against the node.
			if !nodeValueFor(node, found).Equal(ValueFromRaw(predicateRaw)) {
				return false
			}
			continue
		}

		// (b) object of named predicates; all must hold.
		var predicates map[string]json.RawMessage
		if err := json.Unmarshal(predicateRaw, &predicates); err != nil {
			return false
		}

		for name, val := range predicates {
			if !s.evalPredicate(name, val, node, found) {
				return false
			}
		}
	}

	return true
}

func (s *Store) evalPredicate(name string, raw json.RawMessage, node *Node, found bool) bool {
	switch name {
	case "old":
		return nodeValueFor(node, found).Equal(ValueFromRaw(raw))

	case "isArray":
		want, ok := decodeBool(raw)
		if !ok {
			s.log.Warn("precondition: non-boolean expression for isArray")
			return false
		}
		isArray := found && node.Type() == Leaf && node.value.IsArray()
		if want {
			return isArray
		}
		return !isArray

	case "oldEmpty":
		want, ok := decodeBool(raw)
		if !ok {
			s.log.Warn("precondition: non-boolean expression for oldEmpty")
			return false
		}
		if want {
			return !found
		}
		return found

	default:
		return false
	}
}

// nodeValueFor returns the value to compare a node against for
// structural-equality preconditions: a LEAF's own value, or an
// INTERNAL node's full serialised subtree (Store.cpp's check()
// compares the whole node, not just a scalar, via `node == op.value`).
// NullValue for an absent path.
func nodeValueFor(node *Node, found bool) Value {
	if !found {
		return NullValue
	}
	if node.Type() == Internal {
		return ValueFromRaw(node.marshalSubtree())
	}
	return node.value
}

func decodeBool(raw json.RawMessage) (bool, bool) {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, false
	}
	return b, true
}

// resolveReadOnlyLocked resolves a path from the root without
// mutating the tree. Caller must already hold s.mu.
func (s *Store) resolveReadOnlyLocked(path string) (*Node, bool) {
	node, err := s.root.resolveReadOnly(SplitPath(path))
	if err != nil {
		return nil, false
	}
	return node, true
}

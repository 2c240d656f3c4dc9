package store

import (
	"encoding/json"
	"strings"
	"time"
)

// applyValue is the tagged-variant op dispatcher spec.md §9 asks for
// ("model ops as a tagged variant ... not a chain of string
// comparisons" — the switch in dispatchOp is the one place that
// compares op names; everywhere else the shape of the JSON value
// alone decides what happens).
func (n *Node) applyValue(raw json.RawMessage, tracker *mutationTracker) bool {
	if !looksLikeObject(raw) {
		n.replaceSubtree(ValueFromRaw(raw))
		tracker.mark(n)
		return true
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}

	if opRaw, ok := obj["op"]; ok {
		return n.dispatchOp(opRaw, obj, tracker)
	}

	if newRaw, ok := obj["new"]; ok {
		n.replaceSubtree(ValueFromRaw(newRaw))
		tracker.mark(n)
		return true
	}

	ok := true
	for key, val := range obj {
		var target *Node
		if strings.Contains(key, "/") {
			target = n.resolveMutating(SplitPath(key))
		} else {
			target = n.childOrCreate(key)
		}
		if !target.applyValue(val, tracker) {
			ok = false
		}
	}
	return ok
}

func looksLikeObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{")
}

func (n *Node) dispatchOp(opRaw json.RawMessage, obj map[string]json.RawMessage, tracker *mutationTracker) bool {
	var opName string
	if err := json.Unmarshal(opRaw, &opName); err != nil {
		return false
	}

	switch opName {
	case "set":
		return n.opSet(obj, tracker)
	case "delete":
		return n.opDelete(tracker)
	case "increment":
		return n.opIncrement(tracker)
	case "decrement":
		return n.opDecrement(tracker)
	case "push":
		return n.opPush(obj, tracker)
	case "pop":
		return n.opPop(tracker)
	case "prepend":
		return n.opPrepend(obj, tracker)
	case "shift":
		return n.opShift(tracker)
	case "observe":
		return n.opObserve(obj, tracker)
	case "unobserve":
		return n.opUnobserve(obj, tracker)
	default:
		return false
	}
}

func (n *Node) opSet(obj map[string]json.RawMessage, tracker *mutationTracker) bool {
	newRaw, ok := obj["new"]
	if !ok {
		return false
	}

	var at time.Time
	hasTTL := false
	if ttlRaw, has := obj["ttl"]; has {
		ms, err := parseTTLMillis(ttlRaw)
		if err != nil {
			return false
		}
		at = time.Now().Add(time.Duration(ms) * time.Millisecond)
		hasTTL = true
	}

	n.replaceSubtree(ValueFromRaw(newRaw))
	if hasTTL {
		n.addTimeToLive(at)
	}
	tracker.mark(n)
	return true
}

func (n *Node) opDelete(tracker *mutationTracker) bool {
	n.remove()
	tracker.mark(n)
	return true
}

func (n *Node) opIncrement(tracker *mutationTracker) bool {
	var next int64 = 1
	if cur, ok := n.value.Int(); ok {
		next = cur + 1
	}
	n.replaceSubtree(valueOf(next))
	tracker.mark(n)
	return true
}

func (n *Node) opDecrement(tracker *mutationTracker) bool {
	var next int64 = -1
	if cur, ok := n.value.Int(); ok {
		next = cur - 1
	}
	n.replaceSubtree(valueOf(next))
	tracker.mark(n)
	return true
}

func (n *Node) opPush(obj map[string]json.RawMessage, tracker *mutationTracker) bool {
	newRaw, ok := obj["new"]
	if !ok {
		return false
	}
	arr, _ := n.value.Array()
	arr = append(arr, decodeAny(newRaw))
	n.replaceSubtree(valueOf(arr))
	tracker.mark(n)
	return true
}

// opPop removes the last element of the target array, yielding an
// empty array when the source had exactly one element. Spec.md §9
// flags the source's length==1 special case as a bug; this is the
// corrected "remove last, possibly yielding empty array" semantics.
func (n *Node) opPop(tracker *mutationTracker) bool {
	arr, ok := n.value.Array()
	if !ok || len(arr) == 0 {
		return true
	}
	arr = arr[:len(arr)-1]
	n.replaceSubtree(valueOf(arr))
	tracker.mark(n)
	return true
}

func (n *Node) opPrepend(obj map[string]json.RawMessage, tracker *mutationTracker) bool {
	newRaw, ok := obj["new"]
	if !ok {
		return false
	}
	arr, _ := n.value.Array()
	arr = append([]interface{}{decodeAny(newRaw)}, arr...)
	n.replaceSubtree(valueOf(arr))
	tracker.mark(n)
	return true
}

func (n *Node) opShift(tracker *mutationTracker) bool {
	arr, ok := n.value.Array()
	if !ok || len(arr) == 0 {
		return true
	}
	arr = arr[1:]
	n.replaceSubtree(valueOf(arr))
	tracker.mark(n)
	return true
}

// opObserve and opUnobserve register/deregister a callback URI on the
// target node (spec.md §4.1's "registers observer http://x/cb at /a"
// test vector; the source reaches this through Node::addObserver /
// removeObserver without a dedicated op name, so "url" is the field
// name used here). Neither mutates the node's value, so neither marks
// the tracker — registering an observer must not itself fire a
// notification, only subsequent mutations do.
func (n *Node) opObserve(obj map[string]json.RawMessage, tracker *mutationTracker) bool {
	url, ok := decodeString(obj["url"])
	if !ok {
		return false
	}
	n.addObserver(url)
	return true
}

func (n *Node) opUnobserve(obj map[string]json.RawMessage, tracker *mutationTracker) bool {
	url, ok := decodeString(obj["url"])
	if !ok {
		return false
	}
	n.removeObserver(url)
	return true
}

func decodeString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func decodeAny(raw json.RawMessage) interface{} {
	var v interface{}
	_ = json.Unmarshal(raw, &v)
	return v
}

package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawOp(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func txn(t *testing.T, op interface{}) Transaction {
	return Transaction{rawOp(t, op)}
}

func txnWithPre(t *testing.T, op, pre interface{}) Transaction {
	return Transaction{rawOp(t, op), rawOp(t, pre)}
}

func readOne(t *testing.T, s *Store, path string) interface{} {
	t.Helper()
	out := s.Read([][]string{{path}})
	require.Len(t, out, 1)
	var tree map[string]interface{}
	require.NoError(t, json.Unmarshal(out[0], &tree))
	return navigate(tree, SplitPath(path))
}

func navigate(tree map[string]interface{}, segs []string) interface{} {
	var cur interface{} = tree
	for _, s := range segs {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[s]
	}
	return cur
}

func TestApplySet(t *testing.T) {
	s := New(nil)

	results := s.Apply([]Transaction{
		txn(t, map[string]interface{}{"/a/b": map[string]interface{}{"op": "set", "new": 7}}),
	})
	assert.Equal(t, []bool{true}, results)
	assert.Equal(t, float64(7), readOne(t, s, "/a/b"))
}

func TestApplyBadShapeRejected(t *testing.T) {
	s := New(nil)
	results := s.Apply([]Transaction{{}, {rawOp(t, 1), rawOp(t, 2), rawOp(t, 3)}})
	assert.Equal(t, []bool{false, false}, results)
}

func TestIncrementDecrement(t *testing.T) {
	s := New(nil)
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/c": map[string]interface{}{"op": "increment"}})})
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/c": map[string]interface{}{"op": "increment"}})})
	assert.Equal(t, float64(2), readOne(t, s, "/c"))

	s.Apply([]Transaction{txn(t, map[string]interface{}{"/c": map[string]interface{}{"op": "decrement"}})})
	assert.Equal(t, float64(1), readOne(t, s, "/c"))
}

func TestPushPopPrependShift(t *testing.T) {
	s := New(nil)
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/arr": map[string]interface{}{"op": "push", "new": 1}})})
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/arr": map[string]interface{}{"op": "push", "new": 2}})})
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/arr": map[string]interface{}{"op": "prepend", "new": 0}})})
	assert.Equal(t, []interface{}{float64(0), float64(1), float64(2)}, readOne(t, s, "/arr"))

	s.Apply([]Transaction{txn(t, map[string]interface{}{"/arr": map[string]interface{}{"op": "shift"}})})
	assert.Equal(t, []interface{}{float64(1), float64(2)}, readOne(t, s, "/arr"))

	s.Apply([]Transaction{txn(t, map[string]interface{}{"/arr": map[string]interface{}{"op": "pop"}})})
	assert.Equal(t, []interface{}{float64(1)}, readOne(t, s, "/arr"))

	// popping the last element yields an empty array, not a no-op
	// (spec.md §9's corrected "length==1" behaviour).
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/arr": map[string]interface{}{"op": "pop"}})})
	assert.Equal(t, []interface{}{}, readOne(t, s, "/arr"))
}

func TestDeleteCascades(t *testing.T) {
	s := New(nil)
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/a/b/c": map[string]interface{}{"op": "set", "new": 1}})})
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/a": map[string]interface{}{"op": "delete"}})})
	assert.Equal(t, map[string]interface{}{}, readOne(t, s, "/a"))
}

func TestPreconditionOldAndOldEmpty(t *testing.T) {
	s := New(nil)
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/k": map[string]interface{}{"op": "set", "new": 5}})})

	ok := s.Apply([]Transaction{
		txnWithPre(t,
			map[string]interface{}{"/k": map[string]interface{}{"op": "set", "new": 6}},
			map[string]interface{}{"/k": map[string]interface{}{"old": 5}},
		),
	})
	assert.Equal(t, []bool{true}, ok)
	assert.Equal(t, float64(6), readOne(t, s, "/k"))

	ok = s.Apply([]Transaction{
		txnWithPre(t,
			map[string]interface{}{"/k": map[string]interface{}{"op": "set", "new": 7}},
			map[string]interface{}{"/k": map[string]interface{}{"old": 5}},
		),
	})
	assert.Equal(t, []bool{false}, ok)
	assert.Equal(t, float64(6), readOne(t, s, "/k"))

	ok = s.Apply([]Transaction{
		txnWithPre(t,
			map[string]interface{}{"/missing": map[string]interface{}{"op": "set", "new": 1}},
			map[string]interface{}{"/missing": map[string]interface{}{"oldEmpty": true}},
		),
	})
	assert.Equal(t, []bool{true}, ok)
}

func TestPreconditionRequiresAllKeysAndAllPredicates(t *testing.T) {
	s := New(nil)
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/a": map[string]interface{}{"op": "set", "new": 1}})})
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/b": map[string]interface{}{"op": "set", "new": 2}})})

	ok := s.Apply([]Transaction{
		txnWithPre(t,
			map[string]interface{}{"/x": map[string]interface{}{"op": "set", "new": 99}},
			map[string]interface{}{
				"/a": map[string]interface{}{"old": 1},
				"/b": map[string]interface{}{"old": 999},
			},
		),
	})
	assert.Equal(t, []bool{false}, ok, "one failing key among several must fail the whole precondition")
	assert.Equal(t, map[string]interface{}{}, readOne(t, s, "/x"))
}

func TestPreconditionIsArray(t *testing.T) {
	s := New(nil)
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/arr": map[string]interface{}{"op": "push", "new": 1}})})

	ok := s.Apply([]Transaction{
		txnWithPre(t,
			map[string]interface{}{"/arr": map[string]interface{}{"op": "push", "new": 2}},
			map[string]interface{}{"/arr": map[string]interface{}{"isArray": true}},
		),
	})
	assert.Equal(t, []bool{true}, ok)
}

func TestPreconditionOldAgainstSubtree(t *testing.T) {
	s := New(nil)
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/a/b": map[string]interface{}{"op": "set", "new": 1}})})

	ok := s.Apply([]Transaction{
		txnWithPre(t,
			map[string]interface{}{"/a/c": map[string]interface{}{"op": "set", "new": 2}},
			map[string]interface{}{"/a": map[string]interface{}{"old": map[string]interface{}{"b": 1}}},
		),
	})
	assert.Equal(t, []bool{true}, ok, "an old precondition against an INTERNAL node must compare its full subtree")
	assert.Equal(t, float64(2), readOne(t, s, "/a/c"))

	ok = s.Apply([]Transaction{
		txnWithPre(t,
			map[string]interface{}{"/a/c": map[string]interface{}{"op": "set", "new": 3}},
			map[string]interface{}{"/a": map[string]interface{}{"old": map[string]interface{}{"b": 999}}},
		),
	})
	assert.Equal(t, []bool{false}, ok)
}

func TestFailedTransactionDoesNotAbortBatch(t *testing.T) {
	s := New(nil)
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/k": map[string]interface{}{"op": "set", "new": 1}})})

	results := s.Apply([]Transaction{
		txnWithPre(t,
			map[string]interface{}{"/k": map[string]interface{}{"op": "set", "new": 2}},
			map[string]interface{}{"/k": map[string]interface{}{"old": 999}},
		),
		txn(t, map[string]interface{}{"/m": map[string]interface{}{"op": "set", "new": 3}}),
	})
	assert.Equal(t, []bool{false, true}, results)
	assert.Equal(t, float64(1), readOne(t, s, "/k"))
	assert.Equal(t, float64(3), readOne(t, s, "/m"))
}

func TestReadSubsumption(t *testing.T) {
	s := New(nil)
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/a/b/c": map[string]interface{}{"op": "set", "new": 1}})})

	out := s.Read([][]string{{"/a", "/a/b/c"}})
	require.Len(t, out, 1)
	var tree map[string]interface{}
	require.NoError(t, json.Unmarshal(out[0], &tree))
	// "/a/b/c" is subsumed by "/a"; only one subtree should be grafted.
	assert.Equal(t, float64(1), navigate(tree, []string{"a", "b", "c"}))
}

func TestReadMissingPathIsEmptyObject(t *testing.T) {
	s := New(nil)
	out := s.Read([][]string{{"/nope"}})
	require.Len(t, out, 1)
	assert.JSONEq(t, `{"nope":{}}`, string(out[0]))
}

func TestReadRootRoundTripsScalar(t *testing.T) {
	s := New(nil)
	results := s.Apply([]Transaction{txn(t, map[string]interface{}{"/": map[string]interface{}{"op": "set", "new": "hello"}})})
	require.Equal(t, []bool{true}, results)

	out := s.Read([][]string{{"/"}})
	require.Len(t, out, 1)
	assert.JSONEq(t, `"hello"`, string(out[0]), "spec property #4: apply(set /, T); read([[\"/\"]]) must return T")
}

func TestReadRootRoundTripsSubtree(t *testing.T) {
	s := New(nil)
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/a/b": map[string]interface{}{"op": "set", "new": 7}})})
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/c": map[string]interface{}{"op": "set", "new": 1}})})

	out := s.Read([][]string{{"/"}})
	require.Len(t, out, 1)
	assert.JSONEq(t, `{"a":{"b":7},"c":1}`, string(out[0]))
}

func TestApplyExternal(t *testing.T) {
	s := New(nil)
	s.Apply([]Transaction{txn(t, map[string]interface{}{"/x": map[string]interface{}{"op": "set", "new": 1}})})

	results := s.ApplyExternal([]json.RawMessage{
		rawOp(t, map[string]interface{}{"/x": map[string]interface{}{"op": "delete"}}),
	})
	assert.Equal(t, []bool{true}, results)
	assert.Equal(t, map[string]interface{}{}, readOne(t, s, "/x"))
}

func TestTTLSetRecordsLiveEntry(t *testing.T) {
	s := New(nil)
	results := s.Apply([]Transaction{
		txn(t, map[string]interface{}{"/temp": map[string]interface{}{"op": "set", "new": 1, "ttl": 10}}),
	})
	assert.Equal(t, []bool{true}, results)

	_, liveTTLs := s.Dump()
	assert.Equal(t, 1, liveTTLs)
}

func TestTTLRejectsFloatingPoint(t *testing.T) {
	s := New(nil)
	results := s.Apply([]Transaction{
		txn(t, map[string]interface{}{"/temp": map[string]interface{}{"op": "set", "new": 1, "ttl": 1.5}}),
	})
	assert.Equal(t, []bool{false}, results, "a floating-point ttl is a malformed transaction, not silently rescaled")
}

func TestOverwriteClearsTTL(t *testing.T) {
	s := New(nil)
	s.Apply([]Transaction{
		txn(t, map[string]interface{}{"/temp": map[string]interface{}{"op": "set", "new": 1, "ttl": 100000}}),
	})
	_, liveTTLs := s.Dump()
	require.Equal(t, 1, liveTTLs)

	s.Apply([]Transaction{
		txn(t, map[string]interface{}{"/temp": map[string]interface{}{"op": "set", "new": 2}}),
	})
	_, liveTTLs = s.Dump()
	assert.Equal(t, 0, liveTTLs)
}

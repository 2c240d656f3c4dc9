package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// parseTTLMillis validates a transaction's "ttl" field. spec.md §9
// resolves the source's ambiguous int-vs-float handling: TTLs are
// always milliseconds and must be a JSON integer; any floating-point
// ttl is treated as a malformed transaction rather than silently
// rescaled.
func parseTTLMillis(raw []byte) (int64, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var num json.Number
	if err := dec.Decode(&num); err != nil {
		return 0, fmt.Errorf("ttl: value is not a number: %w", err)
	}

	if strings.ContainsAny(num.String(), ".eE") {
		return 0, fmt.Errorf("ttl: floating-point ttl %q is malformed", num.String())
	}

	ms, err := num.Int64()
	if err != nil {
		return 0, fmt.Errorf("ttl: value is not an integer: %w", err)
	}
	return ms, nil
}

package factlog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CanonicalJSON serializes a fact to its canonical byte form: JSON with
// object keys in sorted order and numbers preserved verbatim. Two honest
// producers serializing the same fact must emit identical bytes, since the
// tree commitment is computed over these bytes; any change to this encoding
// is a compatibility break with previously issued commitments.
func CanonicalJSON(fact any) ([]byte, error) {
	raw, err := json.Marshal(fact)
	if err != nil {
		return nil, fmt.Errorf("marshal fact: %w", err)
	}

	// Round-trip through an untyped value so struct fields and raw
	// messages come out with the same key ordering as maps. UseNumber
	// keeps numeric literals exact instead of forcing float64.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var norm any
	if err := dec.Decode(&norm); err != nil {
		return nil, fmt.Errorf("normalize fact: %w", err)
	}

	out, err := json.Marshal(norm)
	if err != nil {
		return nil, fmt.Errorf("canonicalize fact: %w", err)
	}
	return out, nil
}

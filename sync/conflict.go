package sync

import (
	"bytes"
	"encoding/json"
	"math/big"

	"github.com/teranos/savesync/errors"
)

// DefaultConflictField is the generation counter compared by ConflictPolicy
const DefaultConflictField = "seed"

// ErrMalformedRemote marks remote content that cannot take part in reconciliation
var ErrMalformedRemote = errors.New("malformed remote save")

// ConflictPolicy decides whether fetched remote content supersedes the local
// blob. Both are parsed as JSON objects and Field is compared numerically;
// remote wins only when its value is strictly greater.
type ConflictPolicy struct {
	Field string
}

// RemoteWins reports whether remote should replace local. An empty local
// means nothing is stored locally. A malformed remote returns
// ErrMalformedRemote; a malformed or absent local loses to a valid remote.
func (p ConflictPolicy) RemoteWins(local, remote SaveBlob) (bool, error) {
	field := p.field()

	remoteValue, err := extractNumber(remote, field)
	if err != nil {
		return false, errors.Mark(errors.Wrapf(err, "remote %q", field), ErrMalformedRemote)
	}

	localValue, err := extractNumber(local, field)
	if err != nil {
		return true, nil
	}

	return remoteValue.Cmp(localValue) > 0, nil
}

func (p ConflictPolicy) field() string {
	if p.Field == "" {
		return DefaultConflictField
	}
	return p.Field
}

// extractNumber parses blob as a JSON object and returns field as an exact rational
func extractNumber(blob SaveBlob, field string) (*big.Rat, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(blob)))
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, errors.Wrap(err, "not a JSON object")
	}
	if obj == nil {
		return nil, errors.New("not a JSON object")
	}

	raw, ok := obj[field]
	if !ok {
		return nil, errors.Newf("field %q missing", field)
	}
	num, ok := raw.(json.Number)
	if !ok {
		return nil, errors.Newf("field %q is not a number", field)
	}

	r, ok := new(big.Rat).SetString(num.String())
	if !ok {
		return nil, errors.Newf("field %q is not a number", field)
	}
	return r, nil
}

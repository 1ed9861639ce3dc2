package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/savesync/errors"
)

func TestConflictPolicy_RemoteWins(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		local     SaveBlob
		remote    SaveBlob
		want      bool
		malformed bool
	}{
		{name: "remote newer", local: `{"seed":1}`, remote: `{"seed":2}`, want: true},
		{name: "remote older", local: `{"seed":5}`, remote: `{"seed":2}`},
		{name: "tie keeps local", local: `{"seed":3}`, remote: `{"seed":3}`},
		{name: "custom field", field: "counter", local: `{"counter":4}`, remote: `{"counter":5}`, want: true},
		{name: "custom field ignores seed", field: "counter", local: `{"counter":6,"seed":1}`, remote: `{"counter":5,"seed":9}`},
		{name: "large u64 seeds compare exactly", local: `{"seed":18446744073709551614}`, remote: `{"seed":18446744073709551615}`, want: true},
		{name: "fractional values", local: `{"seed":1.5}`, remote: `{"seed":1.25}`},
		{name: "absent local", local: "", remote: `{"seed":0}`, want: true},
		{name: "malformed local", local: `not json`, remote: `{"seed":1}`, want: true},
		{name: "local missing field", local: `{"rotations":[]}`, remote: `{"seed":1}`, want: true},
		{name: "remote not json", local: `{"seed":1}`, remote: `<html>`, malformed: true},
		{name: "remote missing field", local: `{"seed":1}`, remote: `{"rotations":[1]}`, malformed: true},
		{name: "remote non-numeric field", local: `{"seed":1}`, remote: `{"seed":"9"}`, malformed: true},
		{name: "remote array", local: `{"seed":1}`, remote: `[1,2]`, malformed: true},
		{name: "remote null", local: `{"seed":1}`, remote: `null`, malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := ConflictPolicy{Field: tt.field}
			got, err := policy.RemoteWins(tt.local, tt.remote)

			if tt.malformed {
				assert.True(t, errors.Is(err, ErrMalformedRemote), "want ErrMalformedRemote, got %v", err)
				assert.False(t, got, "local is kept")
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConflictPolicy_DefaultField(t *testing.T) {
	assert.Equal(t, DefaultConflictField, ConflictPolicy{}.field())
	assert.Equal(t, "counter", ConflictPolicy{Field: "counter"}.field())
}

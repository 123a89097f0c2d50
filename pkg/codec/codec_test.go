package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalIsDeterministicAcrossMapOrder(t *testing.T) {
	a := map[string]int{"z": 1, "a": 2, "m": 3}
	b := map[string]int{"m": 3, "z": 1, "a": 2}

	encA, err := Marshal(a)
	require.NoError(t, err)
	encB, err := Marshal(b)
	require.NoError(t, err)
	require.Equal(t, encA, encB)
}

func TestRoundTrip(t *testing.T) {
	type payload struct {
		Name  string
		Count int
	}
	in := payload{Name: "alice", Count: 7}

	data, err := Marshal(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, Unmarshal(data, &out))
	require.Equal(t, in, out)
}

package warperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessageIncludesCodeAndText(t *testing.T) {
	err := New(KindValidation, CodeInvalidOp, "missing node field", nil)
	require.Equal(t, "INVALID_OP: missing node field", err.Error())
}

func TestErrorMessageFallsBackToCodeOnly(t *testing.T) {
	err := New(KindValidation, CodeInvalidOp, "", nil)
	require.Equal(t, "INVALID_OP", err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("underlying failure")
	err := Wrap(KindTransient, CodeOperationAborted, "retry exhausted", nil, cause)
	require.ErrorIs(t, err, cause)
}

func TestIsMatchesByCode(t *testing.T) {
	err := New(KindCausal, CodeDivergence, "chain does not descend from boundary", map[string]any{"writer": "alice"})
	require.True(t, Is(err, CodeDivergence))
	require.False(t, Is(err, CodeNotPatch))
}

func TestIsFalseForPlainErrors(t *testing.T) {
	require.False(t, Is(errors.New("plain"), CodeInvalidOp))
}

func TestIsMatchesThroughWrappedPlainErrors(t *testing.T) {
	warpErr := New(KindCausal, CodeGraphMismatch, "graph mismatch", nil)
	wrapped := fmt.Errorf("context: %w", warpErr)
	require.True(t, Is(wrapped, CodeGraphMismatch))
}

func TestContextCarriesOffendingIdentifiers(t *testing.T) {
	err := New(KindCausal, CodeWormholeMultiWriter, "range spans two writers",
		map[string]any{"expected_writer": "alice", "actual_writer": "bob"})
	require.Equal(t, "alice", err.Context["expected_writer"])
	require.Equal(t, "bob", err.Context["actual_writer"])
}

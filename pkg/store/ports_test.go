package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidOID(t *testing.T) {
	require.True(t, ValidOID("4b825dc642cb6eb9a060e54bf8d69288fbee4904"))
	require.False(t, ValidOID("not-an-oid"))
	require.False(t, ValidOID("4B825DC642CB6EB9A060E54BF8D69288FBEE4904"))
}

func TestValidRef(t *testing.T) {
	require.True(t, ValidRef("refs/warp/g1/writers/alice"))
	require.True(t, ValidRef("HEAD"))
	require.False(t, ValidRef("-refs/evil"))
	require.False(t, ValidRef(""))
}

func TestValidConfigKey(t *testing.T) {
	require.True(t, ValidConfigKey("core.bare"))
	require.False(t, ValidConfigKey("nodotkey"))
}

func TestEmptyTreeConstant(t *testing.T) {
	require.True(t, ValidOID(EmptyTree))
}

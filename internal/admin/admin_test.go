package admin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectory(t *testing.T) {
	d := NewDirectory(ChatActor(6012422087), "root", "")

	require.True(t, d.IsAdministrator("tg:6012422087"))
	require.True(t, d.IsAdministrator("root"))
	require.False(t, d.IsAdministrator(ChatActor(1)))
	require.False(t, d.IsAdministrator(""))
}

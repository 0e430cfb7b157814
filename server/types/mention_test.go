package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_ParseMentions(t *testing.T) {
	names, broadcast := ParseMentions("@alice check with @bob, then @alice again")
	require.Equal(t, []string{"alice", "bob"}, names)
	require.False(t, broadcast)

	names, broadcast = ParseMentions("@ALL hands: @carol")
	require.Equal(t, []string{"carol"}, names)
	require.True(t, broadcast)

	names, broadcast = ParseMentions("no mentions here")
	require.Empty(t, names)
	require.False(t, broadcast)
}

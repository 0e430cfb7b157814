package signing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSubjectIdentity(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected Identity
	}{
		{
			name:     "blank value",
			raw:      "   ",
			expected: Identity{},
		},
		{
			name:     "bare wildcard",
			raw:      "*",
			expected: Identity{},
		},
		{
			name:     "wildcard host keeps letters",
			raw:      "*.example.com",
			expected: Identity{AgentName: "*.example.com"},
		},
		{
			name:     "long digit run is an owner id",
			raw:      "330182199310253626",
			expected: Identity{OwnerID: "330182199310253626"},
		},
		{
			name:     "short digit run is a name",
			raw:      "42",
			expected: Identity{AgentName: "42"},
		},
		{
			name:     "country code",
			raw:      "CN",
			expected: Identity{},
		},
		{
			name:     "mixed short code counts as uppercase",
			raw:      "C1",
			expected: Identity{},
		},
		{
			name:     "plain name",
			raw:      "scout",
			expected: Identity{AgentName: "scout"},
		},
		{
			name:     "positional pair",
			raw:      "scout-1,ops-7",
			expected: Identity{AgentName: "scout-1", OwnerID: "ops-7"},
		},
		{
			name:     "positional pair with padding",
			raw:      " scout , 7788 ",
			expected: Identity{AgentName: "scout", OwnerID: "7788"},
		},
		{
			name:     "extra positional parts ignored",
			raw:      "scout,ops-7,extra",
			expected: Identity{AgentName: "scout", OwnerID: "ops-7"},
		},
		{
			name:     "key value pairs",
			raw:      "agent=scout;owner=ops-7",
			expected: Identity{AgentName: "scout", OwnerID: "ops-7"},
		},
		{
			name:     "colon separated keys",
			raw:      "name:scout|uid:777",
			expected: Identity{AgentName: "scout", OwnerID: "777"},
		},
		{
			name:     "empty key value skipped",
			raw:      "agent=;owner=ops-7",
			expected: Identity{OwnerID: "ops-7"},
		},
		{
			name:     "first value per key wins",
			raw:      "agent=scout;agent=impostor",
			expected: Identity{AgentName: "scout"},
		},
		{
			name:     "unrecognized keys fall back to positional parsing",
			raw:      "foo=bar",
			expected: Identity{AgentName: "foo=bar"},
		},
		{
			name:     "responsible id key",
			raw:      "name=scout,responsible_id=u-12",
			expected: Identity{AgentName: "scout", OwnerID: "u-12"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseSubjectIdentity(tc.raw))
		})
	}
}

func TestCertMeta_ExtractIdentity(t *testing.T) {
	t.Run("identity value wins", func(t *testing.T) {
		meta := &CertMeta{
			SubjectIdentityValue: "scout,ops-7",
			SubjectCN:            "other",
			SubjectRDNValue:      "ignored",
		}
		assert.Equal(t, Identity{AgentName: "scout", OwnerID: "ops-7"}, meta.ExtractIdentity())
	})

	t.Run("falls through unparseable candidates", func(t *testing.T) {
		meta := &CertMeta{
			SubjectIdentityValue: "CN",
			SubjectCN:            "scout",
		}
		assert.Equal(t, Identity{AgentName: "scout"}, meta.ExtractIdentity())
	})

	t.Run("no candidate parses", func(t *testing.T) {
		meta := &CertMeta{SubjectIdentityValue: "US"}
		assert.True(t, meta.ExtractIdentity().Empty())
	})
}

func TestCertMeta_ResolveIdentity(t *testing.T) {
	t.Run("cn fills missing agent name", func(t *testing.T) {
		meta := &CertMeta{
			SubjectIdentityValue: "5501",
			SubjectCN:            "MeshBoard Agent",
		}
		id := meta.ResolveIdentity()
		assert.Equal(t, "MeshBoard Agent", id.AgentName)
		assert.Equal(t, "5501", id.OwnerID)
	})

	t.Run("serial number then uid fill missing owner", func(t *testing.T) {
		meta := &CertMeta{
			SubjectCN:           "scout",
			SubjectSerialNumber: "9912",
			SubjectUID:          "u-55",
		}
		id := meta.ResolveIdentity()
		assert.Equal(t, "scout", id.AgentName)
		assert.Equal(t, "9912", id.OwnerID)

		meta.SubjectSerialNumber = ""
		assert.Equal(t, "u-55", meta.ResolveIdentity().OwnerID)
	})
}

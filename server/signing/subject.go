package signing

import (
	"strings"
	"unicode"
)

// Identity holds the agent identity fields recovered from a certificate
// subject. Either field may be empty when the subject does not carry it.
type Identity struct {
	AgentName string
	OwnerID   string
}

// Empty reports whether no identity field was recovered.
func (i Identity) Empty() bool {
	return i.AgentName == "" && i.OwnerID == ""
}

// ParseSubjectIdentity parses a certificate subject value into identity
// fields. It understands key/value payloads such as "agent=scout;owner=ops-7"
// as well as positional ones such as "scout,ops-7", and rejects values that
// are clearly not an identity: wildcard hosts, bare country or region codes,
// and long digit runs are never an agent name.
func ParseSubjectIdentity(raw string) Identity {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}
	}
	if strings.Contains(raw, "*") && !containsLetter(raw) {
		return Identity{}
	}
	if allDigits(raw) && len(raw) >= 4 {
		return Identity{OwnerID: raw}
	}
	if len(raw) <= 2 && isUpperCode(raw) {
		return Identity{}
	}

	if strings.ContainsAny(raw, "=:") {
		if id := parseKeyValueIdentity(raw); !id.Empty() {
			return id
		}
	}

	parts := splitIdentityParts(raw, ",|")
	switch len(parts) {
	case 0:
		return Identity{}
	case 1:
		p := parts[0]
		if allDigits(p) && len(p) >= 4 {
			return Identity{OwnerID: p}
		}
		if len(p) <= 2 && isUpperCode(p) {
			return Identity{}
		}
		return Identity{AgentName: p}
	default:
		return Identity{AgentName: parts[0], OwnerID: parts[1]}
	}
}

// parseKeyValueIdentity splits raw into chunks on ";", "," or "|" and reads
// each chunk as key=value, falling back to key:value. The first non-empty
// value per key wins.
func parseKeyValueIdentity(raw string) Identity {
	var id Identity
	for _, chunk := range splitIdentityParts(raw, ";,|") {
		var key, value string
		if k, v, found := strings.Cut(chunk, "="); found {
			key, value = k, v
		} else if k, v, found := strings.Cut(chunk, ":"); found {
			key, value = k, v
		} else {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch key {
		case "agent", "agent_name", "name":
			if id.AgentName == "" {
				id.AgentName = value
			}
		case "owner", "owner_id", "uid", "user_id", "responsible_id":
			if id.OwnerID == "" {
				id.OwnerID = value
			}
		}
	}
	return id
}

// ExtractIdentity parses the subject into identity fields, trying each
// candidate value in decreasing confidence order until one parses.
func (m *CertMeta) ExtractIdentity() Identity {
	for _, candidate := range []string{m.SubjectIdentityValue, m.SubjectCN, m.SubjectRDNValue} {
		if candidate == "" {
			continue
		}
		if id := ParseSubjectIdentity(candidate); !id.Empty() {
			return id
		}
	}
	return Identity{}
}

// ResolveIdentity extracts the subject identity and fills the gaps from the
// remaining subject attributes: the CN covers a missing agent name, the
// subject serialNumber and then UID cover a missing owner.
func (m *CertMeta) ResolveIdentity() Identity {
	id := m.ExtractIdentity()
	if id.AgentName == "" {
		id.AgentName = m.SubjectCN
	}
	if id.OwnerID == "" {
		id.OwnerID = m.SubjectSerialNumber
	}
	if id.OwnerID == "" {
		id.OwnerID = m.SubjectUID
	}
	return id
}

func splitIdentityParts(raw, separators string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return strings.ContainsRune(separators, r)
	})
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if trimmed := strings.TrimSpace(f); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// isUpperCode reports whether s reads as an all-uppercase code such as "CN"
// or "US": at least one letter and no lowercase ones.
func isUpperCode(s string) bool {
	hasUpper := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasUpper = true
		}
	}
	return hasUpper
}

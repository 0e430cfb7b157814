package types

import (
	"regexp"
	"strings"
)

var mentionRegexp = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)

// ParseMentions extracts the unique mention names from content in order of
// first appearance. The "all" token only raises the broadcast flag and never
// appears among the names.
func ParseMentions(content string) ([]string, bool) {
	var names []string
	broadcast := false
	seen := make(map[string]bool)
	for _, match := range mentionRegexp.FindAllStringSubmatch(content, -1) {
		name := match[1]
		if strings.EqualFold(name, "all") {
			broadcast = true
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, broadcast
}

package nats

import (
	"strings"

	"github.com/autopeer-io/plantd/pkg/mqtt/topic"
)

// toSubject maps an MQTT topic or filter onto NATS subject syntax:
// levels become tokens, + becomes * and # becomes >.
func toSubject(t string) string {
	parts := strings.Split(t, topic.Separator)
	for i, p := range parts {
		switch p {
		case topic.Wildcard:
			parts[i] = "*"
		case topic.MultiWildcard:
			parts[i] = ">"
		}
	}
	return strings.Join(parts, ".")
}

// fromSubject is the inverse of toSubject for concrete subjects.
func fromSubject(s string) string {
	return strings.ReplaceAll(s, ".", topic.Separator)
}

// splitShare separates an MQTT shared-subscription filter into its queue
// group and plain filter. group is empty for ordinary filters.
func splitShare(filter string) (group, plain string) {
	plain = topic.Filter(filter)
	if plain == filter {
		return "", filter
	}
	rest := strings.TrimPrefix(filter, topic.SharePrefix+topic.Separator)
	group, _, _ = strings.Cut(rest, topic.Separator)
	return group, plain
}

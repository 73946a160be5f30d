package topic

import (
	"fmt"
	"strings"
)

// Builder constructs per-device topics of the form {root}/{id}/{segment}.
// The device identifier sits between the namespace and the segment so a
// single-level wildcard subscribes to one segment across the whole fleet.
type Builder struct {
	root  string
	group string
}

// NewBuilder creates a Builder for the given root namespace (e.g. "device").
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.Trim(root, Separator)}
}

// Root returns the namespace all topics are built under.
func (b *Builder) Root() string {
	return b.root
}

// Shared returns a copy of the builder whose wildcard filters are wrapped in a
// shared subscription for the given group. An empty group disables sharing.
func (b *Builder) Shared(group string) *Builder {
	return &Builder{root: b.root, group: group}
}

// Build returns the concrete topic for one device and segment.
func (b *Builder) Build(id, segment string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, id, segment)
}

// BuildWildcard returns the subscription filter matching segment for every device.
// Result: [$share/{group}/]{root}/+/{segment}
func (b *Builder) BuildWildcard(segment string) string {
	filter := b.Build(Wildcard, segment)
	if b.group == "" {
		return filter
	}
	return strings.Join([]string{SharePrefix, b.group, filter}, Separator)
}

// Parse splits a concrete topic into its device identifier and segment.
// Segments may span several levels ("command/result"); ok is false when the
// topic is outside the root namespace or lacks an identifier.
func (b *Builder) Parse(topic string) (id, segment string, ok bool) {
	rest, found := strings.CutPrefix(topic, b.root+Separator)
	if !found {
		return "", "", false
	}

	id, segment, found = strings.Cut(rest, Separator)
	if !found || id == "" || segment == "" {
		return "", "", false
	}

	return id, segment, true
}

// Filter strips a shared-subscription prefix, returning the plain topic filter.
func Filter(filter string) string {
	if strings.HasPrefix(filter, SharePrefix+Separator) {
		parts := strings.SplitN(filter, Separator, 3)
		if len(parts) == 3 {
			return parts[2]
		}
	}
	return filter
}

// Match reports whether topic matches filter, honouring + and # wildcards.
func Match(filter, topic string) bool {
	filter = Filter(filter)
	if filter == topic {
		return true
	}

	if !strings.Contains(filter, Wildcard) && !strings.Contains(filter, MultiWildcard) {
		return false
	}

	filterParts := strings.Split(filter, Separator)
	topicParts := strings.Split(topic, Separator)

	for i, part := range filterParts {
		if part == MultiWildcard {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != Wildcard && part != topicParts[i] {
			return false
		}
	}

	return len(filterParts) == len(topicParts)
}

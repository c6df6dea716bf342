// Package artifact is the publish/subscribe registry through which producers
// (the archiver, the reporter) announce completed artifacts to interested
// consumers (annotation summary, upload steps).
package artifact

import "sort"

// Categories published by this module. Other producers may publish their own.
const (
	CategoryArchive    = "TestOutputArchive"
	CategoryArchiveDir = "TestOutputArchiveDir"
)

// Publisher is the narrow capability a producer needs.
type Publisher interface {
	Publish(path, category string)
}

// Registry collects published artifacts, append-only. Within a category,
// publication order is preserved. Not safe for concurrent use; the reporter
// serializes all calls.
type Registry struct {
	byCategory map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{byCategory: make(map[string][]string)}
}

func (r *Registry) Publish(path, category string) {
	r.byCategory[category] = append(r.byCategory[category], path)
}

// Paths returns the published paths for one category, oldest first.
func (r *Registry) Paths(category string) []string {
	src := r.byCategory[category]
	if len(src) == 0 {
		return nil
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

func (r *Registry) Categories() []string {
	out := make([]string, 0, len(r.byCategory))
	for c := range r.byCategory {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Nop discards everything. Default for library callers that don't consume
// artifacts.
type Nop struct{}

func (Nop) Publish(string, string) {}

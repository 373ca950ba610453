package scanner

import (
	"context"
	"fmt"
	"sort"

	"ACRScanner/internal/domain"
)

// Request carries all parameters required to execute a scan.
type Request struct {
	// Project is either a tracker project name ("drupal") or "owner/repo".
	Project string
	// Tags overrides the connector's own tag catalog or label discovery.
	Tags []string
	// Limit caps the number of distinct issues returned; zero means no cap.
	Limit int
}

// Scanner captures a single tracker connector (Drupal search, GitHub labels, etc.).
type Scanner interface {
	Name() string
	CanHandle(project string) bool
	Scan(ctx context.Context, req Request) ([]domain.Issue, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}

// Select returns the first registered scanner, by name, that accepts project.
func (r *Registry) Select(project string) (Scanner, error) {
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if r.scanners[name].CanHandle(project) {
			return r.scanners[name], nil
		}
	}
	return nil, fmt.Errorf("no scanner handles project %q", project)
}

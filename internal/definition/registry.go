package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/tshop/admin/model"
)

// snapshot is an immutable collection of all definitions indexed by ID.
type snapshot struct {
	domains  map[string]model.DomainDefinition
	screens  map[string]model.ScreenDefinition
	ordered  []model.ScreenDefinition
	checksum string
}

// Registry is a read-optimized, thread-safe store of all loaded definitions.
// It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given definitions.
func NewRegistry(defs []model.DomainDefinition) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given definitions.
func (r *Registry) Replace(defs []model.DomainDefinition) {
	s := &snapshot{
		domains: make(map[string]model.DomainDefinition, len(defs)),
		screens: make(map[string]model.ScreenDefinition),
	}

	sorted := sortedDomains(defs)
	var checksumParts []string

	for _, def := range sorted {
		s.domains[def.Domain] = def
		checksumParts = append(checksumParts, def.Checksum)

		for _, sc := range def.Screens {
			s.screens[sc.ID] = sc
			s.ordered = append(s.ordered, sc)
		}
	}

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// GetDomain returns the domain definition with the given ID.
func (r *Registry) GetDomain(domainID string) (model.DomainDefinition, bool) {
	d, ok := r.current().domains[domainID]
	return d, ok
}

// GetScreen returns the screen definition with the given ID.
func (r *Registry) GetScreen(screenID string) (model.ScreenDefinition, bool) {
	s, ok := r.current().screens[screenID]
	return s, ok
}

// AllScreens returns every screen, ordered by domain navigation order and
// then by position within its file.
func (r *Registry) AllScreens() []model.ScreenDefinition {
	s := r.current()
	out := make([]model.ScreenDefinition, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// AllDomains returns all domain definitions ordered by navigation order.
func (r *Registry) AllDomains() []model.DomainDefinition {
	s := r.current()
	defs := make([]model.DomainDefinition, 0, len(s.domains))
	for _, d := range s.domains {
		defs = append(defs, d)
	}
	return sortedDomains(defs)
}

// ScreenCount returns the number of loaded screens.
func (r *Registry) ScreenCount() int {
	return len(r.current().screens)
}

// Checksum returns the combined checksum of all loaded definitions.
func (r *Registry) Checksum() string {
	return r.current().checksum
}

// Navigation builds the menu tree: one node per domain with its screens as
// children.
func (r *Registry) Navigation() model.NavigationTree {
	tree := model.NavigationTree{Items: []model.NavigationNode{}}
	for _, d := range r.AllDomains() {
		node := model.NavigationNode{
			ID:    d.Domain,
			Label: d.Navigation.Label,
			Icon:  d.Navigation.Icon,
		}
		for _, sc := range d.Screens {
			node.Children = append(node.Children, model.NavigationNode{
				ID:    sc.ID,
				Label: sc.Title,
				Route: sc.Route,
			})
		}
		tree.Items = append(tree.Items, node)
	}
	return tree
}

func sortedDomains(defs []model.DomainDefinition) []model.DomainDefinition {
	out := make([]model.DomainDefinition, len(defs))
	copy(out, defs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Navigation.Order != out[j].Navigation.Order {
			return out[i].Navigation.Order < out[j].Navigation.Order
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}

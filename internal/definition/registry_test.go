package definition

import (
	"sync"
	"testing"

	"github.com/tshop/admin/model"
)

func testDefs() []model.DomainDefinition {
	return []model.DomainDefinition{
		{
			Domain:     "workshop",
			Version:    "1.0.0",
			Checksum:   "abc123",
			Navigation: model.NavigationDefinition{Label: "Workshop", Order: 20},
			Screens: []model.ScreenDefinition{
				{ID: "accessories", Title: "Accessories", Route: "/accessories"},
				{ID: "cars", Title: "Car management", Route: "/cars"},
			},
		},
		{
			Domain:     "intake",
			Version:    "1.0.0",
			Checksum:   "def456",
			Navigation: model.NavigationDefinition{Label: "Intake", Icon: "add", Order: 10},
			Screens: []model.ScreenDefinition{
				{ID: "add-new-car", Title: "Add new car", Route: "/cars/new", Mode: model.ScreenModeCreateOnly},
			},
		},
	}
}

func TestRegistry_GetDomain(t *testing.T) {
	r := NewRegistry(testDefs())

	d, ok := r.GetDomain("workshop")
	if !ok {
		t.Fatal("GetDomain(workshop) not found")
	}
	if d.Domain != "workshop" {
		t.Errorf("Domain = %q, want workshop", d.Domain)
	}

	if _, ok := r.GetDomain("unknown"); ok {
		t.Error("GetDomain(unknown) should return false")
	}
}

func TestRegistry_GetScreen(t *testing.T) {
	r := NewRegistry(testDefs())

	s, ok := r.GetScreen("cars")
	if !ok {
		t.Fatal("GetScreen(cars) not found")
	}
	if s.Title != "Car management" {
		t.Errorf("Title = %q, want Car management", s.Title)
	}

	if _, ok := r.GetScreen("nonexistent"); ok {
		t.Error("GetScreen(nonexistent) should return false")
	}
	if r.ScreenCount() != 3 {
		t.Errorf("ScreenCount() = %d, want 3", r.ScreenCount())
	}
}

func TestRegistry_AllScreens_navigationOrder(t *testing.T) {
	r := NewRegistry(testDefs())

	all := r.AllScreens()
	want := []string{"add-new-car", "accessories", "cars"}
	if len(all) != len(want) {
		t.Fatalf("AllScreens() returned %d, want %d", len(all), len(want))
	}
	for i, id := range want {
		if all[i].ID != id {
			t.Errorf("AllScreens()[%d] = %q, want %q", i, all[i].ID, id)
		}
	}

	// Callers get a copy.
	all[0].ID = "mutated"
	if r.AllScreens()[0].ID != "add-new-car" {
		t.Error("AllScreens() should return a copy")
	}
}

func TestRegistry_AllDomains_sorted(t *testing.T) {
	r := NewRegistry(testDefs())
	all := r.AllDomains()
	if len(all) != 2 {
		t.Fatalf("AllDomains() returned %d, want 2", len(all))
	}
	if all[0].Domain != "intake" || all[1].Domain != "workshop" {
		t.Errorf("AllDomains() order = %q, %q", all[0].Domain, all[1].Domain)
	}
}

func TestRegistry_Navigation(t *testing.T) {
	r := NewRegistry(testDefs())
	tree := r.Navigation()

	if len(tree.Items) != 2 {
		t.Fatalf("Items = %d, want 2", len(tree.Items))
	}
	intake := tree.Items[0]
	if intake.Label != "Intake" || intake.Icon != "add" {
		t.Errorf("Items[0] = %+v", intake)
	}
	if len(intake.Children) != 1 || intake.Children[0].Route != "/cars/new" {
		t.Errorf("intake children = %+v", intake.Children)
	}
	if len(tree.Items[1].Children) != 2 {
		t.Errorf("workshop children = %d, want 2", len(tree.Items[1].Children))
	}
}

func TestRegistry_Navigation_empty(t *testing.T) {
	r := NewRegistry(nil)
	tree := r.Navigation()
	if tree.Items == nil || len(tree.Items) != 0 {
		t.Errorf("Items = %v, want empty non-nil slice", tree.Items)
	}
}

func TestRegistry_Checksum(t *testing.T) {
	r1 := NewRegistry(testDefs())
	if r1.Checksum() == "" {
		t.Error("Checksum should not be empty")
	}

	// Order of definitions does not change the combined checksum.
	defs := testDefs()
	defs[0], defs[1] = defs[1], defs[0]
	r2 := NewRegistry(defs)
	if r1.Checksum() != r2.Checksum() {
		t.Error("Checksum should not depend on definition order")
	}
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry(testDefs())

	if _, ok := r.GetScreen("accessories"); !ok {
		t.Fatal("before replace: accessories not found")
	}

	r.Replace(nil)

	if _, ok := r.GetScreen("accessories"); ok {
		t.Error("after replace with nil: accessories should not be found")
	}
}

func TestRegistry_ConcurrentReadWrite(t *testing.T) {
	r := NewRegistry(testDefs())

	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.GetScreen("cars")
				r.AllDomains()
				r.Navigation()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 10; j++ {
			r.Replace(testDefs())
		}
	}()

	wg.Wait()
}

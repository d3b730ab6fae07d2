package definition

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoader_LoadFile(t *testing.T) {
	l := NewLoader()
	def, err := l.LoadFile("testdata/tshop/tshop.yaml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if def.Domain != "workshop" {
		t.Errorf("Domain = %q, want workshop", def.Domain)
	}
	if def.Version != "1.0.0" {
		t.Errorf("Version = %q, want 1.0.0", def.Version)
	}
	if def.Navigation.Label != "Workshop" {
		t.Errorf("Navigation.Label = %q, want Workshop", def.Navigation.Label)
	}
	if len(def.Screens) != 3 {
		t.Fatalf("Screens = %d, want 3", len(def.Screens))
	}

	acc := def.Screens[0]
	if acc.ID != "accessories" || acc.BasePath != "/accessories" {
		t.Errorf("Screens[0] = %q at %q", acc.ID, acc.BasePath)
	}
	if acc.Identity.Strategy != "id" || acc.Identity.Field != "id" {
		t.Errorf("accessories identity = %+v", acc.Identity)
	}
	price, ok := acc.Field("price")
	if !ok || !price.Numeric {
		t.Errorf("price field = %+v, want numeric", price)
	}
	if acc.DeleteConfirmation == nil || acc.DeleteConfirmation.Message == "" {
		t.Error("accessories should carry a delete confirmation")
	}

	cars := def.Screens[1]
	if len(cars.Identity.NaturalKey) != 2 || cars.Identity.NaturalKey[0] != "licensePlate" {
		t.Errorf("cars natural key = %v", cars.Identity.NaturalKey)
	}
	date, _ := cars.Field("repairDate")
	if !date.DefaultToday || !date.MaxToday {
		t.Errorf("repairDate = %+v, want default_today and max_today", date)
	}

	if def.Screens[2].HasTable() {
		t.Error("add-new-car should have no table")
	}
	if def.Checksum == "" {
		t.Error("Checksum should not be empty")
	}
	if def.SourceFile != "testdata/tshop/tshop.yaml" {
		t.Errorf("SourceFile = %q", def.SourceFile)
	}
}

func TestLoader_LoadFile_errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "missing file", path: "testdata/nonexistent.yaml", want: "nonexistent.yaml"},
		{name: "malformed yaml", path: "testdata/invalid/bad.yaml", want: "parse testdata/invalid/bad.yaml"},
		{name: "unknown key", path: "testdata/unknown/typo.yaml", want: "pagesize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadFile(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoader_LoadAll(t *testing.T) {
	defs, err := NewLoader().LoadAll([]string{"testdata/tshop"})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(defs) != 1 || defs[0].Domain != "workshop" {
		t.Fatalf("defs = %+v", defs)
	}
}

func TestLoader_LoadAll_shippedDefinitionsValidate(t *testing.T) {
	defs, err := NewLoader().LoadAll([]string{"../../definitions"})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if errs := NewValidator().Validate(defs, nil); len(errs) > 0 {
		for _, e := range errs {
			t.Log(e)
		}
		t.Fatalf("shipped definitions have %d validation errors", len(errs))
	}
}

func TestLoader_LoadAll_selectsFiles(t *testing.T) {
	root := t.TempDir()
	write := func(rel, body string) {
		t.Helper()
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("a-parts.yml", "domain: parts\n")
	write("nested/b-workshop.YAML", "domain: workshop\n")
	write("README.md", "not a definition")
	write(".draft.yaml", "domain: [broken\n")
	write(".git/config.yaml", "domain: [broken\n")

	defs, err := NewLoader().LoadAll([]string{root})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("defs = %d, want 2", len(defs))
	}
	if defs[0].Domain != "parts" || defs[1].Domain != "workshop" {
		t.Errorf("order = %s, %s", defs[0].Domain, defs[1].Domain)
	}
	if defs[1].SourceFile != filepath.Join(root, "nested", "b-workshop.YAML") {
		t.Errorf("SourceFile = %q", defs[1].SourceFile)
	}
}

func TestLoader_LoadAll_failures(t *testing.T) {
	for _, dir := range []string{"testdata/nonexistent", "testdata/invalid"} {
		if _, err := NewLoader().LoadAll([]string{dir}); err == nil || !strings.Contains(err.Error(), dir) {
			t.Errorf("LoadAll(%s) err = %v", dir, err)
		}
	}
}

func TestParse_checksum(t *testing.T) {
	doc := []byte("domain: workshop\nversion: \"1.0.0\"\n")

	a, err := Parse("inline", doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b, _ := Parse("other", doc)
	c, _ := Parse("inline", append(doc, "# edited\n"...))

	if len(a.Checksum) != 64 {
		t.Errorf("checksum = %q, want 64 hex chars", a.Checksum)
	}
	if a.Checksum != b.Checksum {
		t.Error("checksum depends on the source name")
	}
	if a.Checksum == c.Checksum {
		t.Error("checksum ignores content changes")
	}
	if empty, err := Parse("empty", nil); err != nil || empty.Domain != "" {
		t.Errorf("empty document = %+v, %v", empty, err)
	}
}

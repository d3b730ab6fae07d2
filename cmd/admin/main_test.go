package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tshop/admin/internal/backend"
	"github.com/tshop/admin/internal/config"
	"github.com/tshop/admin/internal/definition"
	"github.com/tshop/admin/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "tshop-admin dev") {
		t.Errorf("output = %q", out)
	}
}

func TestValidateCommand_shippedDefinitions(t *testing.T) {
	cfg := writeConfig(t, `
definitions:
  directories: ["../../definitions"]
specs:
  directory: ../../test/integration/testdata/specs
  sources:
    - { service_id: tshop, spec_file: tshop-api.yaml }
observability:
  log_level: error
`)
	out, err := execute(t, "validate", "--config", cfg)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "ok: 3 screens") {
		t.Errorf("output = %q", out)
	}
}

func TestCheckServices(t *testing.T) {
	registry := definition.NewRegistry([]model.DomainDefinition{{
		Domain: "workshop",
		Screens: []model.ScreenDefinition{
			{ID: "accessories", ServiceID: "tshop", BasePath: "/accessories"},
			{ID: "parts", ServiceID: "legacy", BasePath: "/parts"},
		},
	}})
	backends := backend.NewRegistry(map[string]config.ServiceConfig{
		"tshop": {BaseURL: "http://backend/api/v1"},
	})

	err := checkServices(registry, backends)
	if err == nil || !strings.Contains(err.Error(), "screen parts") {
		t.Fatalf("checkServices() = %v, want failure for parts", err)
	}
	if strings.Contains(err.Error(), "accessories") {
		t.Errorf("checkServices() reported a configured screen: %v", err)
	}
}

func TestValidateCommand_missingConfig(t *testing.T) {
	_, err := execute(t, "validate", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "configuration error") {
		t.Errorf("error = %v", err)
	}
}

func TestBuildSpecSources(t *testing.T) {
	sources := buildSpecSources(config.SpecsConfig{
		Directory: "specs",
		Sources: []config.SpecSource{
			{ServiceID: "tshop", SpecFile: "tshop-api.yaml"},
			{ServiceID: "abs", SpecFile: "/etc/tshop/abs.yaml"},
		},
	})
	if len(sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(sources))
	}
	if sources[0].SpecPath != filepath.Join("specs", "tshop-api.yaml") {
		t.Errorf("relative path = %q", sources[0].SpecPath)
	}
	if sources[1].SpecPath != "/etc/tshop/abs.yaml" {
		t.Errorf("absolute path = %q", sources[1].SpecPath)
	}
}

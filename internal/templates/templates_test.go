package templates

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/vango-dev/isomorph/internal/errors"
)

func TestGet(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"counter", false},
		{"full", false},
		{"nonexistent", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Get(tt.name)
			if tt.wantErr {
				if !errors.HasCode(err, "E144") {
					t.Errorf("err = %v, want E144", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tmpl.Name != tt.name {
				t.Errorf("Name = %q, want %q", tmpl.Name, tt.name)
			}
		})
	}
}

func TestList(t *testing.T) {
	if got, want := List(), []string{"counter", "full"}; !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestCreate(t *testing.T) {
	dir := t.TempDir()
	tmpl, _ := Get("full")

	written, err := tmpl.Create(dir, Config{ProjectName: "demo", Addr: ":9090", Public: "web"}, false)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	want := []string{".env.example", "web/counter.css", "web/race.css"}
	if !reflect.DeepEqual(written, want) {
		t.Errorf("written = %v, want %v", written, want)
	}

	env, err := os.ReadFile(filepath.Join(dir, ".env.example"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(env), "ISOMORPH_ADDR=:9090") {
		t.Errorf(".env.example missing address:\n%s", env)
	}

	css, err := os.ReadFile(filepath.Join(dir, "web", "race.css"))
	if err != nil {
		t.Fatal(err)
	}
	for _, color := range []string{"white", "yellow", "orange", "red", "green", "blue"} {
		if !strings.Contains(string(css), ".tile."+color) {
			t.Errorf("race.css has no rule for %s tiles", color)
		}
	}
}

func TestCreate_KeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "public", "counter.css")
	if err := os.MkdirAll(filepath.Dir(existing), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(existing, []byte("/* mine */"), 0o644); err != nil {
		t.Fatal(err)
	}

	tmpl, _ := Get("counter")
	written, err := tmpl.Create(dir, Config{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 0 {
		t.Errorf("written = %v, want nothing", written)
	}
	data, _ := os.ReadFile(existing)
	if string(data) != "/* mine */" {
		t.Errorf("existing file was replaced: %q", data)
	}

	written, err = tmpl.Create(dir, Config{}, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 1 {
		t.Errorf("overwrite wrote %v", written)
	}
}

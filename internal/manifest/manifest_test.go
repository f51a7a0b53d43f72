package manifest

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func testPath(name string) string {
	return filepath.Join("testdata", name)
}

func TestLoadFullManifest(t *testing.T) {
	m, err := Load(testPath("full"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got, want := m.Run.Argv(), []string{"python", "-m", "cradle.main"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Argv() = %v, want %v", got, want)
	}
	if m.Run.Env["PYTHONUNBUFFERED"] != "1" {
		t.Errorf("Env = %v", m.Run.Env)
	}
	if m.Install == nil || m.Install.Manifest != "requirements.txt" {
		t.Errorf("Install = %+v", m.Install)
	}
	if m.Requires != ">=0.1.0" {
		t.Errorf("Requires = %q", m.Requires)
	}
}

func TestLoadEmptyManifest(t *testing.T) {
	m, err := Load(testPath("empty"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Run.Argv() != nil {
		t.Errorf("empty manifest should declare no command, got %v", m.Run.Argv())
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load error = %v, want ErrNotFound", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	for _, dir := range []string{"unknown-key", "bad-env", "missing-command"} {
		t.Run(dir, func(t *testing.T) {
			_, err := Load(testPath(dir))
			var invalid *InvalidError
			if !errors.As(err, &invalid) {
				t.Fatalf("Load error = %v, want *InvalidError", err)
			}
			if len(invalid.Issues) == 0 {
				t.Error("expected at least one issue")
			}
		})
	}
}

func TestLoadBrokenYAML(t *testing.T) {
	_, err := Load(testPath("broken-yaml"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	var invalid *InvalidError
	if errors.As(err, &invalid) {
		t.Error("YAML syntax errors are not schema issues")
	}
}

func TestCheckRequires(t *testing.T) {
	tests := []struct {
		name     string
		requires string
		version  string
		wantErr  bool
	}{
		{"no constraint", "", "0.0.1", false},
		{"satisfied", ">=0.2.0", "v0.3.1", false},
		{"unsatisfied", ">=1.0.0", "0.9.0", true},
		{"dev build", ">=9.0.0", "dev", false},
		{"bad constraint", "not-a-range", "1.0.0", true},
		{"bad version", ">=1.0.0", "banana", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &AppManifest{Requires: tt.requires}
			err := m.CheckRequires(tt.version)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckRequires(%q) error = %v, wantErr %v", tt.version, err, tt.wantErr)
			}
		})
	}

	var nilManifest *AppManifest
	if err := nilManifest.CheckRequires("1.0.0"); err != nil {
		t.Errorf("nil manifest should satisfy everything: %v", err)
	}
}

func TestResolve(t *testing.T) {
	m, err := Resolve(t.TempDir(), "1.0.0")
	if m != nil || err != nil {
		t.Errorf("Resolve(no manifest) = %v, %v; want nil, nil", m, err)
	}

	m, err = Resolve(testPath("full"), "0.0.5")
	if m != nil || err == nil {
		t.Errorf("Resolve(unsatisfied) = %v, %v; want nil, error", m, err)
	}

	m, err = Resolve(testPath("full"), "0.4.0")
	if m == nil || err != nil {
		t.Errorf("Resolve(satisfied) = %v, %v", m, err)
	}

	if _, err := Resolve(testPath("unknown-key"), "1.0.0"); err == nil {
		t.Error("Resolve(invalid) should return an error")
	}
}

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("DefaultConfigPath() = %q, want absolute", path)
	}
	if want := filepath.Join(".ussal", "cli.yaml"); !strings.HasSuffix(path, want) {
		t.Errorf("DefaultConfigPath() = %q, should end with %q", path, want)
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profiles == nil || len(cfg.Profiles) != 0 || cfg.CurrentProfile != "" {
		t.Errorf("Load() = %+v, want Default()", cfg)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cli.yaml")
	cfg := &CLIConfig{
		CurrentProfile: "lab",
		Output:         "json",
		Profiles: map[string]Profile{
			"lab":   {Address: "bench.example.com", CAFile: "/etc/ussal/ca.pem", AuthToken: "ussal_secret"},
			"local": {Address: "localhost:8443", ServerName: "bench.example.com"},
		},
	}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("file mode = %04o, want 0600", mode)
	}
	if dirInfo, _ := os.Stat(filepath.Dir(path)); dirInfo.Mode().Perm() != 0o700 {
		t.Errorf("dir mode = %04o, want 0700", dirInfo.Mode().Perm())
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("Load() = %+v, want %+v", got, cfg)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only cli.yaml", len(entries))
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		mode    os.FileMode
		wantErr string
	}{
		{"unknown field", "profiles:\n  lab:\n    adress: x\n", 0o600, "adress"},
		{"not yaml", "profiles: [\n", 0o600, "parse"},
		{"token readable by others", "profiles:\n  lab:\n    auth_token: ussal_x\n", 0o644, "want 0600"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cli.yaml")
			if err := os.WriteFile(path, []byte(tt.content), tt.mode); err != nil {
				t.Fatal(err)
			}
			// WriteFile is subject to umask.
			if err := os.Chmod(path, tt.mode); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_WorldReadableWithoutToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	if err := os.WriteFile(path, []byte("profiles:\n  lab:\n    address: bench.test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profiles["lab"].Address != "bench.test" {
		t.Errorf("Profiles = %+v", cfg.Profiles)
	}
}

func TestLoad_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profiles == nil {
		t.Error("Profiles should not be nil")
	}
}

func TestCLIConfig_Profile(t *testing.T) {
	cfg := &CLIConfig{
		CurrentProfile: "lab",
		Profiles: map[string]Profile{
			"lab":   {Address: "lab.test"},
			"local": {Address: "localhost"},
		},
	}

	tests := []struct {
		name    string
		current string
		want    string
		wantErr bool
	}{
		{"current", "", "lab.test", false},
		{"explicit", "local", "localhost", false},
		{"missing", "prod", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := cfg.Profile(tt.current)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Profile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if p.Address != tt.want {
				t.Errorf("Profile().Address = %q, want %q", p.Address, tt.want)
			}
		})
	}

	if p, err := Default().Profile(""); err != nil || p != (Profile{}) {
		t.Errorf("Default().Profile(\"\") = %+v, %v", p, err)
	}
	if got := cfg.Names(); !reflect.DeepEqual(got, []string{"lab", "local"}) {
		t.Errorf("Names() = %v", got)
	}
}

package app

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cliflag "k8s.io/component-base/cli/flag"
)

type testOptions struct {
	Server *serverOptions `mapstructure:"server"`

	completed bool
}

type serverOptions struct {
	Addr     string        `mapstructure:"addr"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Password string        `mapstructure:"password"`
}

func newTestOptions() *testOptions {
	return &testOptions{Server: &serverOptions{Addr: ":8080", Timeout: time.Second}}
}

func (o *testOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	fs := fss.FlagSet("server")
	fs.StringVar(&o.Server.Addr, "server.addr", o.Server.Addr, "Listen address.")
	fs.DurationVar(&o.Server.Timeout, "server.timeout", o.Server.Timeout, "Request timeout.")
	fs.StringVar(&o.Server.Password, "server.password", o.Server.Password, "Secret.")
	return fss
}

func (o *testOptions) Complete() error {
	o.completed = true
	return nil
}

func (o *testOptions) Validate() error {
	if o.Server.Timeout <= 0 {
		return errors.New("--server.timeout must be positive")
	}
	return nil
}

func execute(t *testing.T, a *App, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := a.Command()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunLoadsFlags(t *testing.T) {
	opts := newTestOptions()
	ran := false
	a := NewApp("plantd-test", "test", WithOptions(opts), WithDefaultValidArgs(),
		WithRunFunc(func() error { ran = true; return nil }))

	if _, err := execute(t, a, "--server.addr=:9090", "--server.timeout=3s"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !ran || !opts.completed {
		t.Fatalf("ran=%v completed=%v", ran, opts.completed)
	}
	if opts.Server.Addr != ":9090" || opts.Server.Timeout != 3*time.Second {
		t.Errorf("options = %+v", opts.Server)
	}
}

func TestRunReadsConfigFileAndEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plantd.yaml")
	if err := os.WriteFile(file, []byte("server:\n  addr: \":7070\"\n  timeout: 5s\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PLANTD_ENV_SERVER_TIMEOUT", "9s")

	opts := newTestOptions()
	a := NewApp("plantd-env", "test", WithOptions(opts), WithRunFunc(func() error { return nil }))

	if _, err := execute(t, a, "--config", file); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if opts.Server.Addr != ":7070" {
		t.Errorf("addr = %q, want value from file", opts.Server.Addr)
	}
	if opts.Server.Timeout != 9*time.Second {
		t.Errorf("timeout = %s, want env override 9s", opts.Server.Timeout)
	}
}

func TestRunRejectsInvalidOptions(t *testing.T) {
	opts := newTestOptions()
	ran := false
	a := NewApp("plantd-test", "test", WithOptions(opts), WithRunFunc(func() error { ran = true; return nil }))

	if _, err := execute(t, a, "--server.timeout=0s"); err == nil {
		t.Fatal("expected validation error")
	}
	if ran {
		t.Error("run func called with invalid options")
	}
}

func TestDefaultValidArgs(t *testing.T) {
	a := NewApp("plantd-test", "test", WithOptions(newTestOptions()), WithDefaultValidArgs(),
		WithRunFunc(func() error { return nil }))

	if _, err := execute(t, a, "extra"); err == nil {
		t.Fatal("expected positional argument to be rejected")
	}
}

func TestConfigCommandMasksSecrets(t *testing.T) {
	a := NewApp("plantd-test", "test", WithOptions(newTestOptions()), WithRunFunc(func() error { return nil }))

	out, err := execute(t, a, "config", "--server.password=hunter2", "--server.addr=:6060")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Contains(out, "hunter2") {
		t.Errorf("password leaked:\n%s", out)
	}
	if !strings.Contains(out, "server.password") || !strings.Contains(out, "******") {
		t.Errorf("masked password row missing:\n%s", out)
	}
	if !strings.Contains(out, ":6060") {
		t.Errorf("flag value missing:\n%s", out)
	}
}

func TestEnvPrefix(t *testing.T) {
	if got := envPrefix("plantd-server"); got != "PLANTD_SERVER" {
		t.Errorf("envPrefix = %q", got)
	}
}

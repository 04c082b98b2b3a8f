package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 << 20, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFactories_RejectUnknownNames(t *testing.T) {
	if _, err := keyMapper("md5", 0); err == nil {
		t.Error("keyMapper(md5) should fail")
	}
	if _, err := marshaller("json"); err == nil {
		t.Error("marshaller(json) should fail")
	}
	if _, err := compression("lz4"); err == nil {
		t.Error("compression(lz4) should fail")
	}
	if _, err := statsCollector("statsd", nil); err == nil {
		t.Error("statsCollector(statsd) should fail")
	}
	if _, err := openBackend(context.Background(), "ftp"); err == nil {
		t.Error("openBackend(ftp) should fail")
	}
}

func TestOpenBackend_ObjectStoresRequireBucket(t *testing.T) {
	t.Cleanup(viper.Reset)
	for _, name := range []string{"s3", "gcs"} {
		viper.Set("backend", name)
		_, err := openBackend(context.Background(), name)
		if err == nil || !strings.Contains(err.Error(), "--bucket") {
			t.Errorf("openBackend(%s) error = %v, want missing bucket", name, err)
		}
	}
}

func TestCommands_DiskBackendWithMetrics(t *testing.T) {
	t.Cleanup(func() {
		viper.Reset()
		flags := rootCmd.PersistentFlags()
		flags.Set("backend", "bolt")
		flags.Set("metrics", "none")
	})
	dir := filepath.Join(t.TempDir(), "rows")

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&out)
		rootCmd.SetArgs(append(args, "--backend", "disk", "--db", dir, "--metrics", "gometrics"))
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("%v error = %v", args, err)
		}
		return out.String()
	}

	run("put", "color", "blue")
	out := run("get", "color")
	if !strings.HasPrefix(out, "blue") {
		t.Errorf("get = %q, want prefix %q", out, "blue")
	}
	if !strings.Contains(out, "counter ") {
		t.Errorf("get output %q has no metrics dump", out)
	}
}

func TestCommands_PutGetDelete(t *testing.T) {
	t.Cleanup(viper.Reset)
	db := filepath.Join(t.TempDir(), "cli.db")

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&out)
		rootCmd.SetArgs(append(args, "--db", db))
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("%v error = %v", args, err)
		}
		return out.String()
	}

	run("put", "greeting", "hello")
	if got := strings.TrimSpace(run("get", "greeting")); got != "hello" {
		t.Errorf("get = %q, want %q", got, "hello")
	}
	run("delete", "greeting")

	rootCmd.SetArgs([]string{"get", "greeting", "--db", db})
	if err := rootCmd.Execute(); err == nil {
		t.Error("get after delete should fail")
	}
}

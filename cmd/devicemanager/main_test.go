package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRootCmd(t *testing.T) {
	cmd := newRootCmd()
	if cmd == nil {
		t.Fatal("newRootCmd returned nil")
	}
	if cmd.Use != "devicemanager" {
		t.Errorf("Expected use 'devicemanager', got '%s'", cmd.Use)
	}
	for _, name := range []string{"appliances", "audit", "create", "patch",
		"patch-add", "patch-remove", "delete", "yes", "dry-run", "verbose",
		"include-criteria", "include-metrics", "output-dir", "provider",
		"db", "config", "log-level", "log-file"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("Expected flag --%s to be registered", name)
		}
	}
}

func TestSetupLogger(t *testing.T) {
	levels := []string{"DEBUG", "INFO", "WARN", "ERROR", "UNKNOWN"}
	for _, lvl := range levels {
		l := setupLogger(lvl, "")
		if l == nil {
			t.Errorf("setupLogger returned nil for level %s", lvl)
		}
	}

	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")
	l1 := setupLogger("INFO", logFile)
	if l1 == nil {
		t.Error("setupLogger with file returned nil")
	}

	// Test invalid log file path
	l2 := setupLogger("INFO", "/nonexistent/path/to/log.log")
	if l2 == nil {
		t.Error("setupLogger should return a logger even if file fails")
	}
}

func TestLoadDesired(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.csv")
	content := "name,author,ipaddr\nweb-servers,ops,10.0.0.1\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	devices, err := loadDesired("csv", "", path)
	if err != nil {
		t.Fatalf("loadDesired: %v", err)
	}
	if len(devices) != 1 || devices["web-servers"] == nil {
		t.Errorf("unexpected devices: %v", devices)
	}

	if _, err := loadDesired("csv", "", filepath.Join(dir, "missing.csv")); err == nil {
		t.Error("Expected error for missing file")
	}
	if _, err := loadDesired("mariadb", "not a dsn", "tag"); err == nil {
		t.Error("Expected error for invalid DSN")
	}
	if _, err := loadDesired("ldap", "", path); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

// writeTestFile creates a file under dir and returns its path.
func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestRunRequiresAnAction(t *testing.T) {
	dir := t.TempDir()
	roster := writeTestFile(t, dir, "appliances.csv", "hostname,api_key\nhost1,key1\n")

	err := execute(t, "--appliances", roster)
	if err == nil || !strings.Contains(err.Error(), "at least one action") {
		t.Errorf("Expected at-least-one-action error, got %v", err)
	}
}

func TestRunRejectsMissingInputs(t *testing.T) {
	dir := t.TempDir()
	roster := writeTestFile(t, dir, "appliances.csv", "hostname,api_key\nhost1,key1\n")

	err := execute(t, "--appliances", roster, "--create", filepath.Join(dir, "missing.csv"))
	if err == nil || !strings.Contains(err.Error(), "input file not found") {
		t.Errorf("Expected missing-file error, got %v", err)
	}

	err = execute(t, "--appliances", roster, "--audit", "--provider", "oracle")
	if err == nil || !strings.Contains(err.Error(), "unknown desired-state provider") {
		t.Errorf("Expected unknown-provider error, got %v", err)
	}

	err = execute(t, "--appliances", roster, "--audit", "--provider", "mariadb")
	if err == nil || !strings.Contains(err.Error(), "connection string") {
		t.Errorf("Expected missing-DSN error, got %v", err)
	}
}

// cliAppliance is the minimal appliance surface the end-to-end command
// tests need.
type cliAppliance struct {
	listBody string
	creates  int
}

func (a *cliAppliance) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == "GET" && r.URL.Path == "/api/v1/customdevices":
		fmt.Fprint(w, a.listBody)
	case r.Method == "POST" && r.URL.Path == "/api/v1/customdevices":
		a.creates++
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func startAppliance(t *testing.T, fake *cliAppliance) string {
	t.Helper()
	srv := httptest.NewTLSServer(fake)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "https://")
}

func TestRunCreate(t *testing.T) {
	fake := &cliAppliance{listBody: "[]"}
	host := startAppliance(t, fake)

	dir := t.TempDir()
	roster := writeTestFile(t, dir, "appliances.csv",
		fmt.Sprintf("hostname,api_key\n%s,key1\n", host))
	devices := writeTestFile(t, dir, "devices.csv",
		"name,author,ipaddr\nweb-servers,ops,10.0.0.1\n")

	if err := execute(t, "--appliances", roster, "--create", devices); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fake.creates != 1 {
		t.Errorf("Expected 1 create request, got %d", fake.creates)
	}
}

func TestRunDryRunCreateMakesNoChanges(t *testing.T) {
	fake := &cliAppliance{listBody: "[]"}
	host := startAppliance(t, fake)

	dir := t.TempDir()
	roster := writeTestFile(t, dir, "appliances.csv",
		fmt.Sprintf("hostname,api_key\n%s,key1\n", host))
	devices := writeTestFile(t, dir, "devices.csv",
		"name,author,ipaddr\nweb-servers,ops,10.0.0.1\n")

	if err := execute(t, "--appliances", roster, "--create", devices, "--dry-run"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fake.creates != 0 {
		t.Errorf("Dry run must not create devices, got %d creates", fake.creates)
	}
}

func TestRunAuditWritesReport(t *testing.T) {
	listing, _ := json.Marshal([]map[string]any{
		{"id": 7, "name": "web-servers", "author": "ops",
			"criteria": []map[string]any{{"ipaddr": "10.0.0.1"}}},
	})
	fake := &cliAppliance{listBody: string(listing)}
	host := startAppliance(t, fake)

	dir := t.TempDir()
	roster := writeTestFile(t, dir, "appliances.csv",
		fmt.Sprintf("hostname,api_key\n%s,key1\n", host))
	out := filepath.Join(dir, "reports")

	err := execute(t, "--appliances", roster, "--audit",
		"--include-criteria", "--output-dir", out)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	report := filepath.Join(out, fmt.Sprintf("custom_devices_audit_%s.csv", host))
	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("Audit report not written: %v", err)
	}
	if !strings.Contains(string(data), "web-servers") {
		t.Errorf("Report missing device name: %s", data)
	}
}

func TestRunSkipsUnreachableAppliance(t *testing.T) {
	dir := t.TempDir()
	// Port 1 on localhost refuses immediately; the run continues past it.
	roster := writeTestFile(t, dir, "appliances.csv",
		"hostname,api_key\n127.0.0.1:1,key1\n")
	cfgPath := writeTestFile(t, dir, "config.yaml",
		"max_retries: 1\nbackoff_seconds: 0\ntimeout_seconds: 1\n")

	if err := execute(t, "--appliances", roster, "--audit", "--config", cfgPath); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/luthien/pkg/cli"
	"mercator-hq/luthien/pkg/config"
	"mercator-hq/luthien/pkg/security/auth"
	"mercator-hq/luthien/pkg/telemetry/logging"
)

const guardedTree = `
policies:
  - name: root
    type: sequential
    config:
      policies: [auth, reply]
  - name: auth
    type: authenticate
  - name: reply
    type: respond
    config:
      content: hello from luthien
`

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile, verbose = "", false
	keysFlags.db, keysFlags.principal, keysFlags.name, keysFlags.key, keysFlags.output = "", "", "", "", "text"
	policyFlags.output, policyFlags.db = "text", ""
	versionFlags.output = "text"

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeConfig writes a config using a file policy store in dir.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	policies := writeFile(t, dir, "policies.yaml", guardedTree)
	return writeFile(t, dir, "config.yaml", `
policy:
  store: file
  file_path: "`+policies+`"
auth:
  keys:
    - {key: client-key, principal: alice}
audit:
  backend: memory
telemetry:
  logging:
    level: error
`)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Luthien "+Version) || !strings.Contains(out, "Go Version:") {
		t.Errorf("output = %q", out)
	}
}

func TestVersionCommand_JSON(t *testing.T) {
	out, err := execute(t, "version", "--output", "json")
	if err != nil {
		t.Fatal(err)
	}
	var info buildInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if info.Version != Version || info.GoVersion == "" || !strings.Contains(info.Platform, "/") {
		t.Errorf("build info = %+v", info)
	}

	if _, err := execute(t, "version", "--output", "csv"); err == nil {
		t.Error("csv output accepted")
	}
}

func TestValidateCommand(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())

	out, err := execute(t, "validate", "--config", cfg)
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	for _, want := range []string{"Configuration valid", `"root" built (3 policies)`, "root (sequential)", "  auth (authenticate)", "  reply (respond)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateCommand_BrokenTree(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	writeFile(t, dir, "policies.yaml", `
policies:
  - name: root
    type: sequential
    config:
      policies: [missing]
`)

	_, err := execute(t, "validate", "--config", cfg)
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("validate error = %v, want missing policy", err)
	}
	if cli.ExitCode(err) != cli.ExitError {
		t.Errorf("exit code = %d", cli.ExitCode(err))
	}
}

func TestConfigErrorExitCode(t *testing.T) {
	_, err := execute(t, "validate", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("exit code = %d for %v, want config error", cli.ExitCode(err), err)
	}
}

func TestPolicyImportListTree(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "policies.yaml", guardedTree)
	db := filepath.Join(dir, "data", "policies.db")
	cfg := writeFile(t, dir, "config.yaml", `
policy:
  store: sqlite
  sqlite_path: "`+db+`"
audit:
  backend: memory
`)

	out, err := execute(t, "policy", "import", src, "--config", cfg)
	if err != nil {
		t.Fatalf("import error = %v", err)
	}
	if !strings.Contains(out, "Imported 3 policies") {
		t.Errorf("import output = %q", out)
	}

	out, err = execute(t, "policy", "list", "--config", cfg, "-o", "csv")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.Contains(out, "NAME,TYPE,ACTIVE,DESCRIPTION\n") || !strings.Contains(out, "reply,respond,true,") {
		t.Errorf("list output = %q", out)
	}

	out, err = execute(t, "policy", "tree", "--config", cfg, "-o", "json")
	if err != nil {
		t.Fatalf("tree error = %v", err)
	}
	var tree struct {
		Name     string `json:"name"`
		Children []struct {
			Name string `json:"name"`
		} `json:"children"`
	}
	if err := json.Unmarshal([]byte(out), &tree); err != nil {
		t.Fatalf("tree output %q: %v", out, err)
	}
	if tree.Name != "root" || len(tree.Children) != 2 || tree.Children[1].Name != "reply" {
		t.Errorf("tree = %+v", tree)
	}

	out, err = execute(t, "policy", "tree", "reply", "--config", cfg)
	if err != nil || strings.TrimSpace(out) != "reply (respond)" {
		t.Errorf("subtree = %q, %v", out, err)
	}
}

func TestKeysCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "keys.db")

	out, err := execute(t, "keys", "add", "--db", db, "--principal", "ci", "--key", "lk-known")
	if err != nil {
		t.Fatalf("keys add error = %v", err)
	}
	hash := auth.HashKey("lk-known")
	if !strings.Contains(out, hash) || strings.Contains(out, "Key:") {
		t.Errorf("add output = %q", out)
	}

	out, err = execute(t, "keys", "add", "--db", db, "--principal", "alice", "--name", "laptop")
	if err != nil {
		t.Fatalf("keys add error = %v", err)
	}
	if !strings.Contains(out, "Key:       "+auth.KeyPrefix) {
		t.Errorf("generated key not printed: %q", out)
	}

	out, err = execute(t, "keys", "hash", "lk-known")
	if err != nil || strings.TrimSpace(out) != hash {
		t.Errorf("hash = %q, %v", out, err)
	}

	if _, err := execute(t, "keys", "disable", hash, "--db", db); err != nil {
		t.Fatalf("keys disable error = %v", err)
	}
	if _, err := execute(t, "keys", "disable", "0000", "--db", db); err == nil {
		t.Error("disabling an unknown hash should fail")
	}

	out, err = execute(t, "keys", "list", "--db", db, "-o", "json")
	if err != nil {
		t.Fatalf("keys list error = %v", err)
	}
	var rows []map[string]string
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("list output %q: %v", out, err)
	}
	if len(rows) != 2 || rows[0]["principal"] != "alice" || rows[1]["principal"] != "ci" || rows[1]["disabled"] != "true" {
		t.Errorf("rows = %v", rows)
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestServe(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadConfig(writeConfig(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Proxy.ListenAddress = freeAddr(t)
	base := "http://" + cfg.Proxy.ListenAddress

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, logging.Discard()) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("serve did not stop")
		}
	}()

	ready := false
	for deadline := time.Now().Add(5 * time.Second); time.Now().Before(deadline); time.Sleep(20 * time.Millisecond) {
		resp, err := http.Get(base + "/ready")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
	}
	if !ready {
		t.Fatal("proxy never became ready")
	}

	post := func(key string) (*http.Response, string) {
		req, _ := http.NewRequest(http.MethodPost, base+"/v1/chat/completions",
			strings.NewReader(`{"model":"gpt-4","messages":[{"role":"user","content":"hi"}]}`))
		if key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp, string(body)
	}

	resp, body := post("client-key")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "hello from luthien") {
		t.Errorf("authorized call = %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	resp, body = post("wrong-key")
	if resp.StatusCode != http.StatusUnauthorized || !strings.Contains(body, "invalid_api_key") {
		t.Errorf("unauthorized call = %d %s", resp.StatusCode, body)
	}
}

func TestServe_InitialLoadFailureIsFatalWithoutReloads(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadConfig(writeConfig(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Policy.Root = "nope"
	cfg.Proxy.ListenAddress = freeAddr(t)

	if err := serve(context.Background(), cfg, logging.Discard()); err == nil {
		t.Fatal("serve() should fail when the root cannot load and no reload is configured")
	}
}

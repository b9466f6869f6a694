package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"dsumotion/pkg/config"
	"dsumotion/pkg/mockdsu"
	"dsumotion/pkg/protocol"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := NewRootCmd(slogt.New(t), new(slog.LevelVar))
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigInitAndCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dsumotion.toml")

	out, err := execute(t, "config", "init", "--config", path)
	require.NoError(t, err)
	require.Contains(t, out, "Wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "server_port = 26760")

	_, err = execute(t, "config", "init", "--config", path)
	require.ErrorContains(t, err, "already exists")

	_, err = execute(t, "config", "init", "--config", path, "--force")
	require.NoError(t, err)

	out, err = execute(t, "config", "check", "--config", path)
	require.NoError(t, err)
	require.Contains(t, out, path+": ok")
	require.Contains(t, out, "127.0.0.1:26760 (pad 0, auto_connect true)")
	require.Contains(t, out, "mqtt      off")
}

func TestConfigInitYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dsumotion.yaml")

	_, err := execute(t, "config", "init", "--config", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "dsu:")
	require.Contains(t, string(data), "server_port: 26760")

	_, err = execute(t, "config", "check", "--config", path)
	require.NoError(t, err)
}

func TestConfigCheckErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "config", "check", "--config", filepath.Join(dir, "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[dsu]\nserver_port = 0\n"), 0o644))
	_, err = execute(t, "config", "check", "--config", bad)
	require.ErrorContains(t, err, "server_port out of range")
}

func TestInvalidLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dsumotion.toml")
	_, err := execute(t, "--log-level", "loud", "config", "init", "--config", path)
	require.ErrorContains(t, err, "invalid log level")

	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestClientFlagsApply(t *testing.T) {
	file := config.DefaultFile()
	flags := clientFlags{server: "10.0.0.7:4000", pad: 2, jsonl: "events.jsonl"}
	require.NoError(t, flags.apply(&file))
	require.Equal(t, "10.0.0.7", file.DSU.ServerAddress)
	require.Equal(t, 4000, file.DSU.ServerPort)
	require.Equal(t, 2, file.DSU.PadID)
	require.Equal(t, "events.jsonl", file.Log.JSONL)

	file = config.DefaultFile()
	require.ErrorContains(t, clientFlags{server: "nohost", pad: -1}.apply(&file), "invalid --server")

	file = config.DefaultFile()
	require.Error(t, clientFlags{pad: 9}.apply(&file))

	file = config.DefaultFile()
	require.Error(t, clientFlags{pad: -1, jsonl: "-", tui: true}.apply(&file))
}

func TestMockRejectsBadFlags(t *testing.T) {
	_, err := execute(t, "mock", "--pad", "4")
	require.ErrorContains(t, err, "--pad out of range")

	_, err = execute(t, "mock", "--rate", "0")
	require.ErrorContains(t, err, "--rate must be positive")
}

func TestClientWritesGestures(t *testing.T) {
	srv, err := mockdsu.Listen("127.0.0.1:0", mockdsu.Script(
		mockdsu.Frame{Accel: protocol.Vec3{Z: 3}},
		mockdsu.Frame{Accel: protocol.Vec3{Z: 0.05}, Delay: 150 * time.Millisecond},
	), mockdsu.WithLogger(slogt.New(t)), mockdsu.WithVersionDelay(50*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	dir := t.TempDir()
	events := filepath.Join(dir, "events.jsonl")
	_, err = execute(t, "client",
		"--config", filepath.Join(dir, "absent.toml"),
		"--server", srv.Addr(),
		"--jsonl", events,
		"--for", "1500ms",
	)
	require.NoError(t, err)

	data, err := os.ReadFile(events)
	require.NoError(t, err)
	log := string(data)
	require.Contains(t, log, `"label":"connected"`)
	require.Equal(t, 1, strings.Count(log, `"label":"swing_forward"`))
	require.NotContains(t, log, `"kind":"sample"`)

	require.Equal(t, 1, srv.Requests(protocol.MessageVersion))
}

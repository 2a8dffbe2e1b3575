package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes an entitycore.yml with quiet logging plus extra
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entitycore.yml")
	content := "log:\n  level: error\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--no-color", "--config", configPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// row returns the whitespace-separated cells of the first output line that
// starts with prefix
func row(output, prefix string) []string {
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.Fields(line)
		}
	}
	return nil
}

func TestModelsCommand(t *testing.T) {
	cfg := writeConfig(t, "")

	out, err := run(t, cfg, "models")
	require.NoError(t, err)
	assert.Equal(t, []string{"Customer", "ID", "DataArea", "4", "1", "0"}, row(out, "Customer "))
	assert.Equal(t, []string{"Order", "ID", "DataArea", "4", "2", "1"}, row(out, "Order "))
	assert.Equal(t, []string{"OrderStatus", "Code", "-", "2", "0", "0"}, row(out, "OrderStatus "))

	out, err = run(t, cfg, "models", "order")
	require.NoError(t, err)
	assert.Contains(t, out, "many_to_one")
	assert.Contains(t, out, "(on delete cascade)")
	assert.Contains(t, out, "Status -> OrderStatus [s => s.Code]")
	assert.Contains(t, out, "LineCount => OrderLine")
	assert.Contains(t, out, "calculated, parameterized")
}

func TestModelsCommand_UnknownEntity(t *testing.T) {
	_, err := run(t, writeConfig(t, ""), "models", "Custmer")
	require.Error(t, err)

	var unknown *unknownEntityError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, []string{"Customer"}, unknown.suggestions)
}

func TestPartitionCommand_Memory(t *testing.T) {
	out, err := run(t, writeConfig(t, ""), "partition", "--write", "12345", "--read", "12345,12346")
	require.NoError(t, err)

	assert.Contains(t, out, "saved 4 documents to partition 12345")
	assert.Equal(t, []string{"12345", "1", "1"}, row(out, "12345"))
	assert.Equal(t, []string{"12346", "0", "0"}, row(out, "12346"))
}

func TestPartitionCommand_RequiresPartition(t *testing.T) {
	_, err := run(t, writeConfig(t, ""), "partition")
	assert.ErrorContains(t, err, "no partition")
}

func TestCommands_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "entitycore.db")
	cfg := writeConfig(t, "partition: \"12345\"\nstore:\n  driver: sqlite3\n  dsn: "+dsn+"\n")

	_, err := run(t, cfg, "partition")
	require.NoError(t, err)
	_, err = run(t, cfg, "partition", "--write", "12346", "--name", "Globex")
	require.NoError(t, err)

	out, err := run(t, cfg, "customers")
	require.NoError(t, err)
	assert.Contains(t, out, "Acme")
	assert.NotContains(t, out, "Globex")

	out, err = run(t, cfg, "customers", "-p", "12346", "--name", "lob")
	require.NoError(t, err)
	assert.Contains(t, out, "Globex")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	cells := strings.Fields(lines[2])
	assert.Equal(t, "1", cells[len(cells)-1])

	out, err = run(t, cfg, "orders")
	require.NoError(t, err)
	assert.Contains(t, out, "24.99")

	filtered := writeConfig(t, "partition: \"12345\"\nstore:\n  driver: sqlite3\n  dsn: "+dsn+"\ncalculate:\n  values:\n    min_amount: 10\n")
	out, err = run(t, filtered, "orders")
	require.NoError(t, err)
	assert.Contains(t, out, "19.99")
	assert.NotContains(t, out, "24.99")
}

func TestCommands_Redis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := writeConfig(t, "store:\n  driver: redis\nredis:\n  addr: "+mr.Addr()+"\n")

	_, err = run(t, cfg, "partition", "--write", "12345")
	require.NoError(t, err)
	assert.True(t, mr.Exists("entitycore:Customer"))

	out, err := run(t, cfg, "customers", "-p", "12345")
	require.NoError(t, err)
	assert.Contains(t, out, "Acme")

	out, err = run(t, cfg, "customers", "-p", "12346")
	require.NoError(t, err)
	assert.NotContains(t, out, "Acme")
}

func TestOrdersCommand_Status(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "entitycore.db")
	cfg := writeConfig(t, "partition: \"12345\"\nstore:\n  driver: sqlite3\n  dsn: "+dsn+"\n")

	_, err := run(t, cfg, "partition")
	require.NoError(t, err)

	out, err := run(t, cfg, "orders", "--status", "open")
	require.NoError(t, err)
	assert.Contains(t, out, "24.99")

	out, err = run(t, cfg, "orders", "--status", "shipped")
	require.NoError(t, err)
	assert.NotContains(t, out, "24.99")
	assert.NotContains(t, out, "open")
}

func TestCommands_DevelopmentLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entitycore.yml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n  development: true\n"), 0644))

	out, err := run(t, path, "partition", "--write", "12345")
	require.NoError(t, err)
	assert.Contains(t, out, "saved changes")
	assert.Contains(t, out, "INFO")
}

func TestCommands_InvalidConfig(t *testing.T) {
	_, err := run(t, writeConfig(t, "store:\n  driver: mongo\n"), "models")
	assert.ErrorContains(t, err, "store.driver")
}

package output

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/daredrop/pkg/config"
)

func setup(t *testing.T, format string) *bytes.Buffer {
	t.Helper()
	require.NoError(t, config.Init(filepath.Join(t.TempDir(), "config.toml")))
	config.Override("output.format", format)

	color.NoColor = true
	var buf bytes.Buffer
	prev := SetWriter(&buf)
	t.Cleanup(func() { SetWriter(prev) })
	return &buf
}

func TestValidateOutputFormat(t *testing.T) {
	assert.True(t, ValidateOutputFormat("json"))
	assert.True(t, ValidateOutputFormat("table"))
	assert.True(t, ValidateOutputFormat("text"))
	assert.False(t, ValidateOutputFormat("yaml"))
}

func TestPrintListJSON(t *testing.T) {
	buf := setup(t, "json")

	items := []map[string]string{{"id": "1"}}
	require.NoError(t, PrintList("Messages", items, []string{"ID"}, [][]string{{"1"}}))

	assert.JSONEq(t, `[{"id":"1"}]`, buf.String())
}

func TestPrintListTable(t *testing.T) {
	buf := setup(t, "table")

	require.NoError(t, PrintList("", nil, []string{"ID", "TITLE"}, [][]string{{"1", "hello"}}))

	assert.Contains(t, buf.String(), "ID")
	assert.Contains(t, buf.String(), "hello")
}

func TestPrintListTextEmpty(t *testing.T) {
	buf := setup(t, "text")

	require.NoError(t, PrintList("Notifications", nil, nil, nil))

	assert.Contains(t, buf.String(), "Notifications")
	assert.Contains(t, buf.String(), "(none)")
}

func TestPrintRecordSortedKeys(t *testing.T) {
	buf := setup(t, "text")

	require.NoError(t, PrintRecord("Stats", map[string]interface{}{"b": 2, "a": 1}))

	out := buf.String()
	assert.Less(t, bytes.Index([]byte(out), []byte("a:")), bytes.Index([]byte(out), []byte("b:")))
}

func TestPrintMessages(t *testing.T) {
	buf := setup(t, "text")

	PrintError("failed %d", 1)
	PrintWarning("careful")

	assert.Contains(t, buf.String(), "Error: failed 1")
	assert.Contains(t, buf.String(), "Warning: careful")
}

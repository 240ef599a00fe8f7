package db

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	var out bytes.Buffer

	require.NoError(t, RunMigrateCommand([]string{"status"}, dbPath, nil, &out))
	assert.Contains(t, out.String(), "Pending: 3")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"up"}, dbPath, nil, &out))
	assert.Contains(t, out.String(), "Current version: 3 (dirty: false)")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"down"}, dbPath, nil, &out))
	assert.Contains(t, out.String(), "Current version: 2")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"version", "1"}, dbPath, nil, &out))
	assert.Contains(t, out.String(), "Current version: 1")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"force", "3"}, dbPath, strings.NewReader("n\n"), &out))
	assert.Contains(t, out.String(), "Aborted")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"force", "3"}, dbPath, strings.NewReader("y\n"), &out))
	assert.Contains(t, out.String(), "Current version: 3")
}

func TestRunMigrateCommandErrors(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	var out bytes.Buffer

	tests := [][]string{
		nil,
		{"sideways"},
		{"version"},
		{"version", "abc"},
		{"force"},
		{"force", "x"},
	}
	for _, args := range tests {
		out.Reset()
		assert.Error(t, RunMigrateCommand(args, dbPath, strings.NewReader(""), &out), "args %v", args)
	}

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"help"}, dbPath, nil, &out))
	assert.Contains(t, out.String(), "Usage: wear-report migrate")
}

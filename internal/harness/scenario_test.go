package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	path := writeScenario(t, `
name: valid
description: "a valid scenario"
clock: "2024-01-01T00:00:00Z"
remote:
  - { owner: u1, person_name: Alice, amount: "3", type: sent, date: "2024-01-01" }
steps:
  - action: sign_in
    args: { owner: u1 }
    expect: ok
assertions:
  - type: active
    count: 1
`)
	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "valid", s.Name)
	require.Len(t, s.Remote, 1)
	assert.Equal(t, "2024-01-01", s.Remote[0].Date)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, "u1", s.Steps[0].Args["owner"])
}

func TestLoadScenario_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown field",
			body: "name: x\ndescription: x\nstep: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			body: "description: x\nsteps: [{action: sync}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			body: "name: x\nsteps: [{action: sync}]\n",
			want: "description is required",
		},
		{
			name: "no steps",
			body: "name: x\ndescription: x\n",
			want: "steps list is required",
		},
		{
			name: "unknown action",
			body: "name: x\ndescription: x\nsteps: [{action: explode}]\n",
			want: `unknown action "explode"`,
		},
		{
			name: "unknown outcome",
			body: "name: x\ndescription: x\nsteps: [{action: sync, expect: fine}]\n",
			want: `unknown outcome "fine"`,
		},
		{
			name: "bad clock",
			body: "name: x\ndescription: x\nclock: noon\nsteps: [{action: sync}]\n",
			want: "clock",
		},
		{
			name: "remote row without owner",
			body: "name: x\ndescription: x\nremote: [{person_name: A}]\nsteps: [{action: sync}]\n",
			want: "owner is required",
		},
		{
			name: "unknown assertion",
			body: "name: x\ndescription: x\nsteps: [{action: sync}]\nassertions: [{type: vibes}]\n",
			want: `unknown assertion type "vibes"`,
		},
		{
			name: "remote_rows without owner",
			body: "name: x\ndescription: x\nsteps: [{action: sync}]\nassertions: [{type: remote_rows, count: 1}]\n",
			want: "requires owner",
		},
		{
			name: "transaction without ref",
			body: "name: x\ndescription: x\nsteps: [{action: sync}]\nassertions: [{type: transaction, expect: {synced: true}}]\n",
			want: "requires ref",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

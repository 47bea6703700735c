package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
)

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/pin_favorite.yaml")
	require.NoError(t, err)

	assert.Equal(t, "pin_favorite", s.Name)
	require.Len(t, s.Apps, 2)
	require.Len(t, s.Steps, 3)
	assert.Equal(t, "request pin", s.Steps[0].Action())
	require.NotNil(t, s.Steps[1].Echo)
	assert.False(t, *s.Steps[1].Echo)
	assert.Equal(t, 1, s.Steps[2].Rank)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: d
assertion:
  - type: record_count
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: d\nassertions: [{type: record_count}]\n",
			want: "name is required",
		},
		{
			name: "missing assertions",
			yaml: "name: n\ndescription: d\n",
			want: "assertions list is required",
		},
		{
			name: "event and request",
			yaml: "name: n\ndescription: d\nsteps: [{event: deleted, request: pin, id: x, ids: [x]}]\nassertions: [{type: record_count}]\n",
			want: "exactly one of event or request",
		},
		{
			name: "unknown event",
			yaml: "name: n\ndescription: d\nsteps: [{event: renamed}]\nassertions: [{type: record_count}]\n",
			want: `unknown event "renamed"`,
		},
		{
			name: "request without id",
			yaml: "name: n\ndescription: d\nsteps: [{request: pin}]\nassertions: [{type: record_count}]\n",
			want: "id is required for request pin",
		},
		{
			name: "unknown property",
			yaml: "name: n\ndescription: d\napps: [{id: /a.desktop, name: A, props: {Colour: red}}]\nassertions: [{type: record_count}]\n",
			want: `unknown property "Colour"`,
		},
		{
			name: "duplicate app",
			yaml: "name: n\ndescription: d\napps: [{id: /a.desktop, name: A}, {id: /a.desktop, name: B}]\nassertions: [{type: record_count}]\n",
			want: "duplicate id",
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\nassertions: [{type: trace_contains}]\n",
			want: `unknown assertion type "trace_contains"`,
		},
		{
			name: "record without expect",
			yaml: "name: n\ndescription: d\nassertions: [{type: record, id: x}]\n",
			want: "expect is required for record",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApp_PropertiesOverlayDefaults(t *testing.T) {
	app := App{ID: "/a.desktop", Name: "Alpha", Favorite: 3, Props: map[string]any{"Category": "Games", "Lock": true}}

	props, err := app.Properties()
	require.NoError(t, err)
	assert.Equal(t, "Games", props.String(appinfo.PropCategory))
	assert.Equal(t, int64(1), props.Int(appinfo.PropLock))
	assert.Equal(t, int64(3), props.Int(appinfo.PropFavorites))
	assert.Equal(t, "Alpha", props.String(appinfo.PropLocalName))
}

func TestLoadScenarioDir_SkipsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	body := "name: %s\ndescription: d\nassertions: [{type: record_count}]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(fmt.Sprintf(body, "second")), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte(fmt.Sprintf(body, "first")), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	scenarios, err := LoadScenarioDir(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "first", scenarios[0].Name)
	assert.Equal(t, "second", scenarios[1].Name)
}

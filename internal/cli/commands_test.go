package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
)

const seedYAML = `apps:
  - id: /usr/share/applications/alpha.desktop
    props:
      LocalName: Alpha
      Category: Utility
      FirstLetterAll: A
      Favorites: 1
  - id: /usr/share/applications/beta.desktop
    props:
      LocalName: Beta
      Category: Network
      FirstLetterAll: B
  - id: /usr/share/applications/hidden.desktop
    props:
      LocalName: Hidden
      DontDisplay: 1
`

const (
	alphaID  = "/usr/share/applications/alpha.desktop"
	betaID   = "/usr/share/applications/beta.desktop"
	hiddenID = "/usr/share/applications/hidden.desktop"
)

// seededDB writes the seed file and seeds a fresh database with it.
func seededDB(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "apps.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(seedYAML), 0o644))

	dbPath := filepath.Join(dir, "apps.db")
	out, err := execute(t, "seed", "--db", dbPath, seedPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 3 application(s)")
	return dbPath
}

type recordsResponse struct {
	Status string           `json:"status"`
	Data   []appinfo.Record `json:"data"`
}

func listJSON(t *testing.T, args ...string) []appinfo.Record {
	t.Helper()
	out, err := execute(t, append(args, "--format", "json")...)
	require.NoError(t, err)

	var resp recordsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	return resp.Data
}

func ids(records []appinfo.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestListCommand_SkipsHiddenApplications(t *testing.T) {
	dbPath := seededDB(t)

	records := listJSON(t, "list", "--db", dbPath)
	assert.ElementsMatch(t, []string{alphaID, betaID}, ids(records))
}

func TestListCommand_CategoryFilter(t *testing.T) {
	dbPath := seededDB(t)

	records := listJSON(t, "list", "--db", dbPath, "--category", "Network")
	require.Len(t, records, 1)
	assert.Equal(t, betaID, records[0].ID)
	assert.Equal(t, "Beta", records[0].Name)
	assert.Equal(t, appinfo.IconPrefix, records[0].Icon)
}

func TestListCommand_Text(t *testing.T) {
	dbPath := seededDB(t)

	out, err := execute(t, "list", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, alphaID)
	assert.NotContains(t, out, hiddenID)
}

func TestFavoritesCommand(t *testing.T) {
	dbPath := seededDB(t)

	records := listJSON(t, "favorites", "--db", dbPath)
	assert.Equal(t, []string{alphaID}, ids(records))
}

func TestPinCommand_AppendsToFavorites(t *testing.T) {
	dbPath := seededDB(t)

	records := listJSON(t, "pin", "--db", dbPath, betaID)
	require.Len(t, records, 1)
	assert.Equal(t, betaID, records[0].ID)
	assert.Equal(t, 2, records[0].Favorite)

	favorites := listJSON(t, "favorites", "--db", dbPath)
	assert.Equal(t, []string{alphaID, betaID}, ids(favorites))
}

func TestUnpinCommand(t *testing.T) {
	dbPath := seededDB(t)

	records := listJSON(t, "unpin", "--db", dbPath, alphaID)
	require.Len(t, records, 1)
	assert.Equal(t, 0, records[0].Favorite)

	assert.Empty(t, listJSON(t, "favorites", "--db", dbPath))
}

func TestReorderCommand(t *testing.T) {
	dbPath := seededDB(t)

	listJSON(t, "reorder", "--db", dbPath, betaID, "1")
	listJSON(t, "reorder", "--db", dbPath, alphaID, "2")

	favorites := listJSON(t, "favorites", "--db", dbPath)
	assert.Equal(t, []string{betaID, alphaID}, ids(favorites))
}

func TestReorderCommand_InvalidRank(t *testing.T) {
	dbPath := seededDB(t)

	_, err := execute(t, "reorder", "--db", dbPath, betaID, "first")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid rank "first"`)
}

func TestTopCommand(t *testing.T) {
	dbPath := seededDB(t)

	records := listJSON(t, "top", "--db", dbPath, betaID, "3")
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].Top)
}

func TestLaunchCommand(t *testing.T) {
	dbPath := seededDB(t)

	records := listJSON(t, "launch", "--db", dbPath, betaID)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Launched)
}

func TestMutationCommand_UnknownApplication(t *testing.T) {
	dbPath := seededDB(t)

	for _, args := range [][]string{
		{"pin", "/missing.desktop"},
		{"top", "/missing.desktop", "1"},
		{"launch", hiddenID},
	} {
		t.Run(args[0], func(t *testing.T) {
			_, err := execute(t, append(args, "--db", dbPath)...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, err.Error(), "application not found")
		})
	}
}

func TestRemoveCommand(t *testing.T) {
	dbPath := seededDB(t)

	out, err := execute(t, "remove", "--db", dbPath, alphaID, "/missing.desktop")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 2 application(s)")

	records := listJSON(t, "list", "--db", dbPath)
	assert.Equal(t, []string{betaID}, ids(records))
	assert.Empty(t, listJSON(t, "favorites", "--db", dbPath))
}

func TestSeedCommand_UpdatesExisting(t *testing.T) {
	dbPath := seededDB(t)

	update := filepath.Join(t.TempDir(), "update.yaml")
	require.NoError(t, os.WriteFile(update, []byte(`apps:
  - id: /usr/share/applications/beta.desktop
    props:
      LocalName: Beta Browser
`), 0o644))

	_, err := execute(t, "seed", "--db", dbPath, update)
	require.NoError(t, err)

	records := listJSON(t, "list", "--db", dbPath, "--category", "Network")
	require.Len(t, records, 1)
	assert.Equal(t, "Beta Browser", records[0].Name)
}

func TestSeedCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "apps.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(seedYAML), 0o644))

	out, err := execute(t, "seed", "--db", filepath.Join(dir, "apps.db"), "--format", "json", seedPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","data":{"seeded":3}}`, out)
}

func TestLoadSeedFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing id", "apps:\n  - props: {LocalName: X}\n", "apps[0]: id is required"},
		{"unknown field", "apps:\n  - id: /a.desktop\n    name: X\n", "failed to parse YAML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "seed.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := LoadSeedFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSeedCommand_UnknownProperty(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "apps.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte("apps:\n  - id: /a.desktop\n    props: {Bogus: 1}\n"), 0o644))

	_, err := execute(t, "seed", "--db", filepath.Join(dir, "apps.db"), seedPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

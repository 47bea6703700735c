package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
	"github.com/LingmoOS/lingmo-menu/internal/engine"
)

func runFor(t *testing.T, d time.Duration, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}

func TestRunCommand_StopsOnContextDone(t *testing.T) {
	dbPath := seededDB(t)

	out, err := runFor(t, 750*time.Millisecond, "run", "--db", dbPath, "--watch=false")
	require.NoError(t, err)
	assert.Contains(t, out, "favorites_changed")
	assert.Contains(t, out, "Menu service started")
}

func TestRunCommand_FirstRunPushesDefaults(t *testing.T) {
	dbPath := seededDB(t)
	dir := t.TempDir()

	settings := filepath.Join(dir, "settings.toml")
	require.NoError(t, os.WriteFile(settings, []byte(`default_favorite_apps = ["`+betaID+`"]`), 0o644))
	state := filepath.Join(dir, "state.yaml")

	_, err := runFor(t, time.Second, "run", "--db", dbPath, "--watch=false",
		"--settings", settings, "--state", state, "--format", "json")
	require.NoError(t, err)

	data, err := os.ReadFile(state)
	require.NoError(t, err)
	var saved struct {
		FirstStartup     bool     `yaml:"first_startup"`
		PreInstalledApps []string `yaml:"pre_installed_apps"`
	}
	require.NoError(t, yaml.Unmarshal(data, &saved))
	assert.False(t, saved.FirstStartup)
	assert.Equal(t, []string{alphaID, betaID}, saved.PreInstalledApps)

	favorites := listJSON(t, "favorites", "--db", dbPath)
	assert.Contains(t, ids(favorites), betaID)
}

func TestRunCommand_JSONNotifications(t *testing.T) {
	dbPath := seededDB(t)

	out, err := runFor(t, 750*time.Millisecond, "run", "--db", dbPath, "--watch=false", "--format", "json")
	require.NoError(t, err)
	assert.NotContains(t, out, "Menu service started")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	var first notificationView
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "favorites_changed", first.Kind)
	assert.Equal(t, int64(1), first.Seq)
}

func TestRunCommand_BadSettings(t *testing.T) {
	dbPath := seededDB(t)
	settings := filepath.Join(t.TempDir(), "settings.ini")
	require.NoError(t, os.WriteFile(settings, []byte("x=1"), 0o644))

	_, err := runFor(t, time.Second, "run", "--db", dbPath, "--watch=false", "--settings", settings)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load settings")
}

func TestNotificationPrinter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	p := &notificationPrinter{w: buf, format: "text"}

	p.print(engine.Notification{
		Seq:              3,
		Kind:             engine.RecordsUpdated,
		Records:          []appinfo.Record{{ID: "/a.desktop"}},
		GroupingRelevant: true,
	})
	p.print(engine.Notification{Seq: 4, Kind: engine.RecordsDeleted, IDs: []string{"/b.desktop"}})

	assert.Equal(t, "[3] records_updated /a.desktop (regroup)\n[4] records_deleted /b.desktop\n", buf.String())
}

func TestViewOf_Changed(t *testing.T) {
	v := viewOf(engine.Notification{
		Seq:     1,
		Kind:    engine.RecordsUpdated,
		Records: []appinfo.Record{{ID: "/a.desktop"}},
		Changed: map[string]appinfo.FieldSet{
			"/a.desktop": appinfo.FieldSet(appinfo.FieldName | appinfo.FieldIcon),
		},
	})
	assert.Equal(t, []string{"/a.desktop"}, v.IDs)
	assert.Equal(t, map[string]string{"/a.desktop": "name,icon"}, v.Changed)
}

func TestMetricsServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	engine.NewMetrics(reg)

	srv := httptest.NewServer(newMetricsServer(":0", reg).Handler)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), "lingmo_menu_")
}

package appinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListenerFuncs_Dispatch(t *testing.T) {
	var got []string
	l := ListenerFuncs{
		OnAdded:      func(ids []string) { got = append(got, "added "+ids[0]) },
		OnUpdated:    func(delta InfoMap) { got = append(got, "updated "+delta.SortedIDs()[0]) },
		OnUpdatedAll: func(ids []string) { got = append(got, "updated_all "+ids[0]) },
		OnDeleted:    func(ids []string) { got = append(got, "deleted "+ids[0]) },
		OnOpenFailed: func() { got = append(got, "open_failed") },
	}

	var _ Listener = l
	l.Added([]string{"/a.desktop"})
	l.Updated(InfoMap{"/b.desktop": {PropTop: Int(1)}})
	l.UpdatedAll([]string{"/c.desktop"})
	l.Deleted([]string{"/d.desktop"})
	l.OpenFailed()

	assert.Equal(t, []string{
		"added /a.desktop",
		"updated /b.desktop",
		"updated_all /c.desktop",
		"deleted /d.desktop",
		"open_failed",
	}, got)
}

func TestListenerFuncs_NilFieldsAreNoOps(t *testing.T) {
	var l ListenerFuncs
	assert.NotPanics(t, func() {
		l.Added([]string{"/a.desktop"})
		l.Updated(InfoMap{})
		l.UpdatedAll(nil)
		l.Deleted(nil)
		l.OpenFailed()
	})
}

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
)

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	b := NewBus()
	var got []string
	b.Subscribe(func(n Notification) { got = append(got, "first:"+n.Kind.String()) })
	b.Subscribe(func(n Notification) { got = append(got, "second:"+n.Kind.String()) })

	b.Publish(Notification{Kind: FavoritesChanged})

	assert.Equal(t, []string{"first:favorites_changed", "second:favorites_changed"}, got)
}

func TestBus_Cancel(t *testing.T) {
	b := NewBus()
	calls := 0
	cancel := b.Subscribe(func(Notification) { calls++ })
	require.Equal(t, 1, b.Len())

	cancel()
	cancel()
	b.Publish(Notification{Kind: RecordsAdded})

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, b.Len())
}

func TestBus_SubscribersGetIndependentCopies(t *testing.T) {
	b := NewBus()
	var second Notification
	b.Subscribe(func(n Notification) {
		n.Records[0].Name = "mutated"
		n.Changed["a"] = 0
	})
	b.Subscribe(func(n Notification) { second = n })

	b.Publish(Notification{
		Kind:    RecordsUpdated,
		Records: []appinfo.Record{{ID: "a", Name: "A"}},
		Changed: map[string]appinfo.FieldSet{"a": appinfo.FieldSet(appinfo.FieldName)},
	})

	assert.Equal(t, "A", second.Records[0].Name)
	assert.Equal(t, appinfo.FieldSet(appinfo.FieldName), second.Changed["a"])
}

func TestNotificationKind_String(t *testing.T) {
	assert.Equal(t, "database_unavailable", DatabaseUnavailable.String())
	assert.Equal(t, "unknown", NotificationKind(0).String())
}

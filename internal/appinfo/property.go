package appinfo

import (
	"fmt"
	"slices"
)

// Property identifies one column of application metadata in the backing
// database.
type Property int

const (
	PropTop Property = iota + 1
	PropLock
	PropFavorites
	PropLaunchTimes
	PropDesktopFilePath
	PropIcon
	PropLocalName
	PropCategory
	PropFirstLetterAll
	PropDontDisplay
	PropAutoStart
	PropInsertTime
	PropLaunched
)

var propertyNames = map[Property]string{
	PropTop:             "Top",
	PropLock:            "Lock",
	PropFavorites:       "Favorites",
	PropLaunchTimes:     "LaunchTimes",
	PropDesktopFilePath: "DesktopFilePath",
	PropIcon:            "Icon",
	PropLocalName:       "LocalName",
	PropCategory:        "Category",
	PropFirstLetterAll:  "FirstLetterAll",
	PropDontDisplay:     "DontDisplay",
	PropAutoStart:       "AutoStart",
	PropInsertTime:      "InsertTime",
	PropLaunched:        "Launched",
}

// RecordProperties is the property set requested for every application
// record, including the two ingestion filter flags.
var RecordProperties = []Property{
	PropTop,
	PropLock,
	PropFavorites,
	PropLaunchTimes,
	PropDesktopFilePath,
	PropIcon,
	PropLocalName,
	PropCategory,
	PropFirstLetterAll,
	PropDontDisplay,
	PropAutoStart,
	PropInsertTime,
	PropLaunched,
}

// String returns the backing database name of the property.
func (p Property) String() string {
	if name, ok := propertyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Property(%d)", int(p))
}

// Valid reports whether p is a known property.
func (p Property) Valid() bool {
	_, ok := propertyNames[p]
	return ok
}

// ParseProperty resolves a backing database property name such as
// "LaunchTimes".
func ParseProperty(name string) (Property, error) {
	for p, n := range propertyNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown property %q", name)
}

// PropertyMap carries property values for a single application.
type PropertyMap map[Property]Value

// Has reports whether the map carries a value for p.
func (m PropertyMap) Has(p Property) bool {
	_, ok := m[p]
	return ok
}

// Int returns the integer value of p. Missing properties read as 0.
func (m PropertyMap) Int(p Property) int64 {
	return ToInt(m[p])
}

// String returns the string value of p. Missing properties read as "".
func (m PropertyMap) String(p Property) string {
	return ToString(m[p])
}

// Keys returns the properties present in the map in declaration order.
func (m PropertyMap) Keys() []Property {
	keys := make([]Property, 0, len(m))
	for p := range m {
		keys = append(keys, p)
	}
	slices.Sort(keys)
	return keys
}

// Clone returns a shallow copy. Values are immutable so this is a full copy.
func (m PropertyMap) Clone() PropertyMap {
	if m == nil {
		return nil
	}
	out := make(PropertyMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Select returns a copy restricted to props.
func (m PropertyMap) Select(props []Property) PropertyMap {
	out := make(PropertyMap, len(props))
	for _, p := range props {
		if v, ok := m[p]; ok {
			out[p] = v
		}
	}
	return out
}

// Matches reports whether every property in filter has an equal value in m.
// Int filter values compare numerically so a missing property matches 0.
func (m PropertyMap) Matches(filter PropertyMap) bool {
	for p, want := range filter {
		switch w := want.(type) {
		case Int:
			if m.Int(p) != int64(w) {
				return false
			}
		default:
			if m.String(p) != ToString(w) {
				return false
			}
		}
	}
	return true
}

// VisibleFilter is the ingestion filter: an application is materialized in
// the cache only when neither DontDisplay nor AutoStart is set.
func VisibleFilter() PropertyMap {
	return PropertyMap{
		PropDontDisplay: Int(0),
		PropAutoStart:   Int(0),
	}
}

// InfoMap maps an application identifier to its property values.
type InfoMap map[string]PropertyMap

// SortedIDs returns the identifiers in byte order for deterministic
// iteration.
func (m InfoMap) SortedIDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

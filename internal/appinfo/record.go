package appinfo

import "strings"

// IconPrefix is the icon resolver scheme tag prepended to every icon
// reference handed to the presentation layer.
const IconPrefix = "image://appicon/"

// Record is one installed, displayable application as cached in memory.
// Records are plain values: every field is a scalar, so assignment copies.
type Record struct {
	ID          string `json:"id"` // desktop file path
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Category    string `json:"category"`
	FirstLetter string `json:"first_letter"`
	Top         int    `json:"top"`      // 0 = unpinned
	Favorite    int    `json:"favorite"` // 0 = not a favorite
	LaunchTimes int    `json:"launch_times"`
	Launched    int    `json:"launched"`
	Locked      bool   `json:"locked"` // advisory only
	InsertTime  string `json:"insert_time"`
}

// IsFavorite reports whether the record belongs in the favorites projection.
func (r Record) IsFavorite() bool {
	return r.Favorite > 0
}

// Field identifies one semantic attribute of a Record.
type Field uint16

const (
	FieldID Field = 1 << iota
	FieldName
	FieldIcon
	FieldCategory
	FieldFirstLetter
	FieldTop
	FieldFavorite
	FieldLaunchTimes
	FieldLaunched
	FieldLocked
	FieldInsertTime
)

var fieldNames = []struct {
	f    Field
	name string
}{
	{FieldID, "id"},
	{FieldName, "name"},
	{FieldIcon, "icon"},
	{FieldCategory, "category"},
	{FieldFirstLetter, "first_letter"},
	{FieldTop, "top"},
	{FieldFavorite, "favorite"},
	{FieldLaunchTimes, "launch_times"},
	{FieldLaunched, "launched"},
	{FieldLocked, "locked"},
	{FieldInsertTime, "insert_time"},
}

// FieldSet is a bitmask of changed Record fields.
type FieldSet uint16

// AllFields marks every field; used for full refreshes.
const AllFields = FieldSet(FieldID | FieldName | FieldIcon | FieldCategory | FieldFirstLetter |
	FieldTop | FieldFavorite | FieldLaunchTimes | FieldLaunched | FieldLocked | FieldInsertTime)

// groupingFields are the fields whose change may regroup or resort a list.
const groupingFields = FieldSet(FieldCategory | FieldFirstLetter)

// Has reports whether f is in the set.
func (s FieldSet) Has(f Field) bool {
	return s&FieldSet(f) != 0
}

// With returns the set with f added.
func (s FieldSet) With(f Field) FieldSet {
	return s | FieldSet(f)
}

// GroupingRelevant reports whether the set contains category or
// first-letter changes.
func (s FieldSet) GroupingRelevant() bool {
	return s&groupingFields != 0
}

// Names returns the field names in the set in declaration order.
func (s FieldSet) Names() []string {
	var names []string
	for _, fn := range fieldNames {
		if s.Has(fn.f) {
			names = append(names, fn.name)
		}
	}
	return names
}

func (s FieldSet) String() string {
	if s == 0 {
		return "none"
	}
	return strings.Join(s.Names(), ",")
}

func (f Field) String() string {
	for _, fn := range fieldNames {
		if fn.f == f {
			return fn.name
		}
	}
	return "unknown"
}

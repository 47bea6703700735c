package appdb

import (
	"fmt"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
)

type column struct {
	name    string
	integer bool
}

var columns = map[appinfo.Property]column{
	appinfo.PropDesktopFilePath: {"desktop_file_path", false},
	appinfo.PropLocalName:       {"local_name", false},
	appinfo.PropIcon:            {"icon", false},
	appinfo.PropCategory:        {"category", false},
	appinfo.PropFirstLetterAll:  {"first_letter_all", false},
	appinfo.PropTop:             {"top", true},
	appinfo.PropLock:            {"lock", true},
	appinfo.PropFavorites:       {"favorites", true},
	appinfo.PropLaunchTimes:     {"launch_times", true},
	appinfo.PropLaunched:        {"launched", true},
	appinfo.PropDontDisplay:     {"dont_display", true},
	appinfo.PropAutoStart:       {"auto_start", true},
	appinfo.PropInsertTime:      {"insert_time", false},
}

func columnFor(p appinfo.Property) (column, error) {
	c, ok := columns[p]
	if !ok {
		return column{}, fmt.Errorf("no column for property %v", p)
	}
	return c, nil
}

// sqlValue converts v to the Go type stored in c.
func (c column) sqlValue(v appinfo.Value) any {
	if c.integer {
		return appinfo.ToInt(v)
	}
	return appinfo.ToString(v)
}

// scanTarget returns a destination for rows.Scan and a function that turns
// the scanned value into a property value.
func (c column) scanTarget() (any, func() appinfo.Value) {
	if c.integer {
		var n int64
		return &n, func() appinfo.Value { return appinfo.Int(n) }
	}
	var s string
	return &s, func() appinfo.Value { return appinfo.String(s) }
}

// equal compares two values the way the column stores them.
func (c column) equal(a, b appinfo.Value) bool {
	if c.integer {
		return appinfo.ToInt(a) == appinfo.ToInt(b)
	}
	return appinfo.ToString(a) == appinfo.ToString(b)
}

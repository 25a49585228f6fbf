// Package markethours knows the US equity session clock: 9:30 AM to
// 4:00 PM Eastern, Monday through Friday.
package markethours

import "time"

// Eastern is the exchange timezone. Falls back to a fixed UTC-5 zone when
// the tz database is unavailable.
var Eastern *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("ET", -5*3600)
	}
	Eastern = loc
}

// Session times in ET.
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0
)

// IsMarketDay returns true if t is a weekday in ET.
func IsMarketDay(t time.Time) bool {
	wd := t.In(Eastern).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsMarketOpen returns true if t falls within regular trading hours
// (9:30 AM – 4:00 PM ET, Mon–Fri).
func IsMarketOpen(t time.Time) bool {
	et := t.In(Eastern)
	if !IsMarketDay(et) {
		return false
	}
	hm := et.Hour()*60 + et.Minute()
	return hm >= OpenHour*60+OpenMinute && hm <= CloseHour*60+CloseMinute
}

// SessionOpen returns 9:30 AM ET on t's date.
func SessionOpen(t time.Time) time.Time {
	et := t.In(Eastern)
	return time.Date(et.Year(), et.Month(), et.Day(), OpenHour, OpenMinute, 0, 0, Eastern)
}

// SessionClose returns 4:00 PM ET on t's date.
func SessionClose(t time.Time) time.Time {
	et := t.In(Eastern)
	return time.Date(et.Year(), et.Month(), et.Day(), CloseHour, CloseMinute, 0, 0, Eastern)
}

// PrevTradingDayOpen returns 9:30 AM ET on the most recent market day
// strictly before t's date. Used for bootstrap backfill windows.
func PrevTradingDayOpen(t time.Time) time.Time {
	d := t.In(Eastern).AddDate(0, 0, -1)
	for !IsMarketDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return SessionOpen(d)
}

// NextOpen returns the next session open at or after t.
func NextOpen(t time.Time) time.Time {
	et := t.In(Eastern)
	if IsMarketDay(et) && et.Before(SessionOpen(et)) {
		return SessionOpen(et)
	}
	d := et.AddDate(0, 0, 1)
	for !IsMarketDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return SessionOpen(d)
}

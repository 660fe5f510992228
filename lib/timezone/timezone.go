package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		panic(err)
	}
}

// force timezone to be São Paulo local time since that is where the
// portal lives; due dates scraped off it are wall-clock dates and
// comparing them against a server clock in another zone shifts the
// whole-day math by one
func Now() time.Time {
	return time.Now().In(Location)
}

// WholeDaysUntil returns the number of full 24h periods between now
// and the given deadline, floored. A deadline 23h59m away is 0 days
// away, 25h away is 1 day away. Negative when the deadline passed.
func WholeDaysUntil(now, deadline time.Time) int {
	diff := deadline.Sub(now)
	days := int(diff / (time.Hour * 24))
	// integer division truncates toward zero; a deadline 1h in the
	// past is already -1 whole days away, not 0
	if diff < 0 && diff%(time.Hour*24) != 0 {
		days--
	}
	return days
}

// EndOfDay pins a calendar date to 23:59:59 portal-local, the instant
// the portal treats an assignment as due.
func EndOfDay(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 23, 59, 59, 0, Location)
}

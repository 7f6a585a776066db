package service

import "time"

// DateRange is an inclusive due-date window, at day granularity.
type DateRange struct {
	After  time.Time
	Before time.Time
}

// Previous moves the window back by its own span and Next moves it forward.
// A window covering whole calendar months moves by that many months, so a
// month-sized window stays aligned to month boundaries (March stays
// March-sized, February February-sized). Any other window moves by its
// length in days. Previous and Next are exact inverses of each other.
func (r DateRange) Previous() DateRange { return r.shift(-1) }

func (r DateRange) Next() DateRange { return r.shift(1) }

func (r DateRange) shift(direction int) DateRange {
	if r.wholeMonths() {
		months := monthIndex(r.Before) - monthIndex(r.After) + 1
		firstOfBefore := time.Date(r.Before.Year(), r.Before.Month(), 1, 0, 0, 0, 0, r.Before.Location())
		return DateRange{
			After: r.After.AddDate(0, direction*months, 0),
			// last day of the target month
			Before: firstOfBefore.AddDate(0, direction*months+1, 0).AddDate(0, 0, -1),
		}
	}

	days := int(r.Before.Sub(r.After).Hours()/24) + 1
	return DateRange{
		After:  r.After.AddDate(0, 0, direction*days),
		Before: r.Before.AddDate(0, 0, direction*days),
	}
}

// wholeMonths reports whether the window runs from the first day of a month
// to the last day of a (possibly different) month.
func (r DateRange) wholeMonths() bool {
	return r.After.Day() == 1 && r.Before.AddDate(0, 0, 1).Day() == 1
}

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month())
}

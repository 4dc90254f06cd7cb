package driver

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatDate renders a date using a strftime-style format. Supported
// tokens: %Y (4-digit year), %m (2-digit month), %d (2-digit day),
// %j (3-digit day of year). The format may contain path separators for
// nested date directories.
func FormatDate(format string, date time.Time) string {
	r := strings.NewReplacer(
		"%Y", fmt.Sprintf("%04d", date.Year()),
		"%m", fmt.Sprintf("%02d", int(date.Month())),
		"%d", fmt.Sprintf("%02d", date.Day()),
		"%j", fmt.Sprintf("%03d", date.YearDay()),
	)
	return r.Replace(format)
}

// ParseDate inverts FormatDate for a value produced with the same format.
func ParseDate(format, value string) (time.Time, error) {
	var year, month, day, yday int
	vi := 0
	fi := 0
	take := func(n int) (string, error) {
		if vi+n > len(value) {
			return "", fmt.Errorf("date %q too short for format %q", value, format)
		}
		s := value[vi : vi+n]
		vi += n
		return s, nil
	}
	for fi < len(format) {
		if format[fi] == '%' && fi+1 < len(format) {
			var width int
			var dst *int
			switch format[fi+1] {
			case 'Y':
				width, dst = 4, &year
			case 'm':
				width, dst = 2, &month
			case 'd':
				width, dst = 2, &day
			case 'j':
				width, dst = 3, &yday
			default:
				return time.Time{}, fmt.Errorf("unsupported date token %%%c", format[fi+1])
			}
			s, err := take(width)
			if err != nil {
				return time.Time{}, err
			}
			n, err := strconv.Atoi(s)
			if err != nil {
				return time.Time{}, fmt.Errorf("date %q does not match format %q", value, format)
			}
			*dst = n
			fi += 2
			continue
		}
		s, err := take(1)
		if err != nil {
			return time.Time{}, err
		}
		if s[0] != format[fi] {
			return time.Time{}, fmt.Errorf("date %q does not match format %q", value, format)
		}
		fi++
	}
	if vi != len(value) {
		return time.Time{}, fmt.Errorf("trailing characters in date %q for format %q", value, format)
	}
	if year == 0 {
		return time.Time{}, fmt.Errorf("format %q has no year token", format)
	}
	if yday > 0 {
		d := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, yday-1)
		if d.Year() != year {
			return time.Time{}, fmt.Errorf("day of year %d out of range for %d", yday, year)
		}
		return d, nil
	}
	if month == 0 || day == 0 {
		return time.Time{}, fmt.Errorf("format %q missing month or day token", format)
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if int(d.Month()) != month || d.Day() != day {
		return time.Time{}, fmt.Errorf("date %q is not a calendar date", value)
	}
	return d, nil
}

// DateDepth returns the number of path components a format's rendered
// value spans.
func DateDepth(format string) int {
	return strings.Count(format, "/") + 1
}

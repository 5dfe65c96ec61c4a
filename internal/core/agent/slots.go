package agent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	slotDateLayout = "2006-01-02"
	slotTimeLayout = "15:04"
)

var (
	isoDatePattern   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDatePattern = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{4}))?\b`)
	monthDatePattern = regexp.MustCompile(`\b(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	clockPattern     = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\s*(am|pm|a\.m\.|p\.m\.)?`)
	meridiemPattern  = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm|a\.m\.|p\.m\.)`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "sept": time.September, "oct": time.October,
	"nov": time.November, "dec": time.December,
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// parseDate extracts a calendar date from free text relative to now.
// Relative weekdays always resolve to a future day.
func parseDate(message string, now time.Time) (time.Time, bool) {
	text := strings.ToLower(message)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return validDate(year, time.Month(month), day, now.Location())
	}
	if m := slashDatePattern.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		if m[3] != "" {
			year, _ := strconv.Atoi(m[3])
			return validDate(year, time.Month(month), day, now.Location())
		}
		return nextYearlyDate(today, time.Month(month), day)
	}
	if m := monthDatePattern.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[2])
		return nextYearlyDate(today, months[m[1]], day)
	}

	words := " " + normalizeText(text) + " "
	switch {
	case strings.Contains(words, " day after tomorrow "):
		return today.AddDate(0, 0, 2), true
	case strings.Contains(words, " tomorrow "):
		return today.AddDate(0, 0, 1), true
	case strings.Contains(words, " today "):
		return today, true
	}
	for _, name := range []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"} {
		if strings.Contains(words, " "+name+" ") {
			offset := (int(weekdays[name]) - int(today.Weekday()) + 7) % 7
			if offset == 0 {
				offset = 7
			}
			return today.AddDate(0, 0, offset), true
		}
	}
	return time.Time{}, false
}

func validDate(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if t.Month() != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func nextYearlyDate(today time.Time, month time.Month, day int) (time.Time, bool) {
	t, ok := validDate(today.Year(), month, day, today.Location())
	if !ok {
		return time.Time{}, false
	}
	if t.Before(today) {
		return validDate(today.Year()+1, month, day, today.Location())
	}
	return t, true
}

// parseClock extracts a time of day as hours and minutes.
func parseClock(message string) (int, int, bool) {
	text := strings.ToLower(message)
	if m := clockPattern.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		hour, ok := applyMeridiem(hour, m[3])
		if ok && minute < 60 {
			return hour, minute, true
		}
	}
	if m := meridiemPattern.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		if hour, ok := applyMeridiem(hour, m[2]); ok {
			return hour, 0, true
		}
	}
	words := " " + normalizeText(text) + " "
	if strings.Contains(words, " noon ") || strings.Contains(words, " midday ") {
		return 12, 0, true
	}
	return 0, 0, false
}

func applyMeridiem(hour int, meridiem string) (int, bool) {
	meridiem = strings.ReplaceAll(meridiem, ".", "")
	switch meridiem {
	case "":
		return hour, hour >= 0 && hour < 24
	case "am":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour == 12 {
			return 0, true
		}
		return hour, true
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour == 12 {
			return 12, true
		}
		return hour + 12, true
	default:
		return 0, false
	}
}

package utils

import (
	"fmt"
	"strings"
	"time"
)

var monthNames = []string{
	"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

// JournalDateToISO converts a journal date cell ("DD.MM.YYYY", single-digit
// day/month tolerated) to "YYYY-MM-DD". Anything unparseable yields "", which
// never matches a real report date.
func JournalDateToISO(dateStr string) string {
	clean := strings.TrimSpace(dateStr)
	if clean == "" {
		return ""
	}
	t, err := time.Parse("2.1.2006", clean)
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// FormatJournalDate renders a time in the journal's DD.MM.YYYY convention.
func FormatJournalDate(t time.Time) string {
	return t.Format("02.01.2006")
}

// FormatMonthYear renders the journal month label, e.g. "Январь 2025".
func FormatMonthYear(t time.Time) string {
	return fmt.Sprintf("%s %d", monthNames[int(t.Month())-1], t.Year())
}

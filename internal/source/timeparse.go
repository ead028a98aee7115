package source

import (
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02-07:00",
	"2006-01-02Z07:00",
	"2006-01-02",
	"20060102",
}

// ParseTime разбирает даты в форматах, которые встречаются в OCDS и TED.
// Пустая или нераспознанная строка - nil.
func ParseTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

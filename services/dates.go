package services

import (
	"strings"
	"time"

	"legal-intel-platform/models"
)

// Date layouts tried in order, paired with the precision they imply.
var dateLayouts = []struct {
	layout    string
	precision string
}{
	{"2006-01-02", models.DatePrecisionDay},
	{"02/01/2006", models.DatePrecisionDay},
	{"02-01-2006", models.DatePrecisionDay},
	{"January 2, 2006", models.DatePrecisionDay},
	{"2 January 2006", models.DatePrecisionDay},
	{"2 Jan 2006", models.DatePrecisionDay},
	{"Jan 2, 2006", models.DatePrecisionDay},
	{"January 2006", models.DatePrecisionMonth},
	{"Jan 2006", models.DatePrecisionMonth},
	{"01/2006", models.DatePrecisionMonth},
	{"2006", models.DatePrecisionYear},
}

// ParseEventDate parses a date as written in a document into a normalized
// timestamp and precision. Unparseable text returns nil; the raw text is
// always preserved on the event.
func ParseEventDate(text string) (*time.Time, string) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.NewReplacer("st,", ",", "nd,", ",", "rd,", ",", "th,", ",").Replace(cleaned)
	if cleaned == "" {
		return nil, ""
	}
	for _, dl := range dateLayouts {
		if t, err := time.Parse(dl.layout, cleaned); err == nil {
			return &t, dl.precision
		}
	}
	return nil, ""
}

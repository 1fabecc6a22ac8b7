package services

import (
	"testing"
	"time"

	"legal-intel-platform/models"
)

func TestParseEventDate(t *testing.T) {
	cases := []struct {
		in        string
		want      string
		precision string
	}{
		{"2024-03-15", "2024-03-15", models.DatePrecisionDay},
		{"15/03/2024", "2024-03-15", models.DatePrecisionDay},
		{"March 15, 2024", "2024-03-15", models.DatePrecisionDay},
		{"15 March 2024", "2024-03-15", models.DatePrecisionDay},
		{"March 15th, 2024", "2024-03-15", models.DatePrecisionDay},
		{"March 2024", "2024-03-01", models.DatePrecisionMonth},
		{"03/2024", "2024-03-01", models.DatePrecisionMonth},
		{"2024", "2024-01-01", models.DatePrecisionYear},
	}
	for _, c := range cases {
		got, precision := ParseEventDate(c.in)
		if got == nil {
			t.Errorf("ParseEventDate(%q) = nil", c.in)
			continue
		}
		if got.Format("2006-01-02") != c.want {
			t.Errorf("ParseEventDate(%q) = %s, want %s", c.in, got.Format("2006-01-02"), c.want)
		}
		if precision != c.precision {
			t.Errorf("ParseEventDate(%q) precision = %q, want %q", c.in, precision, c.precision)
		}
	}
}

func TestParseEventDateUnparseable(t *testing.T) {
	for _, in := range []string{"", "  ", "upon completion", "the ides of March"} {
		if got, _ := ParseEventDate(in); got != nil {
			t.Errorf("ParseEventDate(%q) = %v, want nil", in, got.Format(time.RFC3339))
		}
	}
}

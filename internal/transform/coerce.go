package transform

import (
	"fmt"
	"time"

	"github.com/hankgalt/load-orchestra/pkg/domain"
	"github.com/hankgalt/load-orchestra/pkg/utils"
)

const (
	DateLayout = "2006-01-02"
)

var isoDateLayouts = []string{"2006-01-02", "2006-1-2"}

var hintDateLayouts = map[domain.DateFormat][]string{
	domain.DateFormatMDY: {"1/2/2006", "1-2-2006", "1.2.2006", "1/2/06"},
	domain.DateFormatDMY: {"2/1/2006", "2-1-2006", "2.1.2006", "2/1/06"},
	domain.DateFormatYMD: {"2006/1/2", "2006.1.2"},
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

var clockLayouts = []string{"15:04:05", "15:04"}

// coerce converts a trimmed, non blank cell to the declared field type.
func coerce(t domain.FieldType, val string, hint domain.DateFormat) (any, error) {
	switch t {
	case domain.FieldTypeBoolean:
		b, err := utils.ParseBool(val)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean %q", val)
		}
		return b, nil
	case domain.FieldTypeInteger:
		n, err := utils.ParseInt64(val)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", val, err)
		}
		return n, nil
	case domain.FieldTypeNumber:
		f, err := utils.ParseNumber(val)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", val)
		}
		return f, nil
	case domain.FieldTypeDate:
		d, err := ParseDate(val, hint)
		if err != nil {
			return nil, err
		}
		return d.Format(DateLayout), nil
	case domain.FieldTypeDateTime:
		d, err := ParseDateTime(val, hint)
		if err != nil {
			return nil, err
		}
		return d.UTC().Format(time.RFC3339), nil
	default:
		return val, nil
	}
}

func dateLayouts(hint domain.DateFormat) []string {
	if hint == "" {
		hint = domain.DateFormatMDY
	}
	return append(append([]string{}, isoDateLayouts...), hintDateLayouts[hint]...)
}

// ParseDate parses a date using the ordering hint. ISO dates are always accepted.
func ParseDate(val string, hint domain.DateFormat) (time.Time, error) {
	for _, layout := range dateLayouts(hint) {
		if d, err := time.Parse(layout, val); err == nil {
			return d, nil
		}
	}
	if d, err := time.Parse(time.RFC3339, val); err == nil {
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected %s", val, hintOrDefault(hint))
}

// ParseDateTime parses RFC3339 timestamps, or a hint ordered date followed by a clock time.
// A bare date is midnight UTC.
func ParseDateTime(val string, hint domain.DateFormat) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if d, err := time.Parse(layout, val); err == nil {
			return d, nil
		}
	}
	for _, dl := range dateLayouts(hint) {
		for _, cl := range clockLayouts {
			if d, err := time.Parse(dl+" "+cl, val); err == nil {
				return d, nil
			}
		}
	}
	if d, err := ParseDate(val, hint); err == nil {
		return d, nil
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q, expected RFC3339 or %s hh:mm[:ss]", val, hintOrDefault(hint))
}

func hintOrDefault(hint domain.DateFormat) domain.DateFormat {
	if hint == "" {
		return domain.DateFormatMDY
	}
	return hint
}

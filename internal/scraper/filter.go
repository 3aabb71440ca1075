package scraper

import (
	"fmt"
	"strconv"
	"strings"
)

// Filter narrows a listing query. String fields match case-insensitive substrings, except
// SourceSite which must match exactly. A nil IsActive does not filter.
type Filter struct {
	Title      string
	Company    string
	JobType    string
	Location   string
	SourceSite string
	IsActive   *bool
}

// FilterFromMap converts the loosely typed filter map used by callers into a Filter.
// Recognized keys: title, company, job_type, location, source_site, is_active.
func FilterFromMap(m map[string]any) (Filter, error) {
	var f Filter
	for key, raw := range m {
		if raw == nil {
			continue
		}
		switch key {
		case "title":
			f.Title = toString(raw)
		case "company":
			f.Company = toString(raw)
		case "job_type":
			f.JobType = toString(raw)
		case "location":
			f.Location = toString(raw)
		case "source_site":
			f.SourceSite = toString(raw)
		case "is_active":
			active, err := toBool(raw)
			if err != nil {
				return Filter{}, fmt.Errorf("is_active: %w", err)
			}
			f.IsActive = &active
		default:
			return Filter{}, fmt.Errorf("unsupported filter %q", key)
		}
	}
	return f, nil
}

// Matches reports whether l satisfies the filter.
func (f Filter) Matches(l Listing) bool {
	switch {
	case !containsFold(l.Title, f.Title):
		return false
	case !containsFold(l.CompanyName, f.Company):
		return false
	case !containsFold(l.JobType, f.JobType):
		return false
	case !containsFold(l.Location, f.Location):
		return false
	case f.SourceSite != "" && l.SourceSite != f.SourceSite:
		return false
	case f.IsActive != nil && l.IsActive != *f.IsActive:
		return false
	default:
		return true
	}
}

func containsFold(value, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(needle))
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, fmt.Errorf("parse bool %q: %w", t, err)
		}
		return b, nil
	default:
		return false, fmt.Errorf("unsupported type %T", v)
	}
}

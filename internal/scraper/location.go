package scraper

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/content-orchestrator/internal/leads"
)

const mapsSearchBase = "https://www.google.com/maps/search/"

var usStates = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas", "CA": "California",
	"CO": "Colorado", "CT": "Connecticut", "DE": "Delaware", "FL": "Florida", "GA": "Georgia",
	"HI": "Hawaii", "ID": "Idaho", "IL": "Illinois", "IN": "Indiana", "IA": "Iowa",
	"KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota", "MS": "Mississippi", "MO": "Missouri",
	"MT": "Montana", "NE": "Nebraska", "NV": "Nevada", "NH": "New Hampshire", "NJ": "New Jersey",
	"NM": "New Mexico", "NY": "New York", "NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio",
	"OK": "Oklahoma", "OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas", "UT": "Utah", "VT": "Vermont",
	"VA": "Virginia", "WA": "Washington", "WV": "West Virginia", "WI": "Wisconsin", "WY": "Wyoming",
	"DC": "District of Columbia",
}

var countryAliases = map[string]string{
	"us":             "United States",
	"usa":            "United States",
	"u.s.":           "United States",
	"u.s.a.":         "United States",
	"united states":  "United States",
	"uk":             "United Kingdom",
	"u.k.":           "United Kingdom",
	"great britain":  "United Kingdom",
	"united kingdom": "United Kingdom",
	"uae":            "United Arab Emirates",
}

// ParseLocation splits "City, Region, Country", "City, ST" (a US state) or
// "City, Country". A bare city or an empty string stays unstructured.
func ParseLocation(raw string) leads.Location {
	loc := leads.Location{Raw: strings.TrimSpace(raw)}
	var parts []string
	for _, p := range strings.Split(loc.Raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	switch len(parts) {
	case 0, 1:
		return loc
	case 2:
		loc.City = parts[0]
		if state, ok := lookupState(parts[1]); ok {
			loc.Region = state
			loc.Country = "United States"
			return loc
		}
		loc.Country = normalizeCountry(parts[1])
	default:
		loc.City = parts[0]
		loc.Region = strings.Join(parts[1:len(parts)-1], ", ")
		if state, ok := lookupState(loc.Region); ok {
			loc.Region = state
		}
		loc.Country = normalizeCountry(parts[len(parts)-1])
	}
	return loc
}

func lookupState(s string) (string, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", false
	}
	// "TX 78701" carries a ZIP after the state code.
	code := strings.ToUpper(fields[0])
	if name, ok := usStates[code]; ok && len(fields[0]) == 2 {
		return name, true
	}
	for _, name := range usStates {
		if strings.EqualFold(name, s) {
			return name, true
		}
	}
	return "", false
}

func normalizeCountry(s string) string {
	if name, ok := countryAliases[strings.ToLower(s)]; ok {
		return name
	}
	return s
}

// MapsSearchURL is the URL a URL-based task submits for query near loc.
func MapsSearchURL(query string, loc leads.Location) string {
	term := strings.TrimSpace(query)
	if loc.Raw != "" {
		term += " in " + loc.Raw
	}
	return mapsSearchBase + url.QueryEscape(term)
}

// BuildTask prefers structured parameters and falls back to a Maps search
// URL when the location lacks a city or a country.
func BuildTask(query, language string, loc leads.Location) leads.TaskSpec {
	if loc.Structured() {
		return leads.TaskSpec{
			Query:    query,
			City:     loc.City,
			Region:   loc.Region,
			Country:  loc.Country,
			Language: language,
		}
	}
	return leads.TaskSpec{URL: MapsSearchURL(query, loc)}
}

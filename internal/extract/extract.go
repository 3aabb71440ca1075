// Package extract pulls contact details, company websites, and salary ranges out of free-form
// job description text. All functions are pure.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	emailPattern    = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern    = regexp.MustCompile(`(?:\+\d{1,3}[-.\s]?)?\(?\b\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	profilePattern  = regexp.MustCompile(`linkedin\.com/(?:in|company)/[A-Za-z0-9_-]+`)
	urlPattern      = regexp.MustCompile(`https?://(?:www\.)?(?:[A-Za-z0-9][-A-Za-z0-9]*\.)+[A-Za-z]{2,}(?:/[^\s"'<>]*)?`)
	salaryPattern   = regexp.MustCompile(`(?i)\$\s*\d{1,3}(?:,\d{3})*(?:\s*-\s*\$\s*\d{1,3}(?:,\d{3})*)?(?:\s*(?:per|a|/)\s*(?:year|yr|month|mo|hour|hr|annum)\b)?`)
	salaryKPattern  = regexp.MustCompile(`(?i)\$\d{1,3}k(?:\s*-\s*\$\d{1,3}k)?(?:\s*(?:per|a|/)\s*(?:year|yr|month|mo|hour|hr|annum)\b)?`)
	trailingJunk    = ".,;:!?)]}"
	defaultExcluded = []string{"linkedin.com", "twitter.com", "facebook.com", "instagram.com"}
)

// SocialDomains returns the profile domains never treated as a company website.
func SocialDomains() []string {
	return append([]string(nil), defaultExcluded...)
}

// Text normalizes Unicode compatibility forms and collapses runs of whitespace.
func Text(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

// ContactInfo returns every email address, phone number, and profile URL found in text,
// joined with ", ". It returns "" when nothing matches.
func ContactInfo(text string) string {
	var found []string
	found = append(found, emailPattern.FindAllString(text, -1)...)
	for _, phone := range phonePattern.FindAllString(text, -1) {
		found = append(found, strings.TrimSpace(phone))
	}
	found = append(found, profilePattern.FindAllString(text, -1)...)
	return strings.Join(found, ", ")
}

// CompanyWebsite returns the first URL in text whose host does not contain any excluded domain.
func CompanyWebsite(text string, excluded []string) string {
	for _, raw := range urlPattern.FindAllString(text, -1) {
		candidate := strings.TrimRight(raw, trailingJunk)
		u, err := url.Parse(candidate)
		if err != nil || u.Host == "" {
			continue
		}
		if hostExcluded(strings.ToLower(u.Host), excluded) {
			continue
		}
		return candidate
	}
	return ""
}

func hostExcluded(host string, excluded []string) bool {
	for _, domain := range excluded {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" && strings.Contains(host, domain) {
			return true
		}
	}
	return false
}

// Salary returns the first salary range in text. Full amounts such as "$50,000 - $70,000"
// win over abbreviated ones such as "$50k - $70k" unless preferAbbreviated is set.
func Salary(text string, preferAbbreviated bool) string {
	order := []*regexp.Regexp{salaryPattern, salaryKPattern}
	if preferAbbreviated {
		order[0], order[1] = order[1], order[0]
	}
	for _, re := range order {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			// "$90" in "$90k" is the head of an abbreviated amount, not a full one.
			if re == salaryPattern && loc[1] < len(text) && (text[loc[1]] == 'k' || text[loc[1]] == 'K') {
				continue
			}
			return strings.TrimSpace(text[loc[0]:loc[1]])
		}
	}
	return ""
}

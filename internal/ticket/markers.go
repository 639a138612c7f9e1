package ticket

import "strings"

// Section names the two generated content regions an issue body may carry.
type Section string

const (
	SectionResearch Section = "research"
	SectionPlan     Section = "plan"
)

func markers(s Section) (open, close string) {
	return "<!-- kiln:" + string(s) + " -->", "<!-- /kiln:" + string(s) + " -->"
}

// ExtractSection returns the content between a section's markers, and
// whether the markers were found at all.
func ExtractSection(body string, s Section) (string, bool) {
	open, close := markers(s)
	start := strings.Index(body, open)
	if start < 0 {
		return "", false
	}
	start += len(open)
	end := strings.Index(body[start:], close)
	if end < 0 {
		return "", false
	}
	return body[start : start+end], true
}

// ReplaceSection rewrites the content of a section in body, preserving
// every byte outside the markers (and the markers themselves) untouched.
// If the markers are not present, the section is appended at the end of
// the body with a blank line separator.
func ReplaceSection(body string, s Section, content string) string {
	open, close := markers(s)
	start := strings.Index(body, open)
	if start < 0 {
		sep := "\n"
		if body == "" || strings.HasSuffix(body, "\n") {
			sep = ""
		}
		return body + sep + "\n" + open + content + close
	}
	contentStart := start + len(open)
	end := strings.Index(body[contentStart:], close)
	if end < 0 {
		// Malformed body: opening marker without a closing one. Leave it
		// alone rather than guess at intent.
		return body
	}
	closeStart := contentStart + end
	return body[:contentStart] + content + body[closeStart:]
}

// RemoveSection deletes a section, its markers, and the content between
// them, leaving everything else byte-for-byte unchanged. Used by
// ResetController to wipe generated content.
func RemoveSection(body string, s Section) string {
	open, close := markers(s)
	start := strings.Index(body, open)
	if start < 0 {
		return body
	}
	end := strings.Index(body[start:], close)
	if end < 0 {
		return body
	}
	end = start + end + len(close)
	return body[:start] + body[end:]
}

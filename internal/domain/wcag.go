package domain

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	criterionExpr      = regexp.MustCompile(`\b[1-4]\.\d{1,2}\.\d{1,2}\b`)
	exactCriterionExpr = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// IsCriterion reports whether value is a dotted WCAG success criterion triple.
func IsCriterion(value string) bool {
	return exactCriterionExpr.MatchString(strings.TrimSpace(value))
}

// FindCriterion returns the first criterion triple embedded in text, or "".
func FindCriterion(text string) string {
	return criterionExpr.FindString(text)
}

// NormalizeCriterion extracts a triple from a free-text answer, defaulting to Unknown.
func NormalizeCriterion(value string) string {
	if c := FindCriterion(value); c != "" {
		return c
	}
	return Unknown
}

// CriterionFromTag converts tracker tags such as "wcag1410" into "1.4.10".
func CriterionFromTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	digits, ok := strings.CutPrefix(tag, "wcag")
	if !ok || len(digits) < 3 {
		return Unknown
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return Unknown
		}
	}
	return digits[0:1] + "." + digits[1:2] + "." + digits[2:]
}

// CriterionLess orders dotted triples numerically and puts anything else last.
func CriterionLess(a, b string) bool {
	aOK, bOK := IsCriterion(a), IsCriterion(b)
	if aOK != bOK {
		return aOK
	}
	if !aOK {
		return a < b
	}
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for k := 0; k < 3; k++ {
		x, _ := strconv.Atoi(as[k])
		y, _ := strconv.Atoi(bs[k])
		if x != y {
			return x < y
		}
	}
	return false
}

package strutils

import "strings"

// StrListContains looks for a string in a list of strings.
func StrListContains(haystack []string, needle string) bool {
	for _, item := range haystack {
		if item == needle {
			return true
		}
	}
	return false
}

// SplitFields splits a space separated parameter value (scope, ui_locales,
// acr_values) into its non-empty members.
func SplitFields(s string) []string {
	return strings.Fields(s)
}

package notice

import "strings"

// ProductName guesses the software product name from a purchase object
// description:
//  1. text between the first and the last straight double quote, if there are two;
//  2. else text between the first « and the last », if both are present;
//  3. else the description itself.
//
// The guess is imprecise (several quoted names collapse into one span), but
// product identity is keyed on its output, so the rule must stay exactly this.
func ProductName(description string) string {
	l := strings.Index(description, `"`)
	r := strings.LastIndex(description, `"`)
	if l != -1 && r != -1 && l != r {
		return description[l+1 : r]
	}

	l = strings.Index(description, "«")
	if l != -1 && strings.Contains(description, "»") {
		start := l + len("«")
		end := strings.LastIndex(description, "»")
		if end < start {
			return ""
		}
		return description[start:end]
	}

	return description
}

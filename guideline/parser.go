package guideline

import (
	"strings"
)

// Parse reads a directive document into a Set. Sections open with a
// "##" heading; entries are bullet ("-", "*") or numbered ("1.") lines,
// or fenced blocks kept whole as single entries. Content under
// unrecognized headings is skipped.
func Parse(content string) *Set {
	set := &Set{}
	section := ""
	var fence []string
	inFence := false

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if inFence {
				inFence = false
				if section != "" && len(fence) > 0 {
					set.add(section, strings.Join(fence, "\n"))
				}
				fence = nil
			} else {
				inFence = true
				fence = nil
			}
			continue
		}
		if inFence {
			fence = append(fence, line)
			continue
		}

		if strings.HasPrefix(trimmed, "#") {
			name := normalizeHeading(trimmed)
			if knownSections[name] {
				section = name
			} else {
				section = ""
			}
			continue
		}
		if section == "" {
			continue
		}
		if entry, ok := listEntry(trimmed); ok {
			set.add(section, entry)
		}
	}
	return set
}

// listEntry extracts the text of a bullet or numbered line.
func listEntry(line string) (string, bool) {
	for _, prefix := range []string{"- ", "* "} {
		if strings.HasPrefix(line, prefix) {
			text := strings.TrimSpace(line[len(prefix):])
			return text, text != ""
		}
	}
	// Numbered form: digits followed by ". " or ") ".
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i+1 < len(line) && (line[i] == '.' || line[i] == ')') && line[i+1] == ' ' {
		text := strings.TrimSpace(line[i+2:])
		return text, text != ""
	}
	return "", false
}

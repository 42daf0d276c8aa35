package remote

import (
	"fmt"
	"strings"
)

// Entry kinds, taken from the first character of the permissions field.
const (
	KindFile      = "file"
	KindDirectory = "directory"
	KindOther     = "other"
)

// minListingFields is the smallest field count from which kind, timestamp and
// name can be recovered: kind + three timestamp fields + name.
const minListingFields = 4

// Entry is one parsed line of a LIST response.
type Entry struct {
	Kind      string
	Timestamp string // raw "Mon DD HH:MM" or "Mon DD YYYY" token, not parsed
	Name      string
}

// IsArchive reports whether the entry is a regular file with the archive extension.
func (e Entry) IsArchive() bool {
	return e.Kind == KindFile && strings.HasSuffix(strings.ToLower(e.Name), ".zip")
}

// ProtocolError reports a listing or control connection response that cannot be interpreted.
type ProtocolError struct {
	Line   string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Line == "" {
		return "ftp protocol error: " + e.Reason
	}
	return fmt.Sprintf("ftp protocol error: %s: %q", e.Reason, e.Line)
}

// ParseEntry decomposes one `ls -l` style line.
func ParseEntry(line string) (Entry, error) {
	fields := strings.Fields(line)
	if len(fields) < minListingFields {
		return Entry{}, &ProtocolError{Line: line, Reason: fmt.Sprintf("expected at least %d fields, got %d", minListingFields, len(fields))}
	}

	kind := KindOther
	switch fields[0][0] {
	case '-':
		kind = KindFile
	case 'd':
		kind = KindDirectory
	}

	n := len(fields)
	return Entry{
		Kind:      kind,
		Timestamp: strings.Join(fields[n-4:n-1], " "),
		Name:      fields[n-1],
	}, nil
}

// ParseListing parses a full LIST response, preserving server order.
// Blank lines and the "total N" summary some servers emit are skipped.
func ParseListing(lines []string) ([]Entry, error) {
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "total ") {
			continue
		}
		e, err := ParseEntry(trimmed)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Archives keeps the regular .zip files of a listing.
func Archives(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.IsArchive() {
			out = append(out, e)
		}
	}
	return out
}

// Directories keeps the directory names of a listing.
func Directories(entries []Entry) []string {
	var out []string
	for _, e := range entries {
		if e.Kind == KindDirectory && e.Name != "." && e.Name != ".." {
			out = append(out, e.Name)
		}
	}
	return out
}

package domain

import (
	"sort"
	"strconv"
	"strings"
)

// ParseList splits a comma-separated value into trimmed, non-empty items.
func ParseList(raw string) []string {
	var items []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			items = append(items, part)
		}
	}
	return items
}

// ParseIDList parses a comma-separated value into numeric ids, skipping
// blank and non-numeric entries.
func ParseIDList(raw string) []int64 {
	var ids []int64
	for _, part := range ParseList(raw) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// JoinIDs renders ids as the comma-joined column form.
func JoinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

// EncodeFields renders a field map as a comma-joined list of name=value
// pairs, sorted by name so the column value is deterministic.
func EncodeFields(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+fields[name])
	}
	return strings.Join(parts, ",")
}

// DecodeFields parses the comma-joined name=value column form back into a
// map. Entries without a value decode to an empty string.
func DecodeFields(raw string) map[string]string {
	fields := make(map[string]string)
	for _, part := range ParseList(raw) {
		name, value, _ := strings.Cut(part, "=")
		if name != "" {
			fields[name] = value
		}
	}
	return fields
}

func unionIDs(a, b []int64) []int64 {
	seen := make(map[int64]bool, len(a)+len(b))
	var union []int64
	for _, id := range append(append([]int64{}, a...), b...) {
		if !seen[id] {
			seen[id] = true
			union = append(union, id)
		}
	}
	return union
}

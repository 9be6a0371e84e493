package source

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/recordimport/internal/core"
)

// Links maps a column to the field its values are looked up by. Every
// non-blank value in the column becomes a resolvable reference, so it is
// written as links to the records where that field holds the value.
//
//	manager: ssn   // manager=123 links to the records with ssn=123
type Links map[string]string

// ParseLinks parses column=key pairs.
func ParseLinks(pairs []string) (Links, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	links := make(Links, len(pairs))
	for _, pair := range pairs {
		column, key, ok := strings.Cut(pair, "=")
		column, key = strings.TrimSpace(column), strings.TrimSpace(key)
		if !ok || column == "" || key == "" {
			return nil, fmt.Errorf("invalid link %q: want column=key", pair)
		}
		links[column] = key
	}
	return links, nil
}

// linked rewrites the linked columns of every group from src.
type linked struct {
	core.GroupSource
	links Links
}

// WithLinks wraps src so the columns in links resolve as references. It
// returns src unchanged when links is empty.
func WithLinks(src core.GroupSource, links Links) core.GroupSource {
	if len(links) == 0 {
		return src
	}
	return &linked{GroupSource: src, links: links}
}

func (l *linked) Next() (*core.RawGroup, error) {
	group, err := l.GroupSource.Next()
	if err != nil {
		return nil, err
	}
	out := core.NewRawGroup()
	for _, field := range group.Fields() {
		key, ok := l.links[field]
		for _, raw := range group.Values(field) {
			if ok && strings.TrimSpace(raw) != "" && !strings.HasPrefix(raw, core.ResolvablePrepend) {
				raw = core.WrapResolvable(key, raw)
			}
			out.Add(field, raw)
		}
	}
	return out, nil
}

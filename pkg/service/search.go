package service

import (
	"context"
	"strings"
	"unicode"

	"github.com/aretw0/arbor/pkg/core"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
	excerptRadius      = 10
	excerptMinWidth    = 20
)

// Search finds active notes whose name or content contains q, case-insensitively.
// Folders are excluded. Results are ordered by most recent update.
func (s *Service) Search(ctx context.Context, q core.SearchQuery) (core.SearchPage, error) {
	owner, err := s.begin(ctx, "search")
	if err != nil {
		return core.SearchPage{}, err
	}
	term := strings.TrimSpace(q.Q)
	if term == "" {
		return core.SearchPage{Data: []core.SearchHit{}}, nil
	}
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	nodes, err := s.repo.Find(ctx, core.Filter{Owner: owner, State: core.StateActive})
	if err != nil {
		return core.SearchPage{}, core.AsError("search", "", err)
	}

	lowered := strings.ToLower(term)
	var matches []core.Node
	for _, n := range nodes {
		if n.IsFolder() {
			continue
		}
		if strings.Contains(strings.ToLower(n.Name), lowered) || strings.Contains(strings.ToLower(n.Content()), lowered) {
			matches = append(matches, n)
		}
	}
	SortRecent(matches)

	skip := (page - 1) * limit
	out := core.SearchPage{Data: []core.SearchHit{}}
	if skip >= len(matches) {
		return out, nil
	}
	end := min(skip+limit, len(matches))
	for _, n := range matches[skip:end] {
		out.Data = append(out.Data, core.SearchHit{Node: n.Summary(), Excerpt: Excerpt(n.Content(), term)})
	}
	out.HasMore = end < len(matches)
	return out, nil
}

// Excerpt returns a short window of content around the first case-insensitive
// occurrence of term, with the match wrapped in <strong>. When term does not
// occur the first characters of content are returned.
func Excerpt(content, term string) string {
	text := []rune(content)
	if len(text) == 0 {
		return ""
	}
	needle := []rune(term)
	idx := indexFold(text, needle)
	if idx < 0 || len(needle) == 0 {
		if len(text) > excerptMinWidth {
			return string(text[:excerptMinWidth]) + "..."
		}
		return content
	}

	start := max(0, idx-excerptRadius)
	end := min(len(text), idx+len(needle)+excerptRadius)
	if end-start < excerptMinWidth {
		if start == 0 {
			end = min(len(text), excerptMinWidth)
		} else if end == len(text) {
			start = max(0, len(text)-excerptMinWidth)
		}
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(string(text[start:idx]))
	b.WriteString("<strong>")
	b.WriteString(string(text[idx : idx+len(needle)]))
	b.WriteString("</strong>")
	b.WriteString(string(text[idx+len(needle) : end]))
	if end < len(text) {
		b.WriteString("...")
	}
	return b.String()
}

func indexFold(text, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(text) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(text); i++ {
		for j, r := range needle {
			if unicode.ToLower(text[i+j]) != unicode.ToLower(r) {
				continue outer
			}
		}
		return i
	}
	return -1
}

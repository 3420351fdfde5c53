package service

import (
	"context"
	"time"

	"github.com/aretw0/arbor/pkg/core"
)

const (
	recentWindow      = 7 * 24 * time.Hour
	recentNotesLimit  = 6
	recentContentSize = 60
	activityDays      = 7
)

// Stats summarizes the owner's tree: counts, recently updated notes and the
// number of notes created on each of the last seven days.
func (s *Service) Stats(ctx context.Context) (core.Stats, error) {
	owner, err := s.begin(ctx, "stats")
	if err != nil {
		return core.Stats{}, err
	}
	nodes, err := s.repo.Find(ctx, core.Filter{Owner: owner, State: core.StateAny})
	if err != nil {
		return core.Stats{}, core.AsError("stats", "", err)
	}

	now := s.now()
	since := now.Add(-recentWindow)
	st := core.Stats{RecentNotes: []core.Node{}}
	var active []core.Node

	for _, n := range nodes {
		switch {
		case n.Trashed():
			st.Trash++
		case n.IsFolder():
			st.Folders++
		default:
			st.Notes++
			active = append(active, n)
			if !n.UpdatedAt.Before(since) {
				st.Recent++
			}
		}
	}

	SortRecent(active)
	for i := 0; i < len(active) && i < recentNotesLimit; i++ {
		n := active[i].Summary()
		content := []rune(active[i].Content())
		if len(content) > recentContentSize {
			n.Body = core.Leaf{Content: string(content[:recentContentSize]) + "..."}
		} else {
			n.Body = core.Leaf{Content: string(content)}
		}
		st.RecentNotes = append(st.RecentNotes, n)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for i := activityDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		next := day.AddDate(0, 0, 1)
		count := 0
		for _, n := range nodes {
			if n.IsFolder() {
				continue
			}
			created := n.CreatedAt.In(now.Location())
			if !created.Before(day) && created.Before(next) {
				count++
			}
		}
		st.Activity = append(st.Activity, core.DayCount{Date: day.Format("2006-01-02"), Count: count})
	}
	return st, nil
}

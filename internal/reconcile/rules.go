package reconcile

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"coachsync/internal/domain"
)

// external_refs keys that carry provider meeting identifiers usable for
// cross-referencing. A value appearing under one key on one meeting and under
// another key on a second meeting still links them.
var crossRefKeys = []string{
	domain.RefZoomMeetingID,
	domain.RefFirefliesMeetingID,
}

// BuildEdges applies the three linking rules over the window and returns
// accumulated undirected edges (meeting indexes into meetings). The rules are
// independent; edges simply accumulate. Any true link is enough to place two
// meetings in the same component, so there is no precedence between rules.
func BuildEdges(meetings []domain.Meeting, proximity time.Duration) [][2]int {
	var edges [][2]int
	edges = append(edges, icalUIDEdges(meetings)...)
	edges = append(edges, crossRefEdges(meetings)...)
	edges = append(edges, joinURLProximityEdges(meetings, proximity)...)
	return edges
}

// Rule A: identical non-null ical_uid links pairwise (full clique per group).
func icalUIDEdges(meetings []domain.Meeting) [][2]int {
	groups := map[string][]int{}
	for i, m := range meetings {
		if m.ICalUID != "" {
			groups[m.ICalUID] = append(groups[m.ICalUID], i)
		}
	}
	return cliqueEdges(groups)
}

// Rule B: identical provider meeting id under any cross-ref key links
// pairwise within each value group.
func crossRefEdges(meetings []domain.Meeting) [][2]int {
	groups := map[string][]int{}
	for i, m := range meetings {
		seen := map[string]bool{}
		for _, key := range crossRefKeys {
			v := m.ExternalRefs[key]
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			groups[v] = append(groups[v], i)
		}
	}
	return cliqueEdges(groups)
}

// Rule C (fallback, intentionally coarse): same coach + same join_url host,
// start times within the proximity tolerance. Skipped for meetings missing
// join_url or started_at. The sorted scan breaks early once the gap exceeds
// the tolerance; with the group sorted by started_at this drops no pairs.
func joinURLProximityEdges(meetings []domain.Meeting, proximity time.Duration) [][2]int {
	type groupKey struct {
		coachID string
		host    string
	}
	groups := map[groupKey][]int{}
	for i, m := range meetings {
		if m.StartedAt == nil {
			continue
		}
		host := joinURLHost(m.JoinURL)
		if host == "" {
			continue
		}
		k := groupKey{coachID: m.CoachID, host: host}
		groups[k] = append(groups[k], i)
	}

	var edges [][2]int
	for _, idxs := range groups {
		sort.Slice(idxs, func(a, b int) bool {
			ta := meetings[idxs[a]].StartedAt
			tb := meetings[idxs[b]].StartedAt
			if ta.Equal(*tb) {
				return meetings[idxs[a]].MeetingID < meetings[idxs[b]].MeetingID
			}
			return ta.Before(*tb)
		})
		for a := 0; a < len(idxs); a++ {
			for b := a + 1; b < len(idxs); b++ {
				diff := meetings[idxs[b]].StartedAt.Sub(*meetings[idxs[a]].StartedAt)
				if diff > proximity {
					break
				}
				edges = append(edges, [2]int{idxs[a], idxs[b]})
			}
		}
	}
	return edges
}

func joinURLHost(joinURL string) string {
	if joinURL == "" {
		return ""
	}
	u, err := url.Parse(joinURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

func cliqueEdges(groups map[string][]int) [][2]int {
	var edges [][2]int
	for _, idxs := range groups {
		for a := 0; a < len(idxs); a++ {
			for b := a + 1; b < len(idxs); b++ {
				edges = append(edges, [2]int{idxs[a], idxs[b]})
			}
		}
	}
	return edges
}

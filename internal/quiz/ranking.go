package quiz

import "sort"

// BuildRanking aggregates attempts into a ranking: points summed per user,
// sorted by points descending with ties broken by ascending user id, and
// positions numbered from 1. names maps user ids to display names; users
// missing from it render as "Unknown".
func BuildRanking(attempts []Attempt, names map[string]string) []RankingEntry {
	totals := make(map[string]int)
	for _, a := range attempts {
		totals[a.UserID] += a.PointsObtained
	}

	entries := make([]RankingEntry, 0, len(totals))
	for userID, points := range totals {
		name, ok := names[userID]
		if !ok || name == "" {
			name = "Unknown"
		}
		entries = append(entries, RankingEntry{
			UserID:      userID,
			DisplayName: name,
			Points:      points,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].UserID < entries[j].UserID
	})

	for i := range entries {
		entries[i].Position = i + 1
	}
	return entries
}

package match

// Dedup keeps the first match of every key, preserving arrival order.
func Dedup(matches []Match) []Match {
	seen := make(map[Key]struct{}, len(matches))
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		k := m.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, m)
	}
	return out
}

package module

// MergeCatalog combines the curated and registered partitions into one list.
// Curated entries come first and win on id collision, registered entries are
// appended in their given order when their id is still free. The inputs are
// not modified and nothing is validated besides the id.
func MergeCatalog(curated, registered []ModelListing) []ModelListing {
	seen := make(map[string]struct{}, len(curated)+len(registered))
	merged := make([]ModelListing, 0, len(curated)+len(registered))
	for _, partition := range [][]ModelListing{curated, registered} {
		for _, listing := range partition {
			if _, ok := seen[listing.Id]; ok {
				continue
			}
			seen[listing.Id] = struct{}{}
			merged = append(merged, listing)
		}
	}
	return merged
}

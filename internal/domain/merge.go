package domain

import "time"

// MergeRemote reconciles a local cart with the copy held in the remote document.
//
// For every remote row the remote fields replace the local row with the same id, or the row is
// appended when the id is unknown locally. Rows that exist only locally are kept: deletions are
// never propagated. Remote rows without an id or with a non-positive quantity are ignored.
// Every row of the result is stamped with now as its sync time.
func MergeRemote(local, remote Cart, now time.Time) Cart {
	merged := local.Clone()

	for _, item := range remote.Items {
		if item.ID == "" || item.Quantity <= 0 {
			continue
		}

		if idx := merged.index(item.ID); idx >= 0 {
			merged.Items[idx] = item
			continue
		}

		merged.Items = append(merged.Items, item)
	}

	for i := range merged.Items {
		synced := now
		merged.Items[i].SyncedAt = &synced
	}

	return merged
}

package jobs

import (
	"github.com/papercomputeco/ggchat/pkg/chat"
)

// LatestByModel returns, per model, the job with the highest id. Job ids
// grow monotonically, so the highest id is the most recent attempt.
func LatestByModel(jobs []chat.DownloadJob) map[int64]chat.DownloadJob {
	latest := make(map[int64]chat.DownloadJob, len(jobs))
	for _, j := range jobs {
		if cur, ok := latest[j.ModelID]; !ok || j.ID > cur.ID {
			latest[j.ModelID] = j
		}
	}
	return latest
}

// LatestForModel returns the most recent job for modelID.
func LatestForModel(jobs []chat.DownloadJob, modelID int64) (chat.DownloadJob, bool) {
	var (
		latest chat.DownloadJob
		found  bool
	)
	for _, j := range jobs {
		if j.ModelID == modelID && (!found || j.ID > latest.ID) {
			latest, found = j, true
		}
	}
	return latest, found
}

// HasActive reports whether any job is pending or running.
func HasActive(jobs []chat.DownloadJob) bool {
	for _, j := range jobs {
		if j.Status.IsActive() {
			return true
		}
	}
	return false
}

// Active returns the pending or running jobs, in snapshot order.
func Active(jobs []chat.DownloadJob) []chat.DownloadJob {
	var active []chat.DownloadJob
	for _, j := range jobs {
		if j.Status.IsActive() {
			active = append(active, j)
		}
	}
	return active
}

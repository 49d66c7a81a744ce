package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"naval-session-engine/services"
	"naval-session-engine/utils"
)

const archiveBatchSize = 50

// PollArchives pushes settled game transcripts to R2 so the database
// only has to keep them until the upload lands. Records stay
// unarchived on failure and get retried next tick.
func PollArchives(ctx context.Context, store services.Store, pollInterval time.Duration) {
	log.Println("Starting transcript archive polling...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Archive polling stopped.")
			return
		case <-ticker.C:
			records, err := store.ListUnarchivedScoreRecords(archiveBatchSize)
			if err != nil {
				log.Printf("❌ Error listing unarchived score records: %v", err)
				continue
			}
			if len(records) == 0 {
				continue
			}

			archived := 0
			for _, rec := range records {
				key := fmt.Sprintf("transcripts/%s.json", rec.SessionID)
				url, err := utils.UploadBytesToR2([]byte(rec.TranscriptJSON), key, "application/json")
				if err != nil {
					log.Printf("❌ Failed to archive transcript for session %s: %v", rec.SessionID, err)
					continue
				}
				now := time.Now().UTC()
				rec.ArchiveURL = url
				rec.ArchivedAt = &now
				if err := store.SaveScoreRecord(rec); err != nil {
					log.Printf("⚠️ Transcript uploaded but record update failed for %s: %v", rec.SessionID, err)
					continue
				}
				archived++
			}
			if archived > 0 {
				log.Printf("📦 Archived %d transcript(s) to R2.", archived)
			}
		}
	}
}

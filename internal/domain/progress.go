package domain

// Reading statuses tracked per book.
const (
	StatusUnread   = "unread"
	StatusReading  = "reading"
	StatusFinished = "finished"
)

// ProgressRecord is the per-book reading status ledger entry.
// One record exists per book ID; merges are last-write-wins by
// LastUpdated, with ties going to the incoming write.
type ProgressRecord struct {
	BookID      int64  `json:"book_id"`
	Status      string `json:"status"`
	LastUpdated int64  `json:"last_updated"` // Unix seconds.
}

// ValidStatus reports whether s is one of the known reading statuses.
func ValidStatus(s string) bool {
	return s == StatusUnread || s == StatusReading || s == StatusFinished
}

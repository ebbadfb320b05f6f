package domain

// TransferTask is one book's download job as submitted to the transfer
// engine. Tasks are consumed exactly once by the worker and never
// mutated after creation.
type TransferTask struct {
	Book            Book
	HostIP          string
	HostPort        int
	Token           string
	DestinationRoot string
}

// Transfer progress statuses.
const (
	TransferDownloading = "downloading"
	TransferCompleted   = "completed"
	TransferError       = "error"
)

// TransferProgress is the payload published for every transfer state
// transition. Progress runs 0.0 to 1.0 and stays at 0 when the remote
// does not advertise a content length.
type TransferProgress struct {
	BookID        int64   `json:"book_id"`
	Title         string  `json:"title"`
	Progress      float64 `json:"progress"`
	Status        string  `json:"status"`
	Error         string  `json:"error,omitempty"`
	QueuePosition int     `json:"queue_position"`
	QueueTotal    int     `json:"queue_total"`
}

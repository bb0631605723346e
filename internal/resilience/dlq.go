package resilience

import (
	"time"

	"github.com/sells-group/leadflow/internal/model"
)

// DLQEntry represents a lead whose outreach or pipeline processing failed
// and can be retried later.
type DLQEntry struct {
	ID           string     `json:"id"`
	Lead         model.Lead `json:"lead"`
	Error        string     `json:"error"`
	ErrorType    string     `json:"error_type"` // "transient" or "permanent"
	FailedNode   string     `json:"failed_node,omitempty"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	NextRetryAt  time.Time  `json:"next_retry_at"`
	CreatedAt    time.Time  `json:"created_at"`
	LastFailedAt time.Time  `json:"last_failed_at"`
}

// DLQFilter specifies criteria for querying the dead letter queue.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"` // "transient", "permanent", or "" for all
	Node      string `json:"node,omitempty"`       // filter by failed node
	Limit     int    `json:"limit,omitempty"`
}

// NewDLQEntry builds an entry for a failed lead with a retry schedule
// starting one minute out.
func NewDLQEntry(lead model.Lead, node string, err error) DLQEntry {
	now := time.Now().UTC()
	return DLQEntry{
		Lead:         lead,
		Error:        err.Error(),
		ErrorType:    ClassifyError(err),
		FailedNode:   node,
		MaxRetries:   3,
		NextRetryAt:  now.Add(time.Minute),
		CreatedAt:    now,
		LastFailedAt: now,
	}
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}

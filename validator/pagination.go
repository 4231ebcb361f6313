package validator

import "github.com/mohitkumar/flowengine/model"

const MaxPageLimit = 200

// ValidatePagination accepts offset >= 0 and 0 <= limit <= MaxPageLimit.
func ValidatePagination(offset int, limit int) error {
	if offset < 0 {
		return violation("pagination", "offset %d must not be negative", offset)
	}
	if limit < 0 || limit > MaxPageLimit {
		return violation("pagination", "limit %d must be between 0 and %d", limit, MaxPageLimit)
	}
	return nil
}

func ValidateTraceStatus(status model.TraceStatus) error {
	for _, s := range model.TRACE_STATUSES {
		if s == status {
			return nil
		}
	}
	return violation("trace-status", "unknown trace status %q", status)
}

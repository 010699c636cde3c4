package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects only need valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectInstallationsNotify:
		var req NotifyRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if req.Topic == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("topic is required"))
		}
	}
	return nil
}

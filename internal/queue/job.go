package queue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Job is the wire body of a suggestion computation request.
type Job struct {
	CaseID     string `json:"case_id"`
	JobID      string `json:"job_id"`
	UserID1    string `json:"userId1"`
	UserID2    string `json:"userId2"`
	Preference string `json:"preference,omitempty"`
}

func (j Job) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// DecodeJob parses a delivery body. Any failure wraps ErrPoisonMessage since
// a malformed body will fail the same way on every redelivery.
func DecodeJob(body []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrPoisonMessage, err)
	}
	var missing []string
	if strings.TrimSpace(job.JobID) == "" {
		missing = append(missing, "job_id")
	}
	if strings.TrimSpace(job.UserID1) == "" {
		missing = append(missing, "userId1")
	}
	if strings.TrimSpace(job.UserID2) == "" {
		missing = append(missing, "userId2")
	}
	if len(missing) > 0 {
		return Job{}, fmt.Errorf("%w: missing %s", ErrPoisonMessage, strings.Join(missing, ", "))
	}
	return job, nil
}

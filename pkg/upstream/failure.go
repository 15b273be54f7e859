package upstream

import "fmt"

// StageFailure reports a non-2xx answer from one protocol step. Status and
// Body are the upstream's, unmodified, so the caller can forward them.
type StageFailure struct {
	Stage       string
	Status      int
	ContentType string
	Body        []byte
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("upstream %s returned %d: %s", e.Stage, e.Status, string(e.Body))
}

// Check returns a StageFailure for stage when resp is not 2xx.
func Check(stage string, resp *Response) error {
	if resp.OK() {
		return nil
	}
	return &StageFailure{
		Stage:       stage,
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Body:        resp.Body,
	}
}

package capability

import "time"

// ActionRequest is a validated structured intent derived from a
// natural-language utterance. It is only constructed after the target
// capability and parameters passed schema validation.
type ActionRequest struct {
	Capability string                 `json:"capability"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Requester  string                 `json:"requester"`
	Utterance  string                 `json:"utterance"`
	CreatedAt  time.Time              `json:"created_at"`
}

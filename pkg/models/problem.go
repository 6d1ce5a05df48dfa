package models

// APIProblem represents an RFC 7807 Problem Details response for API docs.
type APIProblem struct {
	Type     string `json:"type" example:"https://guardian.dev/problems/bad-request"`
	Title    string `json:"title" example:"Bad Request"`
	Status   int    `json:"status" example:"400"`
	Detail   string `json:"detail,omitempty" example:"battery: must be between 0 and 100"`
	Instance string `json:"instance,omitempty" example:"/api/iot/status"`
}

// Ack is the body returned by ingestion endpoints on success.
type Ack struct {
	Success bool `json:"success" example:"true"`
}

package inference

// Upload is one image as received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status  string   `json:"status"`
	Backend string   `json:"backend"`
	Labels  []string `json:"labels"`
}

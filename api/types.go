package api

// StatusResponse is returned by GET /api/status
type StatusResponse struct {
	Connected bool   `json:"connected"`
	URL       string `json:"url"`
	Page      string `json:"page"`
}

// SessionResponse is the stored session with the credential masked
type SessionResponse struct {
	LoggedIn   bool   `json:"logged_in"`
	Key        string `json:"key,omitempty"`
	IsOperator bool   `json:"is_operator"`
	DrawID     string `json:"draw_id"`
}

// SaveSessionRequest is the body of PUT /api/session
type SaveSessionRequest struct {
	Key        string `json:"key"`
	IsOperator bool   `json:"is_operator"`
	DrawID     string `json:"draw_id"`
}

// AccessResponse is returned by GET /api/access
type AccessResponse struct {
	Allowed bool   `json:"allowed"`
	Page    string `json:"page"`
}

// LoginRequest is the optional body of POST /api/login
type LoginRequest struct {
	Key string `json:"key,omitempty"`
}

// DrawRequest is the body of POST /api/draw
type DrawRequest struct {
	Number int `json:"number"`
}

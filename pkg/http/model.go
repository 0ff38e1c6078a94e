package http

// APIResponse is the envelope every endpoint answers with.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_DATETIME"`
	Field   string                 `json:"field,omitempty" example:"run_date"`
	Message string                 `json:"message,omitempty" example:"run_date must be a 2006-01-02 date"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

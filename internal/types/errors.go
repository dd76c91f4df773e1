package types

// Error codes used in API responses.
const (
	CodeBadRequest   = "REQUEST_400"
	CodeNotFound     = "DEVICE_404"
	CodeChannel      = "CHANNEL_404"
	CodeReadOnly     = "CHANNEL_409"
	CodeDeviceFailed = "DEVICE_502"
	CodeUnauthorized = "AUTH_401"
	CodeForbidden    = "AUTH_403"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

package domain

// Response is the result of one dispatched command.
//
// Value is the human-readable line shown to the caller on both success and
// failure. Err is set on failure and carries the typed DomainError.
type Response struct {
	Value   string
	Success bool
	Err     error
}

// OK returns a successful response.
func OK(value string) Response {
	return Response{Value: value, Success: true}
}

// Fail returns a failed response for err, using message as the display value.
func Fail(message string, err error) Response {
	return Response{Value: message, Success: false, Err: err}
}

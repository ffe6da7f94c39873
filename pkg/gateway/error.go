package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// noRowsCode is returned when a Single select finds no row
const noRowsCode = "PGRST116"

// APIError is a non-2xx response from the backend
type APIError struct {
	Code       string
	Message    string
	Details    string
	Hint       string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s (details: %s)", e.StatusCode, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s: %s", e.StatusCode, e.Code, e.Message)
}

// HTTPStatus returns the response status code
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// errorBody covers the row API ({code,message,details,hint}) and the auth API ({error,error_description} or {msg})
type errorBody struct {
	Code             interface{} `json:"code"`
	Message          string      `json:"message"`
	Details          interface{} `json:"details"`
	Hint             string      `json:"hint"`
	Error            string      `json:"error"`
	ErrorDescription string      `json:"error_description"`
	Msg              string      `json:"msg"`
	ErrorCode        string      `json:"error_code"`
}

// ParseError builds an APIError from a failed response
func ParseError(resp *resty.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode()}

	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		apiErr.Code = stringify(body.Code)
		apiErr.Message = firstNonEmpty(body.Message, body.ErrorDescription, body.Msg, body.Error)
		apiErr.Details = stringify(body.Details)
		apiErr.Hint = body.Hint
		if apiErr.Code == "" || apiErr.Code == fmt.Sprint(resp.StatusCode()) {
			apiErr.Code = firstNonEmpty(body.ErrorCode, body.Error, apiErr.Code)
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = string(resp.Body())
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode())
	}
	if apiErr.Code == "" {
		apiErr.Code = "unknown_error"
	}
	return apiErr
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%d", int(t))
	default:
		return fmt.Sprint(t)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsUnauthorized checks if error is due to missing/invalid authentication
func IsUnauthorized(err error) bool {
	return statusOf(err) == http.StatusUnauthorized
}

// IsForbidden checks if error is a permission or row-level-security rejection
func IsForbidden(err error) bool {
	return statusOf(err) == http.StatusForbidden
}

// IsNotFound checks if error is due to resource not found
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsNoRows checks if a Single select matched nothing
func IsNoRows(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == noRowsCode || apiErr.StatusCode == http.StatusNotAcceptable
}

// IsConflict checks if error is a unique or foreign key violation
func IsConflict(err error) bool {
	return statusOf(err) == http.StatusConflict
}

// IsServerError checks if error is due to server error (5xx)
func IsServerError(err error) bool {
	return statusOf(err) >= 500
}

// CheckResponse checks if response is successful and returns error if not
func CheckResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return ParseError(resp)
	}
	return nil
}

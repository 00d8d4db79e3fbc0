package errors

import (
	"encoding/json"
	"net/http"

	gferrors "github.com/fulmenhq/gofulmen/errors"
)

// ErrorBody is the payload inside the "error" member of an error response.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the JSON envelope written for every failed request.
type HTTPErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewEnvelope builds the error envelope for app. The request id travels as
// the correlation id.
func NewEnvelope(app *AppError, requestID string) *gferrors.ErrorEnvelope {
	envelope := gferrors.NewErrorEnvelope(app.Code, app.Message)
	if requestID != "" {
		envelope = envelope.WithCorrelationID(requestID)
	}
	if len(app.Details) > 0 {
		envelope = envelope.WithDetails(app.Details)
	}
	return envelope
}

// ResponseFromEnvelope flattens envelope into the wire response. Context
// entries and details share the details object; details win on conflict.
func ResponseFromEnvelope(envelope *gferrors.ErrorEnvelope) HTTPErrorResponse {
	body := ErrorBody{
		Code:      envelope.Code,
		Message:   envelope.Message,
		RequestID: envelope.CorrelationID,
	}
	if len(envelope.Context) > 0 || len(envelope.Details) > 0 {
		body.Details = make(map[string]any, len(envelope.Context)+len(envelope.Details))
		for k, v := range envelope.Context {
			body.Details[k] = v
		}
		for k, v := range envelope.Details {
			body.Details[k] = v
		}
	}
	return HTTPErrorResponse{Error: body}
}

// WriteEnvelope writes envelope as a JSON error response with the given status.
func WriteEnvelope(w http.ResponseWriter, status int, envelope *gferrors.ErrorEnvelope) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ResponseFromEnvelope(envelope))
}

// RespondWithError classifies err and writes the matching envelope. The
// request id of r is echoed in the body.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	app := Classify(err)
	if app == nil {
		app = New(http.StatusInternalServerError, CodeInternal, "internal server error")
	}
	var requestID string
	if r != nil {
		requestID = RequestIDFromContext(r.Context())
	}
	WriteEnvelope(w, app.Status, NewEnvelope(app, requestID))
}

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/leafsii/postboard-backend/internal/posts"
)

const maxBodyBytes = 1 << 20

// failure is an error as the outside world sees it. Store text never
// reaches Message.
type failure struct {
	Status  int
	Code    string
	RPCCode int
	Message string
	Field   string
}

func describe(err error) failure {
	var ve *posts.ValidationError
	if errors.As(err, &ve) {
		f := failure{
			Status:  http.StatusBadRequest,
			Code:    CodeValidation,
			RPCCode: JSONRPCInvalidParams,
			Message: ve.Error(),
			Field:   ve.Field,
		}
		if ve.Field == "id" {
			f.Code = CodeInvalidID
		}
		return f
	}

	switch posts.Classify(err) {
	case posts.ErrValidation:
		return failure{http.StatusBadRequest, CodeValidation, JSONRPCInvalidParams, "invalid request", ""}
	case posts.ErrNotFound:
		return failure{http.StatusNotFound, CodeNotFound, JSONRPCNotFound, "post not found", ""}
	case posts.ErrConflict:
		return failure{http.StatusConflict, CodeConflict, JSONRPCConflict, "the write conflicts with existing data", ""}
	case posts.ErrTransient:
		return failure{http.StatusServiceUnavailable, CodeUnavailable, JSONRPCUnavailable, "service temporarily unavailable", ""}
	default:
		return failure{http.StatusInternalServerError, CodeInternal, JSONRPCInternalError, "internal server error", ""}
	}
}

// decodeJSON reads exactly one JSON value into dst, rejecting unknown
// fields. Failures come back as *posts.ValidationError.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return decodeStrict(r.Body, dst)
}

func decodeStrict(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &posts.ValidationError{Message: "request body must contain a single JSON object"}
	}
	return nil
}

// decodeParams decodes RPC params. Absent params decode as an empty object.
func decodeParams(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	return decodeStrict(bytes.NewReader(raw), dst)
}

func decodeError(err error) error {
	var (
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
		maxBytesErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &syntaxErr):
		return &posts.ValidationError{Message: fmt.Sprintf("malformed JSON at position %d", syntaxErr.Offset)}
	case errors.Is(err, io.ErrUnexpectedEOF):
		return &posts.ValidationError{Message: "malformed JSON"}
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			return &posts.ValidationError{Message: "request body must be a JSON object"}
		}
		return &posts.ValidationError{Field: field, Message: "must be of type " + jsonType(typeErr.Type.Kind().String())}
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return &posts.ValidationError{Field: field, Message: "unknown field"}
	case errors.Is(err, io.EOF):
		return &posts.ValidationError{Message: "request body is required"}
	case errors.As(err, &maxBytesErr):
		return &posts.ValidationError{Message: fmt.Sprintf("request body must not exceed %d bytes", maxBytesErr.Limit)}
	default:
		return &posts.ValidationError{Message: "invalid request body"}
	}
}

func jsonType(kind string) string {
	switch kind {
	case "string":
		return "string"
	case "bool":
		return "boolean"
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64", "float32", "float64":
		return "number"
	case "struct", "map":
		return "object"
	case "slice", "array":
		return "array"
	default:
		return kind
	}
}

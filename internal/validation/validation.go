package validation

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"sort"

	"dgit/internal/errors"
)

type Validator interface {
	Validate() error
}

// DecodeRequest reads a JSON body into v and runs its Validate method when it
// has one.
func DecodeRequest(r *http.Request, v any) error {
	return decode(r, v, false)
}

// DecodeOptionalRequest is DecodeRequest for endpoints whose body may be
// omitted. An empty body, chunked or not, leaves v untouched.
func DecodeOptionalRequest(r *http.Request, v any) error {
	return decode(r, v, true)
}

func decode(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && stderrors.Is(err, io.EOF) {
			return nil
		}
		return errors.ValidationError("invalid request body", err.Error())
	}

	if val, ok := v.(Validator); ok {
		if err := val.Validate(); err != nil {
			var apiErr *errors.Error
			if stderrors.As(err, &apiErr) {
				return apiErr
			}
			return errors.ValidationError(err.Error(), nil)
		}
	}
	return nil
}

// Required rejects empty values. The details list the missing fields.
func Required(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.ValidationError("missing required fields", missing)
	}
	return nil
}

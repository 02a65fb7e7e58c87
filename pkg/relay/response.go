package relay

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/twinmind/pkg/model"
)

// Response is the raw answer of the memory service
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
}

// OK returns true for 2xx status codes
func (x *Response) OK() bool {
	return x.StatusCode >= 200 && x.StatusCode < 300
}

// StatusText returns the reason phrase of the response, e.g. "Not Found"
func (x *Response) StatusText() string {
	text := strings.TrimSpace(strings.TrimPrefix(x.Status, strconv.Itoa(x.StatusCode)))
	if text == "" {
		text = http.StatusText(x.StatusCode)
	}
	return text
}

// errorDetail decodes an error body for diagnostics. It returns nil when
// the body is empty or not JSON.
func (x *Response) errorDetail() any {
	if len(bytes.TrimSpace(x.Body)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(x.Body, &v); err != nil {
		return nil
	}
	return v
}

// displayText extracts the text to show from a successful response body.
// The structured variant's search answer displays its memories list; any
// other body displays its "response" field when present, or the whole
// body serialized.
func displayText(variant model.Variant, op model.Operation, body []byte) (string, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return "", goerr.Wrap(err, "failed to decode response body")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return compact(body)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", goerr.Wrap(err, "failed to decode response fields")
	}

	if variant == model.VariantStructured && op == model.OperationSearch {
		if raw, ok := fields["memories"]; ok {
			return compact(raw)
		}
	}

	switch resp := obj["response"].(type) {
	case nil:
	case string:
		if resp != "" {
			return resp, nil
		}
	default:
		return compact(fields["response"])
	}

	return compact(body)
}

func compact(raw []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", goerr.Wrap(err, "failed to compact JSON")
	}
	return buf.String(), nil
}

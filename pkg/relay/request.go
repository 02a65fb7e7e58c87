package relay

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/twinmind/pkg/model"
)

// QueryParam is a single query parameter. Request keeps them as a slice so
// the encoded order is the order they were added.
type QueryParam struct {
	Key   string
	Value string
}

// Request is an outbound call to the memory service before credentials
// are attached. Path is relative to the configured base URL.
type Request struct {
	Method string
	Path   string
	Query  []QueryParam
	Body   []byte
}

// URL joins baseURL, the request path and the encoded query
func (x *Request) URL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/") + x.Path
	if len(x.Query) == 0 {
		return u
	}

	params := make([]string, 0, len(x.Query))
	for _, q := range x.Query {
		params = append(params, encodeComponent(q.Key)+"="+encodeComponent(q.Value))
	}
	return u + "?" + strings.Join(params, "&")
}

// encodeComponent percent-encodes s for use in a query string. Spaces
// become %20 rather than '+'.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// builder turns an operation into a Request for one backend variant
type builder interface {
	build(op model.Operation, userID, text string) (*Request, error)
}

func newBuilder(v model.Variant) (builder, error) {
	switch v {
	case model.VariantSimple:
		return &simpleBuilder{}, nil
	case model.VariantStructured:
		return &structuredBuilder{}, nil
	default:
		return nil, goerr.Wrap(model.ErrInvalidVariant, "no request builder", goerr.V("variant", v))
	}
}

const (
	simpleStorePath      = "/memory"
	simpleSearchPath     = "/memory/ask"
	structuredStorePath  = "/add_memory"
	structuredSearchPath = "/search_memory"
)

type simpleStoreBody struct {
	User string `json:"user"`
	Data string `json:"data"`
}

type simpleBuilder struct{}

func (x *simpleBuilder) build(op model.Operation, userID, text string) (*Request, error) {
	switch op {
	case model.OperationStore:
		body, err := json.Marshal(simpleStoreBody{User: userID, Data: text})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal store body")
		}
		return &Request{
			Method: http.MethodPost,
			Path:   simpleStorePath,
			Body:   body,
		}, nil

	case model.OperationSearch:
		return NewAskRequest(text, userID), nil

	default:
		return nil, op.Validate()
	}
}

// NewAskRequest builds the simple variant search call. It does not check
// its arguments so the intermediary can pass caller input through as is.
func NewAskRequest(query, user string) *Request {
	return &Request{
		Method: http.MethodGet,
		Path:   simpleSearchPath,
		Query: []QueryParam{
			{Key: "query", Value: query},
			{Key: "user", Value: user},
		},
	}
}

// NewStoreRequest builds the simple variant store call with a body that is
// sent without modification.
func NewStoreRequest(body []byte) *Request {
	return &Request{
		Method: http.MethodPost,
		Path:   simpleStorePath,
		Body:   body,
	}
}

type structuredStoreBody struct {
	Memory []string `json:"memory"`
}

type structuredSearchBody struct {
	Keywords []string `json:"keywords"`
}

type structuredBuilder struct{}

func (x *structuredBuilder) build(op model.Operation, userID, text string) (*Request, error) {
	var (
		path string
		v    any
	)

	switch op {
	case model.OperationStore:
		path = structuredStorePath
		v = structuredStoreBody{Memory: []string{text}}

	case model.OperationSearch:
		path = structuredSearchPath
		v = structuredSearchBody{Keywords: tokenize(text)}

	default:
		return nil, op.Validate()
	}

	body, err := json.Marshal(v)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal request body", goerr.V("operation", op))
	}

	return &Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
	}, nil
}

// tokenize splits text on whitespace. It never returns nil so an empty
// search encodes as [] instead of null.
func tokenize(text string) []string {
	keywords := strings.Fields(text)
	if keywords == nil {
		return []string{}
	}
	return keywords
}

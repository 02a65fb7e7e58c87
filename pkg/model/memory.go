package model

import (
	"strings"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvalidOperation = goerr.New("invalid memory operation")
	ErrInvalidVariant   = goerr.New("invalid backend variant")
)

type RequestID string

// NewRequestID generates a new unique RequestID
func NewRequestID() RequestID {
	return RequestID(uuid.New().String())
}

// Operation is what the caller wants to do with a memory
type Operation string

const (
	// OperationStore persists text under a user
	OperationStore Operation = "store"
	// OperationSearch retrieves memories of a user matching the text
	OperationSearch Operation = "search"
)

// Validate checks if the operation is valid
func (x Operation) Validate() error {
	switch x {
	case OperationStore, OperationSearch:
		return nil
	default:
		return goerr.Wrap(ErrInvalidOperation, "unknown operation", goerr.V("operation", x))
	}
}

// Variant selects the contract of the remote memory service
type Variant string

const (
	// VariantSimple is the {user, data} / ask?query= memory service
	VariantSimple Variant = "simple"
	// VariantStructured is the add_memory / search_memory service
	VariantStructured Variant = "structured"
)

// ParseVariant converts a case-insensitive name into a Variant. An empty
// name selects VariantSimple.
func ParseVariant(s string) (Variant, error) {
	if s == "" {
		return VariantSimple, nil
	}
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	if err := v.Validate(); err != nil {
		return "", err
	}
	return v, nil
}

// Validate checks if the variant is valid
func (x Variant) Validate() error {
	switch x {
	case VariantSimple, VariantStructured:
		return nil
	default:
		return goerr.Wrap(ErrInvalidVariant, "unknown variant",
			goerr.V("variant", x),
			goerr.V("supported", []Variant{VariantSimple, VariantStructured}))
	}
}

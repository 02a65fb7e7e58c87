package memory

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/m-mizutani/twinmind/pkg/interfaces"
	"github.com/m-mizutani/twinmind/pkg/model"
)

// Progress shows that a call is in flight
type Progress interface {
	Start()
	Stop()
}

type nopProgress struct{}

func (nopProgress) Start() {}
func (nopProgress) Stop()  {}

// UseCase provides memory operations for the presentation layer
type UseCase struct {
	relay    interfaces.MemoryRelay
	output   io.Writer
	progress Progress
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithOutput sets the output writer
func WithOutput(w io.Writer) Option {
	return func(uc *UseCase) {
		uc.output = w
	}
}

// WithProgress sets the indicator shown while a call is in flight. A nil
// Progress keeps the default, which shows nothing.
func WithProgress(p Progress) Option {
	return func(uc *UseCase) {
		if p != nil {
			uc.progress = p
		}
	}
}

// New creates a new memory UseCase instance
func New(relay interfaces.MemoryRelay, opts ...Option) *UseCase {
	uc := &UseCase{
		relay:    relay,
		output:   os.Stdout,
		progress: nopProgress{},
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// Store saves text as a memory of userID and prints the service answer
func (u *UseCase) Store(ctx context.Context, userID, text string) error {
	return u.print(u.execute(ctx, model.OperationStore, userID, text))
}

// Search queries memories of userID and prints the service answer
func (u *UseCase) Search(ctx context.Context, userID, text string) error {
	return u.print(u.execute(ctx, model.OperationSearch, userID, text))
}

func (u *UseCase) execute(ctx context.Context, op model.Operation, userID, text string) *model.Result {
	u.progress.Start()
	defer u.progress.Stop()
	return u.relay.Execute(ctx, op, userID, text)
}

// print writes the display text on success. A failure is returned for the
// caller to render.
func (u *UseCase) print(result *model.Result) error {
	if err := result.Err(); err != nil {
		return err
	}
	fmt.Fprintln(u.output, result.Success.DisplayText)
	return nil
}

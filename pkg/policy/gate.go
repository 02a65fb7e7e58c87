package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/twinmind/pkg/utils/logging"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

const gateQuery = "data.relay.allow"

// Input is what a gate policy sees as `input`
type Input struct {
	Operation string `json:"operation"`
	User      string `json:"user"`
	Query     string `json:"query,omitempty"`
	RemoteIP  string `json:"remote_ip"`
}

// Gate decides whether the relay server forwards a request. A nil Gate
// allows everything.
type Gate struct {
	query *rego.PreparedEvalQuery
}

// printHook routes Rego print() output to the logger in ctx
type printHook struct {
	ctx context.Context
}

func (h *printHook) Print(pctx print.Context, message string) error {
	logging.From(h.ctx).Debug("[rego] "+message, "location", fmt.Sprint(pctx.Location))
	return nil
}

// Load reads all .rego files in dir and prepares the gate query. It
// returns nil without error when dir is empty or has no policy files.
func Load(ctx context.Context, dir string) (*Gate, error) {
	if dir == "" {
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", dir))
	}
	if len(files) == 0 {
		return nil, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+2)
	options = append(options, rego.Query(gateQuery), rego.EnablePrintStatements(true))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare gate query", goerr.V("query", gateQuery))
	}

	return &Gate{query: &prepared}, nil
}

// Allow evaluates the gate for input. An undefined or non-boolean result
// denies the request.
func (x *Gate) Allow(ctx context.Context, input Input) (bool, error) {
	if x == nil {
		return true, nil
	}

	rs, err := x.query.Eval(ctx,
		rego.EvalInput(input),
		rego.EvalPrintHook(&printHook{ctx: ctx}),
	)
	if err != nil {
		return false, goerr.Wrap(err, "failed to evaluate gate policy")
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}

	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, nil
	}
	return allowed, nil
}

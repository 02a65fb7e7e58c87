package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/twinmind/pkg/model"
)

const shellHelp = `Commands:
  /user <id>       set the user ID
  /store <text>    add a memory
  /search <text>   search memories (plain text without a command also searches)
  /help            show this help
  /exit            quit`

// Shell interprets the lines of an interactive session. It keeps the
// current user ID between lines.
type Shell struct {
	uc     *UseCase
	userID string
}

// NewShell creates a Shell starting with userID, which may be empty
func (u *UseCase) NewShell(userID string) *Shell {
	return &Shell{
		uc:     u,
		userID: userID,
	}
}

// UserID returns the current user ID
func (x *Shell) UserID() string {
	return x.userID
}

// Prompt returns the prompt for the next line
func (x *Shell) Prompt() string {
	if x.userID == "" {
		return "> "
	}
	return "[" + x.userID + "]> "
}

// Handle processes one input line and reports whether the session should
// continue.
func (x *Shell) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}

	if !strings.HasPrefix(line, "/") {
		x.run(ctx, model.OperationSearch, line)
		return true
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/exit", "/quit":
		return false

	case "/help":
		fmt.Fprintln(x.uc.output, shellHelp)

	case "/user":
		if arg == "" {
			if x.userID == "" {
				fmt.Fprintln(x.uc.output, "User ID is not set")
			} else {
				fmt.Fprintf(x.uc.output, "User ID: %s\n", x.userID)
			}
			return true
		}
		x.userID = arg
		fmt.Fprintf(x.uc.output, "User ID set to %s\n", x.userID)

	case "/store":
		x.run(ctx, model.OperationStore, arg)

	case "/search":
		x.run(ctx, model.OperationSearch, arg)

	default:
		fmt.Fprintf(x.uc.output, "Unknown command: %s (type /help)\n", cmd)
	}

	return true
}

func (x *Shell) run(ctx context.Context, op model.Operation, text string) {
	result := x.uc.execute(ctx, op, x.userID, text)
	if !result.OK() {
		fmt.Fprintf(x.uc.output, "Error: %s\n", result.Text())
		return
	}
	fmt.Fprintf(x.uc.output, "Response: %s\n", result.Text())
}

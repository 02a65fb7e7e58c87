package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/twinmind/pkg/model"
	"github.com/m-mizutani/twinmind/pkg/policy"
	"github.com/m-mizutani/twinmind/pkg/relay"
	"github.com/m-mizutani/twinmind/pkg/utils/logging"
)

const (
	msgProcessingFailed = "An error occurred while processing your request"
	msgDenied           = "request denied by policy"
)

/*
Server is the trusted intermediary between browser callers and a simple
variant memory service. It attaches the credential held by its Relay so
callers never see it.
*/
type Server struct {
	app    *fiber.App
	relay  *relay.Relay
	gate   *policy.Gate
	logger *slog.Logger
}

// Option is a functional option for Server
type Option func(*Server)

// WithGate sets the policy gate evaluated for every forwarded request
func WithGate(gate *policy.Gate) Option {
	return func(x *Server) {
		x.gate = gate
	}
}

// WithLogger sets the logger of request handlers
func WithLogger(logger *slog.Logger) Option {
	return func(x *Server) {
		x.logger = logger
	}
}

// New creates a Server forwarding to the memory service of r
func New(r *relay.Relay, opts ...Option) (*Server, error) {
	if r.Variant() != model.VariantSimple {
		return nil, goerr.New("relay server supports only the simple variant",
			goerr.V("variant", r.Variant()))
	}

	x := &Server{
		app: fiber.New(fiber.Config{
			AppName:      "TwinMind-Relay",
			ServerHeader: "TwinMind-Relay",
		}),
		relay:  r,
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}

	x.app.Use(cors.New())
	x.app.Get("/health", x.handleHealth)
	x.app.Post("/api/memory", x.handleStore)
	x.app.Get("/api/memory/ask", x.handleAsk)

	return x, nil
}

// App returns the underlying fiber application
func (x *Server) App() *fiber.App {
	return x.app
}

// Listen serves on addr until Shutdown is called
func (x *Server) Listen(addr string) error {
	x.logger.Info("relay server listening", "addr", addr, "upstream", x.relay.Config())
	if err := x.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return goerr.Wrap(err, "relay server stopped", goerr.V("addr", addr))
	}
	return nil
}

// Shutdown stops the server gracefully
func (x *Server) Shutdown(ctx context.Context) error {
	if err := x.app.ShutdownWithContext(ctx); err != nil {
		return goerr.Wrap(err, "failed to shutdown relay server")
	}
	return nil
}

func (x *Server) handleHealth(c fiber.Ctx) error {
	return c.SendString("OK")
}

type storePayload struct {
	User string `json:"user"`
	Data string `json:"data"`
}

func (x *Server) handleStore(c fiber.Ctx) error {
	ctx := x.context(c)

	// fasthttp reuses the body buffer after the handler returns
	body := bytes.Clone(c.Body())

	var payload storePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		logging.From(ctx).Debug("store body is not a JSON object", "error", err)
	}

	if denied, err := x.deny(ctx, c, policy.Input{
		Operation: string(model.OperationStore),
		User:      payload.User,
	}); denied || err != nil {
		return err
	}

	resp, err := x.relay.Do(ctx, relay.NewStoreRequest(body))
	return x.respond(ctx, c, resp, err)
}

func (x *Server) handleAsk(c fiber.Ctx) error {
	ctx := x.context(c)
	query := c.Query("query")
	user := c.Query("user")

	if denied, err := x.deny(ctx, c, policy.Input{
		Operation: string(model.OperationSearch),
		User:      user,
		Query:     query,
	}); denied || err != nil {
		return err
	}

	resp, err := x.relay.Do(ctx, relay.NewAskRequest(query, user))
	return x.respond(ctx, c, resp, err)
}

func (x *Server) context(c fiber.Ctx) context.Context {
	return logging.With(c.RequestCtx(), x.logger.With("method", c.Method(), "path", c.Path()))
}

// deny evaluates the gate and writes the rejection when the request may
// not be forwarded.
func (x *Server) deny(ctx context.Context, c fiber.Ctx, input policy.Input) (bool, error) {
	input.RemoteIP = c.IP()

	allowed, err := x.gate.Allow(ctx, input)
	if err != nil {
		logging.From(ctx).Error("failed to evaluate gate", "error", err)
		return true, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msgProcessingFailed})
	}
	if !allowed {
		logging.From(ctx).Warn("request denied by policy", "user", input.User, "remote_ip", input.RemoteIP)
		return true, c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": msgDenied})
	}
	return false, nil
}

// respond writes the upstream body as is on success. Every failure is
// reported to the caller as a 500 with a fixed message.
func (x *Server) respond(ctx context.Context, c fiber.Ctx, resp *relay.Response, err error) error {
	logger := logging.From(ctx)

	switch {
	case err != nil:
		logger.Error("failed to reach memory service", "error", err)
	case !resp.OK():
		logger.Error("memory service returned error", "status", resp.StatusCode, "body", string(resp.Body))
	case !json.Valid(resp.Body):
		logger.Error("memory service returned malformed body", "status", resp.StatusCode)
	default:
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(fiber.StatusOK).Send(resp.Body)
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msgProcessingFailed})
}

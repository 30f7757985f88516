// Package http is the transport adapter over the room service: route
// wiring, schema validation of inbound payloads, caller identity
// extraction and the mapping of core outcomes to status codes. No room
// semantics live here.
package http

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/carladovalle/bate-papo-uol-api/domain"
	"github.com/carladovalle/bate-papo-uol-api/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

// OwnershipPolicy decides whether a caller may edit or delete a message.
// The core itself is ownership-agnostic; the policy is installed here.
type OwnershipPolicy func(caller string, msg domain.Message) error

// SenderOnlyPolicy allows a caller to touch only messages they sent.
func SenderOnlyPolicy(caller string, msg domain.Message) error {
	if msg.From != caller {
		return fmt.Errorf("message %s does not belong to %s", msg.ID, caller)
	}
	return nil
}

type Server struct {
	log         *slog.Logger
	app         *fiber.App
	rooms       services.IRoomService
	validate    *validator.Validate
	policy      OwnershipPolicy
	searchLimit int
}

func NewServer(log *slog.Logger, rooms services.IRoomService, policy OwnershipPolicy, searchLimit int) *Server {
	s := &Server{
		log:         log,
		app:         fiber.New(),
		rooms:       rooms,
		validate:    validator.New(),
		policy:      policy,
		searchLimit: searchLimit,
	}

	s.app.Use(cors.New())
	s.app.Use(logger.New())

	s.app.Post("/participants", s.joinRoom)
	s.app.Get("/participants", s.listParticipants)
	s.app.Post("/status", s.heartbeat)
	s.app.Post("/messages", s.sendMessage)
	s.app.Get("/messages", s.fetchMessages)
	s.app.Get("/messages/search", s.searchMessages)
	s.app.Put("/messages/:id", s.editMessage)
	s.app.Delete("/messages/:id", s.deleteMessage)

	return s
}

// App exposes the fiber application for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(address string) error {
	return s.app.Listen(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

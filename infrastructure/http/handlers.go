package http

import (
	"errors"
	"strconv"

	"github.com/carladovalle/bate-papo-uol-api/domain"
	apperrors "github.com/carladovalle/bate-papo-uol-api/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// callerHeader carries the caller-asserted identity. It is trusted as-is;
// authentication is out of scope.
const callerHeader = "User"

type joinRequest struct {
	Name string `json:"name" validate:"required"`
}

type messageRequest struct {
	To   string `json:"to" validate:"required"`
	Text string `json:"text" validate:"required"`
	Type string `json:"type" validate:"required,oneof=message private_message"`
}

type participantResponse struct {
	Name       string `json:"name"`
	LastStatus int64  `json:"lastStatus"`
}

type messageResponse struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
	Type string `json:"type"`
	Time string `json:"time"`
}

func (s *Server) joinRoom(c *fiber.Ctx) error {
	var req joinRequest
	if err := c.BodyParser(&req); err != nil {
		return c.SendStatus(fiber.StatusUnprocessableEntity)
	}
	if err := s.validate.Struct(req); err != nil {
		return c.SendStatus(fiber.StatusUnprocessableEntity)
	}

	p, err := s.rooms.JoinRoom(c.Context(), req.Name)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toParticipantResponse(p))
}

func (s *Server) listParticipants(c *fiber.Ctx) error {
	participants := s.rooms.ListParticipants()
	return c.JSON(lo.Map(participants, func(p domain.Participant, _ int) participantResponse {
		return toParticipantResponse(p)
	}))
}

func (s *Server) heartbeat(c *fiber.Ctx) error {
	caller := c.Get(callerHeader)
	if caller == "" {
		return c.SendStatus(fiber.StatusUnprocessableEntity)
	}
	if err := s.rooms.Heartbeat(caller); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	caller := c.Get(callerHeader)
	if caller == "" {
		return c.SendStatus(fiber.StatusUnprocessableEntity)
	}

	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.SendStatus(fiber.StatusUnprocessableEntity)
	}
	if err := s.validate.Struct(req); err != nil {
		return c.SendStatus(fiber.StatusUnprocessableEntity)
	}

	msg, err := s.rooms.SendMessage(c.Context(), domain.MessageInput{
		From: caller,
		To:   req.To,
		Text: req.Text,
		Kind: domain.Kind(req.Type),
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toMessageResponse(msg))
}

func (s *Server) fetchMessages(c *fiber.Ctx) error {
	caller := c.Get(callerHeader)
	if caller == "" {
		return c.SendStatus(fiber.StatusUnprocessableEntity)
	}

	messages, err := s.rooms.FetchMessages(c.Context(), caller, parseLimit(c.Query("limit")))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(toMessageResponses(messages))
}

func (s *Server) searchMessages(c *fiber.Ctx) error {
	caller := c.Get(callerHeader)
	if caller == "" {
		return c.SendStatus(fiber.StatusUnprocessableEntity)
	}
	query := c.Query("q")
	if query == "" {
		return c.SendStatus(fiber.StatusUnprocessableEntity)
	}

	messages, err := s.rooms.SearchMessages(c.Context(), caller, query, s.searchLimit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(toMessageResponses(messages))
}

func (s *Server) editMessage(c *fiber.Ctx) error {
	caller := c.Get(callerHeader)
	if caller == "" {
		return c.SendStatus(fiber.StatusUnprocessableEntity)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.SendStatus(fiber.StatusNotFound)
	}

	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.SendStatus(fiber.StatusUnprocessableEntity)
	}
	if err := s.validate.Struct(req); err != nil {
		return c.SendStatus(fiber.StatusUnprocessableEntity)
	}

	if err := s.authorize(c, caller, id); err != nil {
		return err
	}

	msg, err := s.rooms.EditMessage(c.Context(), id, domain.MessagePatch{
		To:   req.To,
		Text: req.Text,
		Kind: domain.Kind(req.Type),
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(toMessageResponse(msg))
}

func (s *Server) deleteMessage(c *fiber.Ctx) error {
	caller := c.Get(callerHeader)
	if caller == "" {
		return c.SendStatus(fiber.StatusUnprocessableEntity)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.SendStatus(fiber.StatusNotFound)
	}

	if err := s.authorize(c, caller, id); err != nil {
		return err
	}

	if err := s.rooms.DeleteMessage(c.Context(), id); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

// authorize loads the target message and applies the ownership policy.
// With no policy installed, any caller may touch any message.
func (s *Server) authorize(c *fiber.Ctx, caller string, id uuid.UUID) error {
	if s.policy == nil {
		return nil
	}
	msg, err := s.rooms.GetMessage(c.Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.policy(caller, msg); err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	return nil
}

// fail maps core outcomes to status codes: domain conflicts and misses are
// the caller's problem, anything else means the service is unavailable.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrNameTaken):
		return c.SendStatus(fiber.StatusConflict)
	case errors.Is(err, apperrors.ErrParticipantNotFound),
		errors.Is(err, apperrors.ErrMessageNotFound):
		return c.SendStatus(fiber.StatusNotFound)
	default:
		s.log.Error("Request failed", "path", c.Path(), "err", err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}
}

// parseLimit interprets the limit query parameter. Absent, unparseable or
// non-positive values all mean "no truncation".
func parseLimit(raw string) *int {
	if raw == "" {
		return nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return nil
	}
	return &limit
}

func toParticipantResponse(p domain.Participant) participantResponse {
	return participantResponse{
		Name:       p.Name,
		LastStatus: p.LastHeartbeat.UnixMilli(),
	}
}

func toMessageResponse(m domain.Message) messageResponse {
	return messageResponse{
		ID:   m.ID.String(),
		From: m.From,
		To:   m.To,
		Text: m.Text,
		Type: string(m.Kind),
		Time: m.DisplayTime(),
	}
}

func toMessageResponses(messages []domain.Message) []messageResponse {
	return lo.Map(messages, func(m domain.Message, _ int) messageResponse {
		return toMessageResponse(m)
	})
}

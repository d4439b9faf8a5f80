package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/prajwalprabhu/File-Chat/internal/db"
	"github.com/prajwalprabhu/File-Chat/internal/parser"
	"github.com/prajwalprabhu/File-Chat/internal/rag"
)

// ChatService is what the handlers need from rag.Service.
type ChatService interface {
	Upload(ctx context.Context, owner int64, fileName string, r io.Reader) (*db.File, error)
	ListFiles(ctx context.Context, owner int64) ([]db.File, error)
	DeleteFile(ctx context.Context, owner, fileID int64) error
	AnswerQuery(ctx context.Context, owner, chatID int64, query string) (*rag.Exchange, error)
	ListChats(ctx context.Context, owner int64) ([]db.Chat, error)
	LatestChat(ctx context.Context, owner int64) (*db.Chat, error)
	ChatMessages(ctx context.Context, owner, chatID int64) ([]db.ChatMessage, error)
	DeleteChat(ctx context.Context, owner, chatID int64) error
}

type AskParams struct {
	ChatID int64  `json:"chat_id" validate:"gte=0"`
	Query  string `json:"query" validate:"required,max=8000"`
}

type RequestHandler struct {
	svc ChatService
}

func NewRequestHandler(svc ChatService) *RequestHandler {
	return &RequestHandler{svc: svc}
}

func (h *RequestHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *RequestHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest()
	}
	// reject before the body is spooled to the service
	if !parser.Supported(fileHeader.Filename) {
		return NewError(fiber.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported file type, expected one of %s", strings.Join(parser.SupportedExtensions(), ", ")))
	}
	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	rec, err := h.svc.Upload(c.UserContext(), ownerOf(c), fileHeader.Filename, file)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

func (h *RequestHandler) HandleListFiles(c *fiber.Ctx) error {
	files, err := h.svc.ListFiles(c.UserContext(), ownerOf(c))
	if err != nil {
		return err
	}
	if files == nil {
		files = []db.File{}
	}
	return c.JSON(files)
}

func (h *RequestHandler) HandleDeleteFile(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteFile(c.UserContext(), ownerOf(c), id); err != nil {
		return notFound(err, id)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *RequestHandler) HandleAsk(c *fiber.Ctx) error {
	var params AskParams
	if err := c.BodyParser(&params); err != nil {
		return ErrBadRequest()
	}
	if err := Validate(&params); err != nil {
		return err
	}
	ex, err := h.svc.AnswerQuery(c.UserContext(), ownerOf(c), params.ChatID, params.Query)
	if err != nil {
		return err
	}
	return c.JSON(ex)
}

func (h *RequestHandler) HandleListChats(c *fiber.Ctx) error {
	chats, err := h.svc.ListChats(c.UserContext(), ownerOf(c))
	if err != nil {
		return err
	}
	if chats == nil {
		chats = []db.Chat{}
	}
	return c.JSON(chats)
}

func (h *RequestHandler) HandleLatestChat(c *fiber.Ctx) error {
	chat, err := h.svc.LatestChat(c.UserContext(), ownerOf(c))
	if err != nil {
		return err
	}
	return c.JSON(chat)
}

func (h *RequestHandler) HandleChatMessages(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	msgs, err := h.svc.ChatMessages(c.UserContext(), ownerOf(c), id)
	if err != nil {
		return notFound(err, id)
	}
	if msgs == nil {
		msgs = []db.ChatMessage{}
	}
	return c.JSON(msgs)
}

func (h *RequestHandler) HandleDeleteChat(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteChat(c.UserContext(), ownerOf(c), id); err != nil {
		return notFound(err, id)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func idParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID()
	}
	return id, nil
}

// notFound names the missing resource and id in the response.
func notFound(err error, id int64) error {
	switch {
	case errors.Is(err, db.ErrFileNotFound):
		return ErrNotFound(id, "file")
	case errors.Is(err, db.ErrChatNotFound):
		return ErrNotFound(id, "chat")
	default:
		return err
	}
}

package api

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/prajwalprabhu/File-Chat/internal/db"
	"github.com/prajwalprabhu/File-Chat/internal/embedding"
	"github.com/prajwalprabhu/File-Chat/internal/llmservice"
	"github.com/prajwalprabhu/File-Chat/internal/parser"
	"github.com/prajwalprabhu/File-Chat/internal/rag"
)

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e Error) Error() string {
	return e.Message
}

func NewError(code int, msg string) Error {
	return Error{Code: code, Message: msg}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errs map[string]string) ValidationError {
	return ValidationError{Status: fiber.StatusUnprocessableEntity, Errors: errs}
}

func ErrBadRequest() Error {
	return NewError(fiber.StatusBadRequest, "invalid request")
}

func ErrInvalidID() Error {
	return NewError(fiber.StatusBadRequest, "invalid id given")
}

func ErrUnAuthorized(msg string) Error {
	return NewError(fiber.StatusUnauthorized, msg)
}

func ErrNotFound[T any](arg T, resource string) Error {
	return NewError(fiber.StatusNotFound, fmt.Sprintf("%s with %v not found", resource, arg))
}

var validate = validator.New()

// Validate checks v against its validate tags and reports failures per field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, e := range verrs {
		fields[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return NewValidationError(fields)
}

// toError maps domain errors onto HTTP responses.
func toError(err error) Error {
	var apiErr Error
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &fiberErr):
		return NewError(fiberErr.Code, fiberErr.Message)
	case errors.Is(err, parser.ErrUnsupportedFileType):
		return NewError(fiber.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, parser.ErrEmptyDocument):
		return NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, rag.ErrInvalidFileName), errors.Is(err, rag.ErrEmptyQuery):
		return NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrChatNotFound), errors.Is(err, db.ErrFileNotFound):
		return NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, embedding.ErrEmbeddingProvider), errors.Is(err, llmservice.ErrGenerationProvider):
		return NewError(fiber.StatusBadGateway, err.Error())
	default:
		return NewError(fiber.StatusInternalServerError, "internal server error")
	}
}

func ErrorHandler(c *fiber.Ctx, err error) error {
	var valErr ValidationError
	if errors.As(err, &valErr) {
		return c.Status(valErr.Status).JSON(valErr)
	}
	apiErr := toError(err)
	evt := log.Warn()
	if apiErr.Code >= fiber.StatusInternalServerError {
		evt = log.Error()
	}
	evt.Err(err).Int("code", apiErr.Code).Str("method", c.Method()).Str("path", c.Path()).Msg("Request failed")
	return c.Status(apiErr.Code).JSON(apiErr)
}

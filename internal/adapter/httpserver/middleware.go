package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/correlation"
	apperrors "github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/errors"
)

// correlationMiddleware reuses a caller-supplied correlation ID or mints one, and echoes it back.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(correlation.HeaderName))
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.HeaderName, id)
		return next(c)
	}
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			if _, ok := errors.AsType[*echo.HTTPError](err); ok {
				return err
			}

			return HandleError(c, err)
		}
	}
}

// httpErrorHandler renders errors raised by echo itself (routing, CSRF, body limit)
// in the same shape as application errors.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	structuredErr := apperrors.AsStructuredError(err)
	if httpErr, ok := errors.AsType[*echo.HTTPError](err); ok {
		structuredErr = WrapHTTPError(httpErr)
	}
	if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
		slog.Error("Failed to write error response", "error", err)
	}
}

// toStructuredError maps domain sentinels onto HTTP error kinds. Anything unrecognised
// is an internal error.
func toStructuredError(err error) *apperrors.Error {
	if structuredErr, ok := errors.AsType[*apperrors.Error](err); ok {
		return structuredErr
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return apperrors.ValidationError(err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		return apperrors.UnauthorizedError("invalid email or password")
	case errors.Is(err, domain.ErrBusinessNotFound),
		errors.Is(err, domain.ErrStaffNotFound),
		errors.Is(err, domain.ErrCustomerNotFound),
		errors.Is(err, domain.ErrOfferingNotFound),
		errors.Is(err, domain.ErrBookingNotFound),
		errors.Is(err, domain.ErrPackNotFound),
		errors.Is(err, domain.ErrVersionNotFound),
		errors.Is(err, domain.ErrPinNotFound),
		errors.Is(err, domain.ErrNoPackVersion),
		errors.Is(err, domain.ErrSupportCaseNotFound),
		errors.Is(err, domain.ErrSettingNotFound):
		return apperrors.NotFoundError(err.Error())
	case errors.Is(err, domain.ErrBusinessExists),
		errors.Is(err, domain.ErrStaffExists),
		errors.Is(err, domain.ErrBookingConflict),
		errors.Is(err, domain.ErrDuplicateBooking),
		errors.Is(err, domain.ErrPackExists),
		errors.Is(err, domain.ErrVersionConflict),
		errors.Is(err, domain.ErrDraftExists),
		errors.Is(err, domain.ErrRolloutInProgress),
		errors.Is(err, domain.ErrInvalidTransition):
		return apperrors.ConflictError(err.Error())
	}

	return apperrors.AsStructuredError(err)
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if st := currentStaff(c); st != nil {
		attrs = append(attrs, "staff_id", st.ID)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeUnauthorized, apperrors.TypeForbidden:
		slog.InfoContext(ctx, "Access denied", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeRateLimited:
		slog.WarnContext(ctx, "Rate limited", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

func HandleError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	structuredErr := toStructuredError(err)
	logError(c, structuredErr)
	if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

func WrapHTTPError(httpErr *echo.HTTPError) *apperrors.Error {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		message = msg
	}

	var errType apperrors.ErrorType
	switch httpErr.Code {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		errType = apperrors.TypeValidation
	case http.StatusUnauthorized:
		errType = apperrors.TypeUnauthorized
	case http.StatusForbidden:
		errType = apperrors.TypeForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		errType = apperrors.TypeNotFound
	case http.StatusConflict:
		errType = apperrors.TypeConflict
	case http.StatusTooManyRequests:
		errType = apperrors.TypeRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		errType = apperrors.TypeExternal
	default:
		errType = apperrors.TypeInternal
	}

	err := &apperrors.Error{
		Type:    errType,
		Message: message,
		Context: make(map[string]any),
	}

	if httpErr.Internal != nil {
		err.Cause = httpErr.Internal
	}

	return err
}

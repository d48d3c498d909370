package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/nandutech/sifen-api/internal/application/dto"
	"github.com/nandutech/sifen-api/internal/domain/siferr"
)

// respondError mapea los errores tipados del dominio a estados HTTP.
func respondError(c *fiber.Ctx, err error) error {
	var validation *siferr.ValidationError
	if errors.As(err, &validation) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Code:    "VALIDATION",
			Message: validation.Error(),
		})
	}

	var transition *siferr.InvalidStateTransitionError
	if errors.As(err, &transition) {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Code:    "INVALID_TRANSITION",
			Message: transition.Error(),
		})
	}

	var rule *siferr.InvalidBusinessRuleError
	if errors.As(err, &rule) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{
			Code:    "BUSINESS_RULE",
			Message: rule.Error(),
		})
	}

	var rangeConflict *siferr.RangeConflictError
	if errors.As(err, &rangeConflict) {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Code:    "RANGE_CONFLICT",
			Message: rangeConflict.Error(),
		})
	}

	var rejected *siferr.RemoteRejectedError
	if errors.As(err, &rejected) {
		fields := make([]dto.FieldErrorDTO, 0, len(rejected.Errors))
		for _, fe := range rejected.Errors {
			fields = append(fields, dto.FieldErrorDTO{Code: fe.Code, Message: fe.Message, Field: fe.Field})
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{
			Code:    "REJECTED",
			Message: rejected.Error(),
			Fields:  fields,
		})
	}

	var transport *siferr.TransportError
	if errors.As(err, &transport) {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{
			Code:    "TRANSPORT",
			Message: transport.Error(),
		})
	}

	var certErr *siferr.CertificateError
	if errors.As(err, &certErr) {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Code:    "CERTIFICATE",
			Message: certErr.Error(),
		})
	}

	var signErr *siferr.SigningError
	if errors.As(err, &signErr) {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Code:    "SIGNING",
			Message: signErr.Error(),
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
		Code:    "INTERNAL",
		Message: err.Error(),
	})
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/api/dto"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/service"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

// BulkHandler exposes the admin bulk import endpoints.
type BulkHandler struct {
	bulk *service.BulkService
}

// NewBulkHandler constructs handler.
func NewBulkHandler(bulkService *service.BulkService) *BulkHandler {
	return &BulkHandler{bulk: bulkService}
}

// Check handles POST /users/bulk/check.
func (h *BulkHandler) Check(c *fiber.Ctx) error {
	var req dto.BulkRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	checked, err := h.bulk.Check(c.UserContext(), req.Users)
	if err != nil {
		return mapServiceError(err)
	}
	items := make([]dto.CheckResultResponse, 0, len(checked))
	for _, cc := range checked {
		items = append(items, checkResult(cc))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Import handles POST /users/bulk. Records that fail are reported with
// created=false; the request itself only fails on invalid input.
func (h *BulkHandler) Import(c *fiber.Ctx) error {
	var req dto.BulkRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	results, err := h.bulk.Import(c.UserContext(), req.Users)
	if err != nil {
		return mapServiceError(err)
	}

	created := 0
	items := make([]dto.BatchResultResponse, 0, len(results))
	for _, r := range results {
		if r.Created {
			created++
		}
		items = append(items, dto.BatchResultResponse{
			UserResponse: userResponse(r.User),
			Created:      r.Created,
			Error:        r.Error,
		})
	}
	return c.JSON(fiber.Map{
		"data": items,
		"meta": fiber.Map{"total": len(items), "created": created, "failed": len(items) - created},
	})
}

func checkResult(cc domain.CheckedCandidate) dto.CheckResultResponse {
	resp := dto.CheckResultResponse{
		Username:     cc.Candidate.Username,
		Email:        cc.Candidate.Email,
		Firstname:    cc.Candidate.Firstname,
		Lastname:     cc.Candidate.Lastname,
		MobileNumber: cc.Candidate.MobileNumber,
		Conflicts:    dto.Conflicts{Username: cc.Verdict.Username, Email: cc.Verdict.Email},
	}
	if reason := cc.Reason(); reason != "" {
		resp.Error = &reason
	}
	return resp
}

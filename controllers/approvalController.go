package controllers

import (
	"syncledger-backend/ledger"
	"syncledger-backend/middlewares"
	"syncledger-backend/utils"

	"github.com/gofiber/fiber/v2"
)

// ApprovalController exposes the approval ledger over HTTP. The ledger
// handle is injected once at startup, so tests run the same handlers
// against a simulated backend.
type ApprovalController struct {
	Ledger *ledger.Ledger
}

type createApprovalDTO struct {
	ApprovalID  string `json:"approval_id"`
	RequestID   string `json:"request_id" validate:"required"`
	RequesterID string `json:"requester_id" validate:"required"`
	OwnerID     string `json:"owner_id" validate:"required"`
	RequestType string `json:"request_type" validate:"required,oneof=gcp excel"`
	LicenceKey  string `json:"licence_key"`
	Action      string `json:"action" validate:"omitempty,oneof=approve reject"`
}

// CreateApproval records an approval. A "reject" action is a valid no-op:
// the business decision needed no write, so the envelope reports
// recorded:false instead of an error.
func (ac *ApprovalController) CreateApproval(c *fiber.Ctx) error {
	var dto createApprovalDTO
	if err := middlewares.BindAndValidate(c, &dto); err != nil {
		return err
	}
	utils.TrimStrings(&dto)

	if dto.Action == "reject" {
		return c.JSON(fiber.Map{
			"success": true,
			"message": "no write needed",
			"data":    fiber.Map{"recorded": false},
		})
	}

	rec, receipt, err := ac.Ledger.Insert(c.Context(), ledger.RecordInput{
		ApprovalID:  dto.ApprovalID,
		RequestID:   dto.RequestID,
		RequesterID: dto.RequesterID,
		OwnerID:     dto.OwnerID,
		RequestType: dto.RequestType,
		LicenceKey:  dto.LicenceKey,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"approval_id": rec.ApprovalID,
			"recorded":    receipt.Recorded,
			"receipt":     receipt,
		},
	})
}

func (ac *ApprovalController) GetApproval(c *fiber.Ctx) error {
	rec, err := ac.Ledger.Get(c.Context(), c.Params("approvalId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": rec})
}

func (ac *ApprovalController) DeactivateApproval(c *fiber.Ctx) error {
	receipt, err := ac.Ledger.Deactivate(c.Context(), c.Params("approvalId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"approval_id": c.Params("approvalId"),
			"recorded":    receipt.Recorded,
			"receipt":     receipt,
		},
	})
}

// SearchApprovals filters the full record set. All query params are
// optional and ANDed; see ledger.Filters for the matching rules.
func (ac *ApprovalController) SearchApprovals(c *fiber.Ctx) error {
	filters := ledger.Filters{
		RequestID:   c.Query("request_id"),
		RequesterID: c.Query("requester_id"),
		OwnerID:     c.Query("owner_id"),
		RequestType: c.Query("request_type"),
		LicenceKey:  c.Query("licence_key"),
	}

	var err error
	if filters.From, err = utils.ParseTimeParam(c.Query("from")); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid 'from' filter: use unix seconds or YYYY-MM-DD")
	}
	if filters.To, err = utils.ParseTimeParam(c.Query("to")); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid 'to' filter: use unix seconds or YYYY-MM-DD")
	}
	if filters.IsActive, err = utils.ParseBoolPtr(c.Query("is_active")); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid 'is_active' filter: use true or false")
	}

	res, err := ac.Ledger.Search(c.Context(), filters)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": res})
}

func (ac *ApprovalController) CountApprovals(c *fiber.Ctx) error {
	n, err := ac.Ledger.Count(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"count": n},
	})
}

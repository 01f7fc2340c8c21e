package handler

import (
	"errors"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/segregate/internal/apperr"
	"github.com/iliyamo/segregate/internal/identity"
	"github.com/iliyamo/segregate/internal/model"
	"github.com/iliyamo/segregate/internal/policy"
	"github.com/iliyamo/segregate/internal/queue"
	"github.com/iliyamo/segregate/internal/repository"
	"github.com/iliyamo/segregate/internal/response"
	"github.com/iliyamo/segregate/internal/service"
)

// ReportHandler serves /api/reports. Every method runs behind the gate and
// receives the verified identity; ownership always comes from it, never
// from the request body.
type ReportHandler struct {
	Reports  *repository.ReportRepo
	Policy   *policy.Policy
	Notifier service.Notifier
	Logger   *zap.Logger
}

func NewReportHandler(reports *repository.ReportRepo, pol *policy.Policy, n service.Notifier, logger *zap.Logger) *ReportHandler {
	if n == nil {
		n = service.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{Reports: reports, Policy: pol, Notifier: n, Logger: logger}
}

type createReportReq struct {
	Location           string        `json:"location" validate:"required,min=3,max=255"`
	Description        string        `json:"description" validate:"max=1000"`
	SegregationQuality model.Quality `json:"segregationQuality" validate:"omitempty,oneof=excellent good fair poor"`
	PhotoURL           string        `json:"photoUrl" validate:"omitempty,http_url,max=1024"`
}

type updateReportReq struct {
	Location           *string        `json:"location" validate:"omitempty,min=3,max=255"`
	Description        *string        `json:"description" validate:"omitempty,max=1000"`
	SegregationQuality *model.Quality `json:"segregationQuality" validate:"omitempty,oneof=excellent good fair poor"`
	PhotoURL           *string        `json:"photoUrl" validate:"omitempty,http_url,max=1024"`
}

type verifyReportReq struct {
	Status model.ReportStatus `json:"status" validate:"required,oneof=approved rejected"`
	Note   string             `json:"note" validate:"max=500"`
}

// seesAll reports whether role may read reports it does not own.
func (h *ReportHandler) seesAll(role policy.Role) bool {
	return h.Policy.HasAny(role, policy.ViewAllReports, policy.ViewLocalReports)
}

// List returns a page of reports: every report for reviewers, only the
// caller's own otherwise.
func (h *ReportHandler) List(c echo.Context, id identity.Identity) error {
	f := model.ReportFilter{Status: model.ReportStatus(c.QueryParam("status"))}
	if f.Status != "" && !f.Status.Valid() {
		return apperr.Validation("", apperr.FieldError{Field: "status", Message: "status must be one of: pending, approved, rejected"})
	}
	switch {
	case h.seesAll(id.Role):
	case h.Policy.HasPermission(id.Role, policy.ViewOwnReports):
		f.UserID = id.UserID
	default:
		return apperr.Forbidden("")
	}

	page := pageFrom(c)
	items, total, err := h.Reports.List(c.Request().Context(), f, page)
	if err != nil {
		return apperr.Internal(err)
	}
	return response.OK(c, "Reports fetched successfully", newListing(items, page, total))
}

// Create files a pending report owned by the caller.
func (h *ReportHandler) Create(c echo.Context, id identity.Identity) error {
	var req createReportReq
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Location = plainText(req.Location)
	req.Description = plainText(req.Description)
	if err := c.Validate(&req); err != nil {
		return err
	}

	rep, err := h.Reports.Create(c.Request().Context(), model.Report{
		UserID:             id.UserID,
		Location:           req.Location,
		Description:        req.Description,
		SegregationQuality: req.SegregationQuality,
		PhotoURL:           req.PhotoURL,
	})
	if err != nil {
		return apperr.Internal(err)
	}

	h.Notifier.Notify(queue.Event{Type: queue.ReportSubmitted, UserID: id.UserID, Email: id.Email, ReportID: rep.ID, Location: rep.Location})
	return response.Created(c, "Report created successfully", rep)
}

// Get returns one report. A report the caller may not see is reported as
// missing, so ids of other households cannot be probed.
func (h *ReportHandler) Get(c echo.Context, id identity.Identity) error {
	rep, err := h.load(c, id)
	if err != nil {
		return err
	}
	return response.OK(c, "Report fetched successfully", rep)
}

// Update edits a report. Owners may edit their own reports while pending;
// anyone else needs the verify permission.
func (h *ReportHandler) Update(c echo.Context, id identity.Identity) error {
	rep, err := h.load(c, id)
	if err != nil {
		return err
	}
	if rep.UserID == id.UserID {
		if rep.Status != model.StatusPending && !h.Policy.HasPermission(id.Role, policy.VerifyReport) {
			return apperr.Forbidden("Forbidden: Only pending reports can be edited")
		}
	} else if !h.Policy.HasPermission(id.Role, policy.VerifyReport) {
		return apperr.Forbidden("")
	}

	var req updateReportReq
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Location = plainTextPtr(req.Location)
	req.Description = plainTextPtr(req.Description)
	if err := c.Validate(&req); err != nil {
		return err
	}
	upd := repository.ReportUpdate{
		Location:           req.Location,
		Description:        req.Description,
		SegregationQuality: req.SegregationQuality,
		PhotoURL:           req.PhotoURL,
	}
	if upd.Empty() {
		return apperr.Validation("No fields to update")
	}

	ctx := c.Request().Context()
	if err := h.Reports.Update(ctx, rep.ID, upd); err != nil {
		return h.mapRepoErr(err)
	}
	rep, err = h.Reports.GetByID(ctx, rep.ID)
	if err != nil {
		return h.mapRepoErr(err)
	}
	return response.OK(c, "Report updated successfully", rep)
}

// Verify records a review decision.
func (h *ReportHandler) Verify(c echo.Context, id identity.Identity) error {
	rid, err := pathID(c)
	if err != nil {
		return err
	}
	var req verifyReportReq
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Note = plainText(req.Note)
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	if err := h.Reports.Review(ctx, rid, req.Status, id.UserID, req.Note); err != nil {
		return h.mapRepoErr(err)
	}
	rep, err := h.Reports.GetByID(ctx, rid)
	if err != nil {
		return h.mapRepoErr(err)
	}

	h.Logger.Info("report reviewed",
		zap.Uint64("report_id", rid), zap.Uint64("reviewer_id", id.UserID), zap.String("status", string(req.Status)))
	h.Notifier.Notify(queue.Event{
		Type:       queue.ReportReviewed,
		UserID:     rep.UserID,
		ReportID:   rep.ID,
		Location:   rep.Location,
		Status:     string(rep.Status),
		ReviewerID: id.UserID,
		Note:       rep.ReviewNote,
	})
	return response.OK(c, "Report "+string(req.Status), rep)
}

// Delete removes a report.
func (h *ReportHandler) Delete(c echo.Context, id identity.Identity) error {
	rid, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.Reports.Delete(c.Request().Context(), rid); err != nil {
		return h.mapRepoErr(err)
	}
	h.Logger.Info("report deleted", zap.Uint64("report_id", rid), zap.Uint64("user_id", id.UserID))
	return response.OK(c, "Report deleted successfully", nil)
}

// load fetches the :id report if the caller may see it.
func (h *ReportHandler) load(c echo.Context, id identity.Identity) (model.Report, error) {
	rid, err := pathID(c)
	if err != nil {
		return model.Report{}, err
	}
	rep, err := h.Reports.GetByID(c.Request().Context(), rid)
	if err != nil {
		return model.Report{}, h.mapRepoErr(err)
	}
	if rep.UserID != id.UserID && !h.seesAll(id.Role) {
		return model.Report{}, apperr.NotFound("Report not found")
	}
	return rep, nil
}

func (h *ReportHandler) mapRepoErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("Report not found")
	}
	return apperr.Internal(err)
}

package handler

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segregate/internal/apperr"
	"github.com/iliyamo/segregate/internal/identity"
	"github.com/iliyamo/segregate/internal/response"
	"github.com/iliyamo/segregate/internal/upload"
)

var errUploadsDisabled = errors.New("upload: S3 is not configured")

// UploadHandler hands out presigned photo upload URLs. A nil Presigner means
// S3 is not configured.
type UploadHandler struct {
	Presigner *upload.Presigner
}

type presignReq struct {
	Filename string `json:"filename" validate:"required,max=255"`
	MimeType string `json:"mimeType" validate:"required"`
	Size     int64  `json:"size" validate:"required,gt=0"`
}

// Presign validates the file description and returns a presigned PUT URL
// under the caller's key prefix.
func (h *UploadHandler) Presign(c echo.Context, id identity.Identity) error {
	var req presignReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if h.Presigner == nil {
		return apperr.Internal(errUploadsDisabled)
	}

	res, err := h.Presigner.Presign(c.Request().Context(), upload.Request{
		UserID:   id.UserID,
		Filename: req.Filename,
		MimeType: req.MimeType,
		Size:     req.Size,
	})
	if err != nil {
		return err
	}
	return response.OK(c, "Presigned URL generated", res)
}

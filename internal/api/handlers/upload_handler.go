package handlers

import (
	"context"
	"io"

	"github.com/fadedpez/royalcharge/internal/api/middleware"
	"github.com/fadedpez/royalcharge/internal/api/presenters"
	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/fadedpez/royalcharge/pkg/services/media"
	"github.com/gofiber/fiber/v2"
)

// Uploader stores raw image bytes
type Uploader interface {
	Upload(ctx context.Context, kind media.Kind, data []byte) (string, error)
}

type (
	UploadHandler interface {
		Upload(c *fiber.Ctx) error
	}

	uploadHandler struct {
		media Uploader
	}

	UploadResponse struct {
		URL string `json:"url"`
	}
)

// Kinds any signed-in user may upload; the rest are admin only
var userKinds = map[media.Kind]bool{
	media.KindScreenshot: true,
	media.KindAvatar:     true,
}

var adminKinds = map[media.Kind]bool{
	media.KindProduct:  true,
	media.KindBranding: true,
}

func NewUploadHandler(media Uploader) UploadHandler {
	return &uploadHandler{media: media}
}

func (h *uploadHandler) Upload(c *fiber.Ctx) error {
	kind := media.Kind(c.Query("kind", string(media.KindScreenshot)))
	switch {
	case userKinds[kind]:
	case adminKinds[kind]:
		if !middleware.CurrentAccount(c).IsAdmin {
			return presenters.ErrorResponse(c, types.NewStoreError(types.ErrPermissionDenied, "Admin access required"))
		}
	default:
		return presenters.ErrorResponse(c, types.NewStoreError(types.ErrValidation, "unknown upload kind"))
	}

	header, err := c.FormFile("image")
	if err != nil {
		return presenters.ErrorResponse(c, types.WrapError(types.ErrValidation, "image file is required", err))
	}
	if header.Size > media.MaxUploadSize {
		return presenters.ErrorResponse(c, types.NewStoreError(types.ErrValidation, "image is too large"))
	}

	file, err := header.Open()
	if err != nil {
		return presenters.ErrorResponse(c, types.WrapError(types.ErrValidation, "unreadable image", err))
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, media.MaxUploadSize+1))
	if err != nil {
		return presenters.ErrorResponse(c, types.WrapError(types.ErrValidation, "unreadable image", err))
	}

	url, err := h.media.Upload(c.UserContext(), kind, data)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, UploadResponse{URL: url}, fiber.StatusCreated, "Image uploaded")
}

package handler

import (
	"errors"
	"net/http"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/academy-api/pkg/errors"
	"github.com/noah-isme/academy-api/pkg/response"
	"github.com/noah-isme/academy-api/pkg/storage"
)

type screenshotFiles interface {
	ResolveToken(token string) (string, error)
	Open(key string) (*os.File, error)
}

// FileHandler serves payment screenshots stored on local disk behind signed links.
type FileHandler struct {
	files screenshotFiles
}

// NewFileHandler constructs a FileHandler.
func NewFileHandler(files screenshotFiles) *FileHandler {
	return &FileHandler{files: files}
}

// Screenshot godoc
// @Summary Download payment screenshot
// @Description Streams a payment screenshot using a signed, expiring token issued to staff
// @Tags Files
// @Produce image/png
// @Produce image/jpeg
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files/screenshots [get]
func (h *FileHandler) Screenshot(c *gin.Context) {
	key, err := h.files.ResolveToken(c.Query("token"))
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "link expired"))
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "invalid link"))
		return
	}

	file, err := h.files.Open(key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "screenshot not found"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open screenshot"))
		return
	}
	defer file.Close()

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read screenshot"))
		return
	}
	if _, err := file.Seek(0, 0); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read screenshot"))
		return
	}
	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read screenshot"))
		return
	}

	c.Header("Cache-Control", "private, no-store")
	c.DataFromReader(http.StatusOK, info.Size(), mtype.String(), file, nil)
}

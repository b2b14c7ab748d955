package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"coparent/internal/log"
	"coparent/internal/receipts"
	"coparent/internal/services"
)

// handleScanReceipt reads a multipart "image" upload and returns a draft.
// Nothing is stored until the draft is approved.
func (s *Server) handleScanReceipt(c *gin.Context) {
	if s.svc.Receipts == nil || !s.svc.Receipts.Enabled() {
		s.fail(c, receipts.ErrDisabled)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, receipts.MaxImageBytes+(1<<20))

	fh, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(c, receipts.ErrImageTooLarge)
			return
		}
		s.fail(c, fmt.Errorf("%w: image: %v", errBadRequest, err))
		return
	}
	if fh.Size > receipts.MaxImageBytes {
		s.fail(c, receipts.ErrImageTooLarge)
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.fail(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()
	image, err := io.ReadAll(f)
	if err != nil {
		s.fail(c, fmt.Errorf("read upload: %w", err))
		return
	}

	mediaType := fh.Header.Get("Content-Type")
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(image)
	}

	draft, err := s.svc.Receipts.Scan(c.Request.Context(), currentUser(c), c.Param("id"), image, strings.TrimSpace(mediaType))
	if err != nil {
		log.FromContext(c.Request.Context()).InfoContext(c.Request.Context(), "Receipt scan failed",
			log.FieldComponent, log.ComponentReceipt, log.FieldError, err)
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, draftOf(draft))
}

func (s *Server) handleApproveReceipt(c *gin.Context) {
	if s.svc.Receipts == nil {
		s.fail(c, receipts.ErrDisabled)
		return
	}
	var req expenseRequest
	if !s.bindJSON(c, &req) {
		return
	}
	amount, err := parseMoney(req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		s.fail(c, err)
		return
	}
	e, err := s.svc.Receipts.Approve(c.Request.Context(), currentUser(c), c.Param("id"), services.DraftApproval{
		Draft: receipts.Draft{
			Amount:      amount,
			Date:        date,
			Category:    sanitizeInput(req.Category),
			Description: sanitizeInput(req.Description),
		},
		PaidByID:     strings.TrimSpace(req.PaidByID),
		SplitEqually: req.SplitEqually == nil || *req.SplitEqually,
		ChildID:      strings.TrimSpace(req.ChildID),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, expenseOf(e))
}

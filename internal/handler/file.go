package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/agency-portal/internal/model"
	"github.com/iliyamo/agency-portal/internal/repository"
	"github.com/iliyamo/agency-portal/internal/service"
	"github.com/iliyamo/agency-portal/internal/storage"
)

// FileHandler serves project deliverables: the object store upload and the
// registration of the resulting reference against a project.
type FileHandler struct {
	Projects *repository.ProjectRepo
	Files    *repository.FileRepo
	Messages *repository.MessageRepo
	Activity *service.ActivityRecorder
	Store    *storage.LocalStore
}

func NewFileHandler(p *repository.ProjectRepo, f *repository.FileRepo, m *repository.MessageRepo, a *service.ActivityRecorder, s *storage.LocalStore) *FileHandler {
	return &FileHandler{Projects: p, Files: f, Messages: m, Activity: a, Store: s}
}

// List handles GET /api/files/:projectId (oldest first).
func (h *FileHandler) List(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if _, err := loadProjectFor(ctx, h.Projects, u, c.Param("projectId")); err != nil {
		return repoError(c, err, "project")
	}
	files, err := h.Files.ListByProject(ctx, c.Param("projectId"))
	if err != nil {
		return repoError(c, err, "files")
	}
	return c.JSON(http.StatusOK, files)
}

type createFileReq struct {
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Size      string `json:"size"`
}

// Create handles POST /api/files. The entry, its activity log and the
// automated thread notice are written in one transaction.
func (h *FileHandler) Create(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	var req createFileReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.URL = strings.TrimSpace(req.URL)
	if req.Name == "" || req.URL == "" {
		return fail(c, http.StatusBadRequest, "name and url are required")
	}
	if strings.TrimSpace(req.Size) == "" {
		req.Size = "unknown"
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	p, err := loadProjectFor(ctx, h.Projects, u, strings.TrimSpace(req.ProjectID))
	if err != nil {
		return repoError(c, err, "project")
	}

	f := model.ProjectFile{ProjectID: p.ID, Name: req.Name, Size: req.Size, URL: req.URL, UploadedBy: u.Name}
	tx, err := h.Projects.DB().BeginTx(ctx, nil)
	if err != nil {
		return repoError(c, err, "file")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := h.Files.CreateTx(ctx, tx, &f); err != nil {
		return repoError(c, err, "file")
	}
	entry, err := h.Activity.RecordTx(ctx, tx, p.ID, model.ActivityFileUpload, fmt.Sprintf("%s uploaded %s (%s)", u.Name, f.Name, f.Size))
	if err != nil {
		return repoError(c, err, "file")
	}
	notice := systemMessage(u, p.ID, "New file uploaded: "+f.Name)
	if err := h.Messages.CreateTx(ctx, tx, &notice); err != nil {
		return repoError(c, err, "file")
	}
	if err := tx.Commit(); err != nil {
		return repoError(c, err, "file")
	}
	committed = true
	h.Activity.Publish(ctx, u, entry)
	return c.JSON(http.StatusCreated, f)
}

// Upload handles POST /api/files/upload (multipart field "file") and returns
// the stored object's reference for a later POST /api/files.
func (h *FileHandler) Upload(c echo.Context) error {
	if _, err := actor(c); err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return fail(c, http.StatusBadRequest, "multipart field \"file\" is required")
	}
	if fh.Size > h.Store.MaxBytes {
		return fail(c, http.StatusRequestEntityTooLarge, storage.ErrTooLarge.Error())
	}
	src, err := fh.Open()
	if err != nil {
		return fail(c, http.StatusBadRequest, "cannot read upload")
	}
	defer src.Close()

	meta, err := h.Store.Save(fh.Filename, src)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return fail(c, http.StatusRequestEntityTooLarge, err.Error())
		}
		c.Logger().Errorf("upload: %v", err)
		return fail(c, http.StatusInternalServerError, "upload failed")
	}
	return c.JSON(http.StatusCreated, meta)
}

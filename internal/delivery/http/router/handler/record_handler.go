package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"lens/internal/delivery/http/response"
	domainerrors "lens/internal/domain/errors"
	"lens/internal/usecase"
	"lens/internal/util"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100

	// maxBlobSize bounds blob uploads read into memory.
	maxBlobSize = 10 << 20
)

// RecordHandler holds dependencies for repository browsing and writing.
type RecordHandler struct {
	browse usecase.BrowseUsecase
	logger *slog.Logger
}

// NewRecordHandler is the constructor for RecordHandler, injected by Fx.
func NewRecordHandler(browse usecase.BrowseUsecase, logger *slog.Logger) *RecordHandler {
	return &RecordHandler{
		browse: browse,
		logger: logger,
	}
}

// DescribeRepo returns the collection inventory of an actor's repository.
func (h *RecordHandler) DescribeRepo(c echo.Context) error {
	description, err := h.browse.DescribeRepo(c.Request().Context(), c.Param("actor"))
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, description, "")
}

// ListRecords returns one page of records from an actor's collection.
func (h *RecordHandler) ListRecords(c echo.Context) error {
	limit, err := pageLimit(c.QueryParam("limit"))
	if err != nil {
		return errors.WithStack(err)
	}

	page, err := h.browse.ListRecords(c.Request().Context(),
		c.Param("actor"), c.Param("collection"), limit, c.QueryParam("cursor"))
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, page, "")
}

// GetRecord returns one record by collection and record key.
func (h *RecordHandler) GetRecord(c echo.Context) error {
	record, err := h.browse.GetRecord(c.Request().Context(),
		c.Param("actor"), c.Param("collection"), c.Param("rkey"))
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, record, "")
}

// createRecordRequest is the write payload. An empty rkey lets the server
// mint one.
type createRecordRequest struct {
	Rkey  string          `json:"rkey"`
	Value json.RawMessage `json:"value" validate:"required"`
}

// CreateRecord writes a record into the current account's repository.
func (h *RecordHandler) CreateRecord(c echo.Context) error {
	var input createRecordRequest
	if err := c.Bind(&input); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid record payload")
	}
	if len(input.Value) == 0 {
		return response.BadRequest(c, "INVALID_INPUT", "Record value is required")
	}

	record, err := h.browse.CreateRecord(c.Request().Context(),
		c.Param("collection"), input.Rkey, input.Value)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusCreated, record, "Record created")
}

// PutRecord writes a record at a known key, replacing any existing record.
func (h *RecordHandler) PutRecord(c echo.Context) error {
	var input createRecordRequest
	if err := c.Bind(&input); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid record payload")
	}
	if len(input.Value) == 0 {
		return response.BadRequest(c, "INVALID_INPUT", "Record value is required")
	}

	record, err := h.browse.PutRecord(c.Request().Context(),
		c.Param("collection"), c.Param("rkey"), input.Value)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, record, "Record written")
}

// UploadBlob uploads the raw request body as a blob on the current
// account's data server.
func (h *RecordHandler) UploadBlob(c echo.Context) error {
	body := http.MaxBytesReader(c.Response(), c.Request().Body, maxBlobSize)
	data, err := io.ReadAll(body)
	if err != nil {
		return response.BadRequest(c, "INVALID_INPUT", "Could not read blob body")
	}
	if len(data) == 0 {
		return response.BadRequest(c, "INVALID_INPUT", "Blob body is empty")
	}

	mimeType := c.Request().Header.Get(echo.HeaderContentType)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	blob, err := h.browse.UploadBlob(c.Request().Context(), data, mimeType)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusCreated, blob, "Blob uploaded")
}

// GetRecordByURI resolves a full at:// URI to its record.
func (h *RecordHandler) GetRecordByURI(c echo.Context) error {
	uri, err := util.ParseATURI(c.QueryParam("uri"))
	if err != nil {
		return errors.WithStack(err)
	}
	if uri.Rkey == "" {
		return response.BadRequest(c, "INVALID_INPUT", "URI must address a record")
	}

	record, err := h.browse.GetRecord(c.Request().Context(),
		uri.Authority, uri.Collection, uri.Rkey)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, record, "")
}

// ListRepos enumerates repositories hosted on a data server.
func (h *RecordHandler) ListRepos(c echo.Context) error {
	limit, err := pageLimit(c.QueryParam("limit"))
	if err != nil {
		return errors.WithStack(err)
	}

	page, err := h.browse.ListRepos(c.Request().Context(),
		c.QueryParam("pds"), limit, c.QueryParam("cursor"))
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, page, "")
}

func pageLimit(raw string) (int, error) {
	if raw == "" {
		return defaultPageLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, errors.Wrap(domainerrors.ErrInvalidFormat, "limit must be a positive integer")
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	return limit, nil
}

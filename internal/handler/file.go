package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/templui/fileshare/internal/apperr"
	"github.com/templui/fileshare/internal/ctxkeys"
	"github.com/templui/fileshare/internal/model"
	"github.com/templui/fileshare/internal/pagination"
	"github.com/templui/fileshare/internal/respond"
	"github.com/templui/fileshare/internal/service"
	"github.com/templui/fileshare/internal/validation"
)

// multipartMemory is how much of an upload is held in memory before
// spilling to a temp file.
const multipartMemory = 8 << 20

var errNoFile = apperr.NewValidation("No file uploaded",
	apperr.FieldError{Field: "file", Message: "file is required"})

type FileHandler struct {
	responder
	fileService *service.FileService
	pageOptions pagination.Options
}

func NewFileHandler(fileService *service.FileService, pageOptions pagination.Options, production bool) *FileHandler {
	pageOptions.SortFields = model.FileSortFields
	return &FileHandler{
		responder:   responder{verbose: !production},
		fileService: fileService,
		pageOptions: pageOptions,
	}
}

type passwordBody struct {
	Password string `json:"password"`
}

func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	err := r.ParseMultipartForm(multipartMemory)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.fail(w, r, errBodyTooLarge)
			return
		}
		h.fail(w, r, errNoFile)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, errNoFile)
		return
	}
	defer file.Close()

	contentType, err := validation.DetectContentType(file, header.Header.Get("Content-Type"))
	if err != nil {
		h.fail(w, r, apperr.NewInternal("Failed to read upload", err))
		return
	}

	created, err := h.fileService.Upload(r.Context(), user.ID, service.UploadInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		GroupID:     r.FormValue("groupId"),
		Visibility:  model.Visibility(r.FormValue("visibility")),
		Password:    r.FormValue("password"),
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respond.Success(w, http.StatusCreated, created)
}

// List returns the caller's own files.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.Parse(r.URL.Query(), h.pageOptions)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	page, err := h.fileService.ListMine(r.Context(), ctxkeys.UserID(r.Context()), service.ListFilesInput{
		Search:  r.URL.Query().Get("search"),
		GroupID: r.URL.Query().Get("groupId"),
		Params:  params,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respond.Paginated(w, page.Items, page.Meta)
}

func (h *FileHandler) Public(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.Parse(r.URL.Query(), h.pageOptions)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	page, err := h.fileService.ListPublic(r.Context(), r.URL.Query().Get("search"), params)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respond.Paginated(w, page.Items, page.Meta)
}

func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	file, err := h.fileService.Get(r.Context(), r.PathValue("id"), ctxkeys.UserID(r.Context()), filePassword(r, ""))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, file)
}

func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	var body passwordBody
	err := decodeJSON(r, &body, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dl, err := h.fileService.Download(r.Context(), r.PathValue("id"), ctxkeys.UserID(r.Context()), filePassword(r, body.Password))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, dl)
}

func (h *FileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateFileInput
	err := decodeJSON(r, &in, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	file, err := h.fileService.Update(r.Context(), ctxkeys.UserID(r.Context()), r.PathValue("id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, file)
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.fileService.Delete(r.Context(), ctxkeys.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.Message(w, http.StatusOK, "File deleted successfully")
}

// QRCode serves a PNG of the file's share link.
func (h *FileHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	png, err := h.fileService.QRCode(r.Context(), ctxkeys.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, err = w.Write(png)
	if err != nil {
		slog.Error("failed to write qr code", "error", err)
	}
}

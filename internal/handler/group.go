package handler

import (
	"net/http"

	"github.com/templui/fileshare/internal/ctxkeys"
	"github.com/templui/fileshare/internal/model"
	"github.com/templui/fileshare/internal/pagination"
	"github.com/templui/fileshare/internal/respond"
	"github.com/templui/fileshare/internal/service"
)

type GroupHandler struct {
	responder
	groupService *service.GroupService
	groupPaging  pagination.Options
	filePaging   pagination.Options
}

func NewGroupHandler(groupService *service.GroupService, pageOptions pagination.Options, production bool) *GroupHandler {
	groupPaging := pageOptions
	groupPaging.SortFields = model.GroupSortFields
	filePaging := pageOptions
	filePaging.SortFields = model.FileSortFields

	return &GroupHandler{
		responder:    responder{verbose: !production},
		groupService: groupService,
		groupPaging:  groupPaging,
		filePaging:   filePaging,
	}
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateGroupInput
	err := decodeJSON(r, &in, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	group, err := h.groupService.Create(r.Context(), ctxkeys.UserID(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.Success(w, http.StatusCreated, group)
}

func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.Parse(r.URL.Query(), h.groupPaging)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	page, err := h.groupService.List(r.Context(), ctxkeys.UserID(r.Context()), params)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.Paginated(w, page.Items, page.Meta)
}

func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	group, err := h.groupService.Get(r.Context(), ctxkeys.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, group)
}

func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateGroupInput
	err := decodeJSON(r, &in, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	group, err := h.groupService.Update(r.Context(), ctxkeys.UserID(r.Context()), r.PathValue("id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, group)
}

func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.groupService.Delete(r.Context(), ctxkeys.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.Message(w, http.StatusOK, "Group deleted successfully")
}

func (h *GroupHandler) Files(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.Parse(r.URL.Query(), h.filePaging)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	page, err := h.groupService.Files(r.Context(), ctxkeys.UserID(r.Context()), r.PathValue("id"), r.URL.Query().Get("search"), params)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.Paginated(w, page.Items, page.Meta)
}

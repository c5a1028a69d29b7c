package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// MailHandler 邮箱接口处理器（均需要 bearer 鉴权）
type MailHandler struct {
	mailService MailService
}

// NewMailHandler 创建 MailHandler
func NewMailHandler(mailService MailService) *MailHandler {
	return &MailHandler{mailService: mailService}
}

// RegisterRoutes 注册路由到 mux.Router
func (h *MailHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/mailboxes", h.listMailboxes).Methods(http.MethodGet)
	r.HandleFunc("/mailbox", h.createMailbox).Methods(http.MethodPost)
	r.HandleFunc("/emails", h.listEmails).Methods(http.MethodGet)
	r.HandleFunc("/email/{id}", h.getEmail).Methods(http.MethodGet)
}

func (h *MailHandler) listMailboxes(w http.ResponseWriter, r *http.Request) {
	resp, err := h.mailService.ListMailboxes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *MailHandler) createMailbox(w http.ResponseWriter, r *http.Request) {
	resp, err := h.mailService.CreateMailbox(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *MailHandler) listEmails(w http.ResponseWriter, r *http.Request) {
	resp, err := h.mailService.ListEmails(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// getEmail 获取邮件详情
func (h *MailHandler) getEmail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "email not found"})
		return
	}

	resp, err := h.mailService.GetEmail(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

package sendhandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"

	"github.com/OliverSchlueter/goutils/problems"
	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/openack/internal/directory"
	"github.com/OliverSchlueter/openack/internal/mailbox"
	"github.com/OliverSchlueter/openack/internal/sending"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const filesField = "files"

type Handler struct {
	sending        *sending.Service
	roster         *directory.Roster
	maxUploadBytes int64
	validate       *validator.Validate
}

func New(sendingService *sending.Service, roster *directory.Roster, maxUploadBytes int64) *Handler {
	return &Handler{
		sending:        sendingService,
		roster:         roster,
		maxUploadBytes: maxUploadBytes,
		validate:       validator.New(),
	}
}

func (h *Handler) Register(r chi.Router) {
	r.HandleFunc("/messages", h.handleMessages)
	r.HandleFunc("/directory", h.handleDirectory)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.sendMessage(w, r)
	default:
		problems.MethodNotAllowed(r.Method, []string{http.MethodPost}).WriteToHTTP(w)
	}
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	form, files, err := h.decode(r)
	if err != nil {
		slog.Debug("Could not decode send request", sloki.WrapError(err))
		problems.CouldNotDecodeBody().WriteToHTTP(w)
		return
	}

	if err := h.validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := strings.ToLower(verrs[0].StructField())
			problems.ValidationError(field, fieldMessage(field)).WriteToHTTP(w)
			return
		}
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}

	res, err := h.sending.Send(r.Context(), sending.Request{
		From:    form.From,
		To:      form.To,
		Message: form.Message,
		Files:   files,
	})
	if err != nil && !errors.Is(err, sending.ErrDeliveryFailed) {
		writeSendError(w, err)
		return
	}

	data, mErr := json.Marshal(res)
	if mErr != nil {
		problems.InternalServerError("Error marshalling send result").WriteToHTTP(w)
		return
	}

	status := http.StatusOK
	switch res.Status {
	case sending.StatusPartial:
		status = http.StatusMultiStatus
	case sending.StatusFailed:
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// decode reads a multipart or urlencoded form. Uploaded files from the
// "files" field come first, files of other fields follow ordered by field
// name.
func (h *Handler) decode(r *http.Request) (sendForm, []mailbox.Attachment, error) {
	var form sendForm

	if isMultipart(r) {
		if err := r.ParseMultipartForm(h.maxUploadMemory()); err != nil {
			return form, nil, err
		}
	} else if err := r.ParseForm(); err != nil {
		return form, nil, err
	}

	form.From = r.PostForm.Get("from")
	form.Message = r.PostForm.Get("message")
	for _, to := range r.PostForm["to"] {
		for _, name := range strings.Split(to, ",") {
			if name = strings.TrimSpace(name); name != "" {
				form.To = append(form.To, name)
			}
		}
	}

	if r.MultipartForm == nil {
		return form, nil, nil
	}

	fields := make([]string, 0, len(r.MultipartForm.File))
	for field := range r.MultipartForm.File {
		if field != filesField {
			fields = append(fields, field)
		}
	}
	slices.Sort(fields)
	if _, ok := r.MultipartForm.File[filesField]; ok {
		fields = append([]string{filesField}, fields...)
	}

	var files []mailbox.Attachment
	for _, field := range fields {
		for _, fh := range r.MultipartForm.File[field] {
			content, err := readPart(fh)
			if err != nil {
				return form, nil, fmt.Errorf("could not read upload %s: %w", fh.Filename, err)
			}
			files = append(files, mailbox.Attachment{Name: fh.Filename, Content: content})
		}
	}

	return form, files, nil
}

func (h *Handler) maxUploadMemory() int64 {
	if h.maxUploadBytes > 0 && h.maxUploadBytes < 32<<20 {
		return h.maxUploadBytes
	}
	return 32 << 20
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func writeSendError(w http.ResponseWriter, err error) {
	var unknown *directory.UnknownAgentError
	switch {
	case errors.As(err, &unknown):
		field := "to"
		if unknown.Role == directory.RoleSender {
			field = "from"
		}
		problems.ValidationError(field, err.Error()).WriteToHTTP(w)
	case errors.Is(err, sending.ErrNoRecipients):
		problems.ValidationError("to", err.Error()).WriteToHTTP(w)
	case errors.Is(err, sending.ErrEmptyMessage):
		problems.ValidationError("message", err.Error()).WriteToHTTP(w)
	default:
		slog.Error("Failed to send message", sloki.WrapError(err))
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
	}
}

func fieldMessage(field string) string {
	switch field {
	case "from":
		return "Sender is required"
	case "to":
		return "At least one recipient is required"
	case "message":
		return "Message must not be empty"
	}
	return "Invalid value"
}

func (h *Handler) handleDirectory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getDirectory(w, r)
	default:
		problems.MethodNotAllowed(r.Method, []string{http.MethodGet}).WriteToHTTP(w)
	}
}

func (h *Handler) getDirectory(w http.ResponseWriter, r *http.Request) {
	people := h.roster.People()

	data, err := json.Marshal(DirectoryResp{People: people, Count: len(people)})
	if err != nil {
		problems.InternalServerError("Error marshalling directory").WriteToHTTP(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

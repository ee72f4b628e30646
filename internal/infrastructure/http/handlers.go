package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/usecases"
)

const (
	msgMissingInput = "Пожалуйста, предоставьте файл или вопрос"
	msgReportFailed = "Ошибка при анализе файла: "
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// errBadUpload marks client-side upload problems; the message is safe to return as is.
type errBadUpload struct{ msg string }

func (e errBadUpload) Error() string { return e.msg }

// handleAskSolution answers a free-text question from retrieved solutions.
// The prompt arrives as a form field or as JSON {"prompt": ...}.
func (s *Server) handleAskSolution(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	prompt, err := readPrompt(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.synthesisContext(r)
	defer cancel()

	resp, err := s.synth.Handle(ctx, usecases.Request{Prompt: prompt})
	if err != nil {
		s.writeSynthesisError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"solution": resp.Answer})
}

// handleIncidentReport accepts a multipart upload with an optional transcript file and
// an optional prompt. With a file it returns the structured report; without one it
// answers the prompt like /ask_solution/.
func (s *Server) handleIncidentReport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.writeUploadError(w, err)
		return
	}

	doc, err := s.readDocument(r)
	if err != nil {
		s.writeUploadError(w, err)
		return
	}

	ctx, cancel := s.synthesisContext(r)
	defer cancel()

	resp, err := s.synth.Handle(ctx, usecases.Request{
		Prompt:   r.FormValue("prompt"),
		Document: doc,
	})
	if err != nil {
		s.writeSynthesisError(w, r, err, msgReportFailed)
		return
	}

	switch resp.Kind {
	case usecases.KindReport:
		w.Header().Set("X-Incident-ID", resp.IncidentID)
		writeJSON(w, http.StatusOK, resp.Report)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"solution": resp.Answer})
	}
}

type incidentResponse struct {
	ID        string          `json:"id"`
	Content   string          `json:"content"`
	Report    entities.Report `json:"report"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, ports.ErrNotFound) {
		writeError(w, http.StatusNotFound, "incident not found")
		return
	}
	if err != nil {
		s.logger.Error("loading incident failed", zap.String("incident_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, incidentResponse{
		ID:        rec.ID,
		Content:   rec.Content,
		Report:    rec.Report,
		UpdatedAt: rec.UpdatedAt,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	if s.index != nil {
		n, err := s.index.Count(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "error": err.Error()})
			return
		}
		status["entries"] = n
	}
	writeJSON(w, http.StatusOK, status)
}

func readPrompt(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("invalid JSON body: %w", err)
		}
		return req.Prompt, nil
	}
	return r.FormValue("prompt"), nil
}

// readDocument returns the uploaded transcript, or nil when no file was sent.
func (s *Server) readDocument(r *http.Request) (*entities.Document, error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	text, err := s.extractText(r, data, header.Filename)
	if err != nil {
		return nil, err
	}
	return &entities.Document{Name: header.Filename, Text: text}, nil
}

func (s *Server) extractText(r *http.Request, data []byte, filename string) (string, error) {
	if s.parser != nil && handles(s.parser, filename) {
		text, err := s.parser.Parse(r.Context(), data, filename)
		if err != nil {
			return "", errBadUpload{msg: "не удалось извлечь текст из файла: " + err.Error()}
		}
		return text, nil
	}

	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return "", errBadUpload{msg: "PDF-файлы не поддерживаются: не настроен сервис извлечения текста"}
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", errBadUpload{msg: "файл должен быть текстом в кодировке UTF-8"}
	}
	return string(data), nil
}

func handles(parser ports.DocumentParser, filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, f := range parser.SupportedFormats() {
		if f == ext {
			return true
		}
	}
	return false
}

func (s *Server) writeUploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	var bad errBadUpload
	switch {
	// multipart wraps some read errors as text only
	case errors.As(err, &tooLarge), strings.Contains(err.Error(), "request body too large"):
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("файл больше %d байт", s.opts.MaxUploadBytes))
	case errors.As(err, &bad):
		writeError(w, http.StatusBadRequest, bad.msg)
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// writeSynthesisError maps use-case failures onto status codes.
func (s *Server) writeSynthesisError(w http.ResponseWriter, r *http.Request, err error, prefix string) {
	switch {
	case errors.Is(err, usecases.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, msgMissingInput)
		return
	case errors.Is(err, ports.ErrGatewayTimeout), errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("language model timed out", zap.String("route", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, prefix+err.Error())
		return
	}
	s.logger.Error("request failed", zap.String("route", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, prefix+err.Error())
}

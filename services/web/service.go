package web

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"aimawatch-backend/lib/aima"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("services/web")

//go:embed index.html
var indexPage []byte

// StatusChecker runs a one-shot portal check. *aima.Client is the
// production implementation.
type StatusChecker interface {
	Check(ctx context.Context, creds aima.Credentials) (aima.Status, error)
}

// Service serves the anonymous check page. Credentials pass through a
// single request and are never persisted.
type Service struct {
	checker StatusChecker
}

func NewService(statusChecker StatusChecker) Service {
	return Service{checker: statusChecker}
}

func (s Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.index)
	mux.HandleFunc("POST /check", s.check)
	mux.HandleFunc("GET /health", s.health)
}

type checkResponse struct {
	Status     string `json:"status"`
	StatusText string `json:"status_text,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"`
}

func (s Service) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexPage)
}

func (s Service) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// check answers HTTP 200 with a success or error envelope either way,
// the page renders the envelope.
func (s Service) check(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "Check")
	defer span.End()

	timestamp := time.Now().UTC().Format(time.RFC3339)

	// urlencoded from the embedded page, multipart from other clients
	err := r.ParseMultipartForm(1 << 20)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeJSON(w, checkResponse{
			Status:    "error",
			Error:     "Invalid form submission",
			Timestamp: timestamp,
		})
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		writeJSON(w, checkResponse{
			Status:    "error",
			Error:     "Email and password are required",
			Timestamp: timestamp,
		})
		return
	}

	status, err := s.checker.Check(ctx, aima.Credentials{
		Email:    email,
		Password: password,
	})
	if err != nil {
		kind := aima.KindOf(err)
		span.SetAttributes(attribute.String("error_kind", kind.String()))
		slog.WarnContext(ctx, "web check failed", "kind", kind.String(), "err", err)
		writeJSON(w, checkResponse{
			Status:    "error",
			Error:     errorText(err),
			Timestamp: timestamp,
		})
		return
	}

	writeJSON(w, checkResponse{
		Status:     "success",
		StatusText: status.Text,
		Timestamp:  timestamp,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func errorText(err error) string {
	switch aima.KindOf(err) {
	case aima.ErrLoginFailed:
		return "Invalid email or password"
	case aima.ErrTimeout:
		return "Request timed out - AIMA website may be slow or unavailable"
	case aima.ErrTransport:
		return "Could not reach the AIMA website. Please try again later."
	case aima.ErrTokenNotFound, aima.ErrStatusRegionNotFound:
		return "Could not read the AIMA status page. The site may be under maintenance."
	default:
		return "An unexpected error occurred. Please try again later."
	}
}

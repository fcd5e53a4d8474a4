package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/akagifreeez/gemini-key-pool/internal/services"
	"github.com/akagifreeez/gemini-key-pool/pkg/upstream"
)

// ProxyHandler relays calls under the proxy prefix, or already in the
// upstream's versioned shape, to the upstream.
type ProxyHandler struct {
	forwarder *services.ProxyForwarder
	prefix    string
}

func NewProxyHandler(forwarder *services.ProxyForwarder, prefix string) *ProxyHandler {
	return &ProxyHandler{
		forwarder: forwarder,
		prefix:    strings.TrimRight(prefix, "/"),
	}
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Method != http.MethodGet {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Failed to read request body")
			return
		}
		body = b
	}

	req := services.ProxyRequest{
		Request: upstream.Request{
			Method: r.Method,
			Path:   h.upstreamPath(r),
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
		},
		InboundPath: r.URL.Path,
	}

	resp, err := h.forwarder.Forward(r.Context(), req)
	if err != nil {
		var transportErr *services.TransportError
		switch {
		case errors.Is(err, services.ErrNoAvailableKey):
			writeError(w, http.StatusServiceUnavailable, services.NoAvailableKeyMessage)
		case errors.As(err, &transportErr):
			writeError(w, http.StatusInternalServerError, transportErr.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("Failed to relay response body")
	}
}

// upstreamPath strips the local proxy prefix, keeping the escaped form
func (h *ProxyHandler) upstreamPath(r *http.Request) string {
	path := r.URL.EscapedPath()
	if h.prefix != "" && strings.HasPrefix(path, h.prefix+"/") {
		return strings.TrimPrefix(path, h.prefix)
	}
	return path
}

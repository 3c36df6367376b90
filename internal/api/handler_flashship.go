package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"aiotts_gateway/internal/flashship"
)

// FlashShipHandler proxies seller calls to FlashShip and relays the upstream
// status and body unchanged.
type FlashShipHandler struct {
	client *flashship.Client
}

func NewFlashShipHandler(client *flashship.Client) *FlashShipHandler {
	return &FlashShipHandler{client: client}
}

type upstreamFailure struct {
	Msg   string `json:"msg"`
	Error string `json:"error"`
}

func (h *FlashShipHandler) mode(w http.ResponseWriter, r *http.Request) (flashship.Mode, bool) {
	mode, err := flashship.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "mode must be dev or prod")
		return "", false
	}
	return mode, true
}

func relay(w http.ResponseWriter, resp *flashship.Response, err error) {
	if err != nil {
		if errors.Is(err, flashship.ErrInvalidMode) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusInternalServerError, upstreamFailure{Msg: "fail", Error: err.Error()})
		return
	}
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// splitBody reads a JSON object body and separates its access_token.
func splitBody(w http.ResponseWriter, r *http.Request) (string, json.RawMessage, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return "", nil, false
	}
	token, payload, err := flashship.SplitAccessToken(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", nil, false
	}
	if token == "" {
		token = r.URL.Query().Get("access_token")
	}
	return token, payload, true
}

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *FlashShipHandler) Login(w http.ResponseWriter, r *http.Request) {
	mode, ok := h.mode(w, r)
	if !ok {
		return
	}
	var body loginBody
	if !decodeBody(w, r, &body) {
		return
	}
	resp, err := h.client.Login(r.Context(), mode, body.Username, body.Password)
	relay(w, resp, err)
}

func (h *FlashShipHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	mode, ok := h.mode(w, r)
	if !ok {
		return
	}
	token, payload, ok := splitBody(w, r)
	if !ok {
		return
	}
	resp, err := h.client.CreateOrder(r.Context(), mode, token, payload)
	relay(w, resp, err)
}

func (h *FlashShipHandler) OrderDetails(w http.ResponseWriter, r *http.Request) {
	mode, ok := h.mode(w, r)
	if !ok {
		return
	}
	code, ok := requireQuery(w, r, "order_code")
	if !ok {
		return
	}
	resp, err := h.client.OrderDetails(r.Context(), mode, r.URL.Query().Get("access_token"), code)
	relay(w, resp, err)
}

func (h *FlashShipHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	mode, ok := h.mode(w, r)
	if !ok {
		return
	}
	token, payload, ok := splitBody(w, r)
	if !ok {
		return
	}
	resp, err := h.client.CancelOrder(r.Context(), mode, token, payload)
	relay(w, resp, err)
}

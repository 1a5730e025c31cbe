package whatsapp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// WebhookHandler accepts Twilio inbound message callbacks.
type WebhookHandler struct {
	router    *Router
	log       *zap.Logger
	authToken string
	// publicURL is the URL Twilio signs; validation is skipped when empty.
	publicURL string
}

func NewWebhookHandler(router *Router, log *zap.Logger, authToken, publicURL string) *WebhookHandler {
	return &WebhookHandler{router: router, log: log, authToken: authToken, publicURL: publicURL}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	reqID := uuid.NewString()
	if err := req.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if h.publicURL != "" && !ValidSignature(h.authToken, h.publicURL, req.PostForm, req.Header.Get("X-Twilio-Signature")) {
		h.log.Warn("webhook signature mismatch", zap.String("request_id", reqID))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	phone := strings.TrimPrefix(req.PostForm.Get("From"), "whatsapp:")
	if phone == "" {
		http.Error(w, "missing sender", http.StatusBadRequest)
		return
	}
	h.log.Debug("inbound message",
		zap.String("request_id", reqID),
		zap.String("message_sid", req.PostForm.Get("MessageSid")),
	)
	h.router.HandleMessage(req.Context(), phone, req.PostForm.Get("Body"))

	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(emptyTwiML))
}

// ValidSignature checks X-Twilio-Signature: base64(HMAC-SHA1(token, url + sorted key/value pairs)).
func ValidSignature(authToken, fullURL string, form url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range form[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

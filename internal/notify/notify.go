// Package notify delivers short user-facing notifications. Delivery is
// fire-and-forget: callers never learn whether the user saw it.
package notify

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf16"
)

type Severity string

const (
	Default     Severity = "default"
	Destructive Severity = "destructive"
)

// Notification is a title and description shown to the user.
type Notification struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// Success returns a default notification.
func Success(description string) Notification {
	return Notification{Title: "Success", Description: description, Severity: Default}
}

// Failure returns a destructive notification.
func Failure(description string) Notification {
	return Notification{Title: "Error", Description: description, Severity: Destructive}
}

// Notifier shows n to the user behind r.
type Notifier interface {
	Notify(w http.ResponseWriter, r *http.Request, n Notification)
}

// CookieName is the flash cookie carrying a notification across a redirect.
const CookieName = "habbit_flash"

// TriggerEvent is the client-side event name raised for HTMX requests.
const TriggerEvent = "notify"

// FlashNotifier raises an HX-Trigger event on HTMX requests and otherwise
// stores the notification in a short-lived cookie read back by Pop.
type FlashNotifier struct {
	Logger *slog.Logger
}

func (f FlashNotifier) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

func (f FlashNotifier) Notify(w http.ResponseWriter, r *http.Request, n Notification) {
	if n.Severity == "" {
		n.Severity = Default
	}
	level := slog.LevelInfo
	if n.Severity == Destructive {
		level = slog.LevelWarn
	}
	f.logger().Log(r.Context(), level, "notification", "title", n.Title, "description", n.Description, "path", r.URL.Path)

	payload, err := json.Marshal(n)
	if err != nil {
		return
	}
	if r.Header.Get("HX-Request") == "true" {
		trigger, err := json.Marshal(map[string]json.RawMessage{TriggerEvent: payload})
		if err != nil {
			return
		}
		w.Header().Set("HX-Trigger", asciiJSON(trigger))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    base64.RawURLEncoding.EncodeToString(payload),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// asciiJSON escapes everything outside printable ASCII as \uXXXX. Browsers
// read header bytes as Latin-1, so raw UTF-8 would arrive garbled.
func asciiJSON(b []byte) string {
	var sb strings.Builder
	for _, r := range string(b) {
		if r >= 0x20 && r < 0x7f {
			sb.WriteRune(r)
			continue
		}
		if r1, r2 := utf16.EncodeRune(r); r1 != '\uFFFD' {
			fmt.Fprintf(&sb, "\\u%04x\\u%04x", r1, r2)
			continue
		}
		fmt.Fprintf(&sb, "\\u%04x", r)
	}
	return sb.String()
}

// Pop returns the pending flash notification, if any, and clears it.
func Pop(w http.ResponseWriter, r *http.Request) (Notification, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return Notification{}, false
	}
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1})

	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return Notification{}, false
	}
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil || n.Description == "" {
		return Notification{}, false
	}
	return n, true
}

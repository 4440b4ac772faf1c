package router

import (
	"net/http"

	contentHandler "birthdaysite/internal/content"
	"birthdaysite/middleware"
	"birthdaysite/socket"
)

// Setup wires the API and the websocket endpoint. Every other path is served
// by site, normally the offline proxy.
func Setup(h *contentHandler.ContentHandler, hub *socket.Hub, site http.Handler, adminSecret string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r)
	})

	admin := middleware.AdminAuth(adminSecret)

	// Visitor-facing
	mux.HandleFunc("/api/content", h.GetContent)
	mux.HandleFunc("/api/quiz/submit", h.SubmitQuiz)
	mux.HandleFunc("/api/interactions/gallery", h.RecordGalleryView)
	mux.HandleFunc("/api/interactions/surprise", h.RecordSurpriseReveal)
	mux.HandleFunc("/api/visitors", h.Visitors)

	// Admin
	mux.Handle("/api/content/save", admin(http.HandlerFunc(h.SaveContent)))
	mux.Handle("/api/content/items", admin(http.HandlerFunc(h.EditItem)))
	mux.Handle("/api/content/export", admin(http.HandlerFunc(h.ExportContent)))
	mux.Handle("/api/content/import", admin(http.HandlerFunc(h.ImportContent)))
	mux.Handle("/api/content/refresh", admin(http.HandlerFunc(h.RefreshContent)))
	mux.Handle("/api/quiz/results", admin(http.HandlerFunc(h.QuizResults)))
	mux.Handle("/api/cache/urls", admin(http.HandlerFunc(h.CacheURLs)))
	mux.Handle("/api/sync", admin(http.HandlerFunc(h.SyncOffline)))

	mux.Handle("/", site)

	return middleware.CORSMiddleware(mux)
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes 配置API路由
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Authentication routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefreshToken)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Discovery
		r.Post("/discovery/scan", s.handleDiscoveryScan)

		// Stored devices
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			// 删除配对凭证是破坏性操作,仅管理员可用
			r.With(s.adminOnly).Delete("/{address}", s.handleDeleteDevice)
		})

		// Session lifecycle
		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.handleSessionStatus)
			r.Post("/connect", s.handleConnect)
			r.Post("/pair", s.handlePair)
			r.Post("/disconnect", s.handleDisconnect)
			r.Post("/ensure", s.handleEnsure)
		})

		// TV commands
		r.Route("/tv", func(r chi.Router) {
			r.Get("/volume", s.handleGetVolume)
			r.Post("/volume", s.handleSetVolume)
			r.Post("/volume/up", s.handleVolumeUp)
			r.Post("/volume/down", s.handleVolumeDown)
			r.Post("/volume/mute", s.handleSetMute)

			r.Get("/channel", s.handleCurrentChannel)
			r.Post("/channel", s.handleOpenChannel)
			r.Post("/channel/up", s.handleChannelUp)
			r.Post("/channel/down", s.handleChannelDown)

			r.Get("/apps", s.handleListApps)
			r.Get("/apps/foreground", s.handleForegroundApp)
			r.Post("/apps/launch", s.handleLaunchApp)

			r.Post("/notification", s.handleNotify)
			r.Post("/power/off", s.handlePowerOff)
			r.Post("/screen", s.handleScreen)
			r.Post("/media/{action}", s.handleMedia)
			r.Post("/input/button", s.handleButton)
		})
	})
}

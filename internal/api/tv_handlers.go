package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tvlink-server/tvlink-server/internal/commands"
)

// VolumeRequest sets an absolute volume level
type VolumeRequest struct {
	Level int `json:"level"`
}

// MuteRequest toggles mute
type MuteRequest struct {
	Muted bool `json:"muted"`
}

// ChannelRequest opens a channel by number
type ChannelRequest struct {
	Number string `json:"number" validate:"required"`
}

// LaunchRequest launches an application
type LaunchRequest struct {
	AppID  string         `json:"app_id" validate:"required"`
	Params map[string]any `json:"params"`
}

// NotifyRequest shows a toast on the TV
type NotifyRequest struct {
	Message string `json:"message" validate:"required,max=60"`
}

// ScreenRequest turns the panel on or off
type ScreenRequest struct {
	On bool `json:"on"`
}

// ButtonRequest presses a remote button
type ButtonRequest struct {
	Name string `json:"name" validate:"required"`
}

// requester 获取当前已认证的会话,未连接时直接响应错误
func (s *RESTServer) requester(w http.ResponseWriter) (commands.Requester, bool) {
	sess, err := s.control.Session()
	if err != nil {
		s.respondSessionError(w, err)
		return nil, false
	}
	return sess, true
}

func (s *RESTServer) decodeCommand(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validator.Validate(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// handleGetVolume 查询当前音量
func (s *RESTServer) handleGetVolume(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requester(w)
	if !ok {
		return
	}

	status, err := commands.GetVolume(r.Context(), sess)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

// handleSetVolume 设置音量
func (s *RESTServer) handleSetVolume(w http.ResponseWriter, r *http.Request) {
	var req VolumeRequest
	if !s.decodeCommand(w, r, &req) {
		return
	}
	if req.Level < 0 || req.Level > 100 {
		s.respondError(w, http.StatusBadRequest, "volume level must be between 0 and 100")
		return
	}

	sess, ok := s.requester(w)
	if !ok {
		return
	}
	if err := commands.SetVolume(r.Context(), sess, req.Level); err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"level": req.Level})
}

func (s *RESTServer) handleVolumeUp(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, commands.VolumeUp)
}

func (s *RESTServer) handleVolumeDown(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, commands.VolumeDown)
}

// handleSetMute 设置静音
func (s *RESTServer) handleSetMute(w http.ResponseWriter, r *http.Request) {
	var req MuteRequest
	if !s.decodeCommand(w, r, &req) {
		return
	}

	sess, ok := s.requester(w)
	if !ok {
		return
	}
	if err := commands.SetMute(r.Context(), sess, req.Muted); err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"muted": req.Muted})
}

// handleCurrentChannel 查询当前频道
func (s *RESTServer) handleCurrentChannel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requester(w)
	if !ok {
		return
	}

	info, err := commands.CurrentChannel(r.Context(), sess)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

// handleOpenChannel 切换到指定频道
func (s *RESTServer) handleOpenChannel(w http.ResponseWriter, r *http.Request) {
	var req ChannelRequest
	if !s.decodeCommand(w, r, &req) {
		return
	}

	sess, ok := s.requester(w)
	if !ok {
		return
	}
	if err := commands.OpenChannel(r.Context(), sess, req.Number); err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"number": req.Number})
}

func (s *RESTServer) handleChannelUp(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, commands.ChannelUp)
}

func (s *RESTServer) handleChannelDown(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, commands.ChannelDown)
}

// handleListApps 列出已安装应用
func (s *RESTServer) handleListApps(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requester(w)
	if !ok {
		return
	}

	apps, err := commands.ListApps(r.Context(), sess)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"apps": apps, "count": len(apps)})
}

// handleForegroundApp 查询前台应用
func (s *RESTServer) handleForegroundApp(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requester(w)
	if !ok {
		return
	}

	appID, err := commands.ForegroundApp(r.Context(), sess)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"app_id": appID})
}

// handleLaunchApp 启动应用
func (s *RESTServer) handleLaunchApp(w http.ResponseWriter, r *http.Request) {
	var req LaunchRequest
	if !s.decodeCommand(w, r, &req) {
		return
	}

	sess, ok := s.requester(w)
	if !ok {
		return
	}
	if err := commands.LaunchApp(r.Context(), sess, req.AppID, req.Params); err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"app_id": req.AppID})
}

// handleNotify 在电视上显示通知
func (s *RESTServer) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if !s.decodeCommand(w, r, &req) {
		return
	}

	sess, ok := s.requester(w)
	if !ok {
		return
	}
	if err := commands.Notify(r.Context(), sess, req.Message); err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// handlePowerOff 关机
func (s *RESTServer) handlePowerOff(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, commands.PowerOff)
}

// handleScreen 开关屏幕
func (s *RESTServer) handleScreen(w http.ResponseWriter, r *http.Request) {
	var req ScreenRequest
	if !s.decodeCommand(w, r, &req) {
		return
	}

	sess, ok := s.requester(w)
	if !ok {
		return
	}
	if err := commands.Screen(r.Context(), sess, req.On); err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"on": req.On})
}

// handleMedia 媒体播放控制,动作由URL路径指定
func (s *RESTServer) handleMedia(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	if !commands.ValidMediaAction(action) {
		s.respondError(w, http.StatusBadRequest, "unknown media action")
		return
	}

	sess, ok := s.requester(w)
	if !ok {
		return
	}
	if err := commands.Media(r.Context(), sess, action); err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"action": action})
}

// handleButton 发送遥控按键
func (s *RESTServer) handleButton(w http.ResponseWriter, r *http.Request) {
	var req ButtonRequest
	if !s.decodeCommand(w, r, &req) {
		return
	}

	sess, ok := s.requester(w)
	if !ok {
		return
	}
	if err := commands.PressButton(r.Context(), sess, req.Name); err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"button": req.Name})
}

// runCommand runs a no-argument command wrapper against the current session.
func (s *RESTServer) runCommand(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, req commands.Requester) error) {
	sess, ok := s.requester(w)
	if !ok {
		return
	}
	if err := fn(r.Context(), sess); err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

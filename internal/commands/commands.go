// Package commands holds the high-level command vocabulary: one-shot
// request/payload pairs built on the session's request primitive.
// Wrappers that historically worked on some firmware generations and not
// others are explicit ordered candidate chains, newest endpoint first.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tvlink-server/tvlink-server/internal/session"
	"github.com/tvlink-server/tvlink-server/pkg/ssap"
)

// Requester is the slice of a device session the wrappers need.
type Requester interface {
	Request(ctx context.Context, uri string, payload any) (json.RawMessage, error)
	Button(ctx context.Context, name string) error
}

// candidate is one endpoint attempt in an ordered fallback chain.
type candidate struct {
	uri     string
	payload any
}

// fallbackRequest 按序尝试候选端点。只有设备报告的应用级失败才继续
// 尝试下一个候选；传输错误和超时立即中止整条链
func fallbackRequest(ctx context.Context, r Requester, candidates ...candidate) (json.RawMessage, error) {
	var lastErr error
	for _, c := range candidates {
		payload, err := r.Request(ctx, c.uri, c.payload)
		if err == nil {
			return payload, nil
		}
		if !errors.Is(err, session.ErrCommandFailed) && !errors.Is(err, session.ErrRequestFailed) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// VolumeStatus is the parsed volume state of a TV.
type VolumeStatus struct {
	Volume int  `json:"volume"`
	Muted  bool `json:"muted"`
}

// GetVolume reads the current volume, trying the service endpoint first.
func GetVolume(ctx context.Context, r Requester) (*VolumeStatus, error) {
	payload, err := fallbackRequest(ctx, r,
		candidate{uri: ssap.URIAudioSvcGetVolume},
		candidate{uri: ssap.URIAudioGetVolume},
	)
	if err != nil {
		return nil, err
	}

	// 两代固件的响应形状不同：新固件嵌在 volumeStatus 里
	var v struct {
		Volume       int  `json:"volume"`
		Muted        bool `json:"muted"`
		VolumeStatus *struct {
			Volume     int  `json:"volume"`
			MuteStatus bool `json:"muteStatus"`
		} `json:"volumeStatus"`
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("parse volume payload: %w", err)
	}
	if v.VolumeStatus != nil {
		return &VolumeStatus{Volume: v.VolumeStatus.Volume, Muted: v.VolumeStatus.MuteStatus}, nil
	}
	return &VolumeStatus{Volume: v.Volume, Muted: v.Muted}, nil
}

// SetVolume sets an absolute volume level.
func SetVolume(ctx context.Context, r Requester, level int) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("volume out of range: %d", level)
	}
	_, err := fallbackRequest(ctx, r,
		candidate{uri: ssap.URIAudioSvcSetVolume, payload: map[string]int{"volume": level}},
		candidate{uri: ssap.URIAudioSetVolume, payload: map[string]int{"volume": level}},
	)
	return err
}

// VolumeUp raises the volume one step.
func VolumeUp(ctx context.Context, r Requester) error {
	_, err := r.Request(ctx, ssap.URIAudioVolumeUp, nil)
	return err
}

// VolumeDown lowers the volume one step.
func VolumeDown(ctx context.Context, r Requester) error {
	_, err := r.Request(ctx, ssap.URIAudioVolumeDown, nil)
	return err
}

// SetMute sets the mute state.
func SetMute(ctx context.Context, r Requester, muted bool) error {
	_, err := r.Request(ctx, ssap.URIAudioSetMute, map[string]bool{"mute": muted})
	return err
}

// ChannelInfo is the parsed current-channel state.
type ChannelInfo struct {
	ChannelNumber string `json:"channelNumber"`
	ChannelName   string `json:"channelName"`
	ChannelID     string `json:"channelId"`
}

// CurrentChannel reads the channel currently tuned.
func CurrentChannel(ctx context.Context, r Requester) (*ChannelInfo, error) {
	payload, err := r.Request(ctx, ssap.URICurrentChannel, nil)
	if err != nil {
		return nil, err
	}
	var c ChannelInfo
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("parse channel payload: %w", err)
	}
	return &c, nil
}

// ChannelUp tunes one channel up.
func ChannelUp(ctx context.Context, r Requester) error {
	_, err := r.Request(ctx, ssap.URIChannelUp, nil)
	return err
}

// ChannelDown tunes one channel down.
func ChannelDown(ctx context.Context, r Requester) error {
	_, err := r.Request(ctx, ssap.URIChannelDown, nil)
	return err
}

// OpenChannel tunes to a channel by number.
func OpenChannel(ctx context.Context, r Requester, number string) error {
	_, err := r.Request(ctx, ssap.URIOpenChannel, map[string]string{"channelNumber": number})
	return err
}

// AppInfo is one installed application.
type AppInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ListApps enumerates installed applications.
func ListApps(ctx context.Context, r Requester) ([]AppInfo, error) {
	payload, err := fallbackRequest(ctx, r,
		candidate{uri: ssap.URIListApps},
		candidate{uri: ssap.URILaunchPoints},
	)
	if err != nil {
		return nil, err
	}
	var body struct {
		Apps         []AppInfo `json:"apps"`
		LaunchPoints []AppInfo `json:"launchPoints"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("parse app list: %w", err)
	}
	if len(body.Apps) > 0 {
		return body.Apps, nil
	}
	return body.LaunchPoints, nil
}

// LaunchApp starts an application, with optional launch parameters.
func LaunchApp(ctx context.Context, r Requester, appID string, params map[string]any) error {
	body := map[string]any{"id": appID}
	if len(params) > 0 {
		body["params"] = params
	}
	_, err := r.Request(ctx, ssap.URILaunchApp, body)
	return err
}

// ForegroundApp reports the application currently in the foreground.
func ForegroundApp(ctx context.Context, r Requester) (string, error) {
	payload, err := r.Request(ctx, ssap.URIForegroundApp, nil)
	if err != nil {
		return "", err
	}
	var body struct {
		AppID string `json:"appId"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", fmt.Errorf("parse foreground payload: %w", err)
	}
	return body.AppID, nil
}

// Notify shows a toast notification on the TV.
func Notify(ctx context.Context, r Requester, message string) error {
	_, err := r.Request(ctx, ssap.URINotification, map[string]string{"message": message})
	return err
}

// PowerOff turns the TV off.
func PowerOff(ctx context.Context, r Requester) error {
	_, err := r.Request(ctx, ssap.URIPowerOff, nil)
	return err
}

// Screen toggles the panel without cutting power.
func Screen(ctx context.Context, r Requester, on bool) error {
	uri := ssap.URIScreenOff
	if on {
		uri = ssap.URIScreenOn
	}
	_, err := r.Request(ctx, uri, nil)
	return err
}

// mediaURIs maps API action names onto media-control endpoints.
var mediaURIs = map[string]string{
	"play":        ssap.URIMediaPlay,
	"pause":       ssap.URIMediaPause,
	"stop":        ssap.URIMediaStop,
	"rewind":      ssap.URIMediaRewind,
	"fastforward": ssap.URIMediaForward,
}

// ValidMediaAction reports whether action names a supported playback
// control. Action names are matched case-insensitively.
func ValidMediaAction(action string) bool {
	_, ok := mediaURIs[strings.ToLower(action)]
	return ok
}

// Media runs one media-control action.
func Media(ctx context.Context, r Requester, action string) error {
	uri, ok := mediaURIs[strings.ToLower(action)]
	if !ok {
		return fmt.Errorf("unknown media action: %q", action)
	}
	_, err := r.Request(ctx, uri, nil)
	return err
}

// PressButton sends a button over the pointer input channel.
func PressButton(ctx context.Context, r Requester, name string) error {
	return r.Button(ctx, name)
}

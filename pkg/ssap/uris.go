package ssap

// Service URIs exposed by the TV. Grouped by service.
const (
	// Pairing
	URISetPin = "ssap://pairing/setPin"

	// Audio
	URIAudioGetVolume  = "ssap://audio/getVolume"
	URIAudioSetVolume  = "ssap://audio/setVolume"
	URIAudioVolumeUp   = "ssap://audio/volumeUp"
	URIAudioVolumeDown = "ssap://audio/volumeDown"
	URIAudioSetMute    = "ssap://audio/setMute"
	URIAudioGetStatus  = "ssap://audio/getStatus"

	// 新款固件把音量服务挪到了 com.webos.service.audio，旧 URI 仍可能有效，
	// 命令层按先新后旧的顺序尝试
	URIAudioSvcGetVolume = "ssap://com.webos.service.audio/volume/getVolume"
	URIAudioSvcSetVolume = "ssap://com.webos.service.audio/volume/setVolume"

	// TV / channels
	URIChannelUp      = "ssap://tv/channelUp"
	URIChannelDown    = "ssap://tv/channelDown"
	URIOpenChannel    = "ssap://tv/openChannel"
	URICurrentChannel = "ssap://tv/getCurrentChannel"
	URIChannelList    = "ssap://tv/getChannelList"
	URIExternalInputs = "ssap://tv/getExternalInputList"
	URISwitchInput    = "ssap://tv/switchInput"

	// Applications
	URIListApps      = "ssap://com.webos.applicationManager/listApps"
	URILaunchApp     = "ssap://com.webos.applicationManager/launch"
	URIForegroundApp = "ssap://com.webos.applicationManager/getForegroundAppInfo"
	URICloseApp      = "ssap://com.webos.applicationManager/close"
	URILaunchPoints  = "ssap://com.webos.applicationManager/listLaunchPoints"

	// System
	URIPowerOff     = "ssap://system/turnOff"
	URIScreenOff    = "ssap://com.webos.service.tvpower/power/turnOffScreen"
	URIScreenOn     = "ssap://com.webos.service.tvpower/power/turnOnScreen"
	URIPowerState   = "ssap://com.webos.service.tvpower/power/getPowerState"
	URISystemInfo   = "ssap://system/getSystemInfo"
	URINotification = "ssap://system.notifications/createToast"

	// Media
	URIMediaPlay    = "ssap://media.controls/play"
	URIMediaPause   = "ssap://media.controls/pause"
	URIMediaStop    = "ssap://media.controls/stop"
	URIMediaRewind  = "ssap://media.controls/rewind"
	URIMediaForward = "ssap://media.controls/fastForward"

	// Pointer input: returns a one-time socket URL for the button channel
	URIPointerSocket = "ssap://com.webos.service.networkinput/getPointerInputSocket"
)

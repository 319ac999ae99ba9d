package relay

import "github.com/Sentini2/edusp/internal/session"

// Events emitted by agents.
const (
	EventFrame       = "frame"
	EventScreenFrame = "screen-frame"
	EventLocation    = "location"
	EventHWInfo      = "hwinfo"
)

// Events emitted by controllers.
const (
	EventRequestStream = "request-stream"
	EventStopStream    = "stop-stream"
	EventRequestScreen = "request-screen"
	EventStopScreen    = "stop-screen"
	EventRequestHWInfo = "request-hwinfo"
	EventShutdown      = "shutdown"
	EventReboot        = "reboot"
	EventCrashBrowser  = "crash-browser"
	EventStopAudio     = "stop-audio"
	EventMouse         = "mouse-event"
	EventKey           = "key-event"
	EventReadyAudio    = "ready-audio"
	EventCustomAudio   = "custom-audio"
)

// Events the hub sends to agents on its own behalf.
const (
	EventID        = "id"
	EventPlayAudio = "play-audio"
)

// channelEvents maps a stream channel to the event name its payloads carry.
var channelEvents = map[session.Channel]string{
	session.ChannelVideo:  EventFrame,
	session.ChannelScreen: EventScreenFrame,
}

// bareCommands are forwarded to the agent verbatim with no payload.
var bareCommands = map[string]bool{
	EventRequestHWInfo: true,
	EventShutdown:      true,
	EventReboot:        true,
	EventCrashBrowser:  true,
	EventStopAudio:     true,
}

package pubsub

// ChannelPresence carries online/offline transitions of relay users.
const ChannelPresence = "presence:updates"

// Event types published on ChannelPresence.
const (
	EventUserOnline  = "user_online"
	EventUserOffline = "user_offline"
)

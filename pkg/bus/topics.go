package bus

// Topics published on the application bus.
const (
	// TopicEnvelope carries every events.Envelope flowing through the
	// system, regardless of kind.
	TopicEnvelope = "events.envelope"

	// TopicTagScanned carries decoded events.TagScan payloads.
	TopicTagScanned = "events.tag_scanned"

	// TopicTheftAlert carries decoded events.TheftAlert payloads.
	TopicTheftAlert = "events.theft_alert"

	// TopicConnState carries realtime.StateChange values from the
	// upstream channel.
	TopicConnState = "conn.state"
)

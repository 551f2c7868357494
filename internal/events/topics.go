package events

const (
	TopicConnStatus    = "conn.status"
	TopicRawFrameIn    = "raw.frame.in"
	TopicRawFrameOut   = "raw.frame.out"
	TopicMenuStructure = "menu.structure"
	TopicMenuValue     = "menu.value"
	TopicMenuAck       = "menu.ack"
	TopicDialog        = "menu.dialog"
	TopicBootstrap     = "menu.bootstrap"
	TopicSendResult    = "menu.send"
)

// AllTopics lists every topic published by the connector and controller.
var AllTopics = []string{
	TopicConnStatus,
	TopicRawFrameIn,
	TopicRawFrameOut,
	TopicMenuStructure,
	TopicMenuValue,
	TopicMenuAck,
	TopicDialog,
	TopicBootstrap,
	TopicSendResult,
}

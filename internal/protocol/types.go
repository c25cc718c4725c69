package protocol

const (
	// MaxMsgLen bounds every frame exchanged with a transport.
	MaxMsgLen = 1<<16 - 1

	// DefaultPort is the default application port for the reference protocol.
	DefaultPort uint16 = 9735
)

package ir

// Version constants for the persisted schema and engine.
const (
	// SchemaVersion is the version of the node and message encoding.
	SchemaVersion = "1"

	// EngineVersion is the stratagem engine version.
	EngineVersion = "0.1.0"
)

package co2kit

// Sink is the destination for decoded, deduplicated readings. Exactly one
// sink exists per process lifetime, chosen once at construction and never
// switched at runtime.
type Sink interface {
	// Write delivers one formatted reading. A returned error means the value
	// did not reach the destination; callers must not commit the cache then.
	Write(r Reading, value string) error
	// Heartbeat records a liveness timestamp alongside the metric values.
	// Sinks without a heartbeat concept implement it as a no-op.
	Heartbeat() error
	Close() error
	String() string
}

// discardSink is used when neither a data directory nor a telemetry database
// is configured: readings are still echoed to the console and the dedup cache
// still advances, but nothing is persisted.
type discardSink struct{}

func (discardSink) Write(Reading, string) error { return nil }
func (discardSink) Heartbeat() error            { return nil }
func (discardSink) Close() error                { return nil }
func (discardSink) String() string              { return "discard" }

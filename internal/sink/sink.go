package sink

// Event is a flat record ready to be persisted. Keys are column names.
//
// Every event must carry a "job_id" key; back-ends use it to group records
// of the same verification job.
type Event map[string]interface{}

// Sink defines the behaviour expected from any storage back-end used to
// record job progress (CSV files for now).
//
// Implementations should be thread-safe if they will be accessed concurrently.
// Returning an error allows RetrySink to try again.
type Sink interface {
	// Write persists the provided event and returns an error if the operation
	// fails for any reason.
	Write(Event) error
	// Close flushes and releases underlying resources.
	Close() error
}

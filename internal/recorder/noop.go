package recorder

// NoopRecorder is used when SQLite is not configured or fails to open.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordCycle(_ *CycleEvent) error     { return nil }
func (n *NoopRecorder) RecordCommand(_ *CommandEvent) error { return nil }
func (n *NoopRecorder) RecordUpdate(_ *UpdateEvent) error   { return nil }
func (n *NoopRecorder) Close() error                        { return nil }

package emit

// NullEmitter discards every event. Zero overhead, safe for
// concurrent use.
type NullEmitter struct{}

func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

func (n *NullEmitter) Emit(event Event) {}

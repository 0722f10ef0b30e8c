package types

// ChatChannels bundles the channels the UI and the chat engine communicate
// over. The engine owns the channels and closes them on shutdown.
type ChatChannels struct {
	// Input carries user input and cancellation requests to the engine.
	Input chan *Input

	// Event carries engine events back to the UI.
	Event chan *ChatEvent

	// Shutdown is closed to request a graceful stop.
	Shutdown chan struct{}

	// Done is closed once the engine's event loop has fully stopped.
	Done chan struct{}
}

// NewChatChannels creates the channel set with the given buffer size for
// input and events.
func NewChatChannels(bufferSize int) *ChatChannels {
	return &ChatChannels{
		Input:    make(chan *Input, bufferSize),
		Event:    make(chan *ChatEvent, bufferSize),
		Shutdown: make(chan struct{}),
		Done:     make(chan struct{}),
	}
}

// Close tears the channels down after the event loop exits.
func (c *ChatChannels) Close() {
	close(c.Event)
	close(c.Done)
}

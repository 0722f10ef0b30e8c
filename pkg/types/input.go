package types

// InputType defines the type of input being sent to the chat engine.
type InputType string

const (
	InputTypeCancel    InputType = "cancel"     // InputTypeCancel indicates a cancellation request.
	InputTypeUserInput InputType = "user_input" // InputTypeUserInput indicates a text message from the user.
)

// Input represents input sent from the UI layer to the chat engine.
type Input struct {
	// Metadata holds optional additional information about the input.
	Metadata map[string]interface{}

	// Content is the text content for user input.
	Content string

	// BranchID is the branch the input targets. Empty means the active branch.
	BranchID string

	// Type indicates the kind of input.
	Type InputType
}

// NewCancelInput creates a new cancellation input.
func NewCancelInput() *Input {
	return &Input{Type: InputTypeCancel}
}

// NewUserInput creates a new user text input.
func NewUserInput(content string) *Input {
	return &Input{Type: InputTypeUserInput, Content: content}
}

// WithBranch targets the input at a specific branch and returns it for chaining.
func (i *Input) WithBranch(branchID string) *Input {
	i.BranchID = branchID
	return i
}

// IsCancel returns true if this is a cancellation input.
func (i *Input) IsCancel() bool {
	return i.Type == InputTypeCancel
}

// IsUserInput returns true if this is a user text input.
func (i *Input) IsUserInput() bool {
	return i.Type == InputTypeUserInput
}

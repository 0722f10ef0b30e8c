package chat

import "errors"

var (
	// ErrInvalidBranch indicates an unknown branch id. Caller bug.
	ErrInvalidBranch = errors.New("chat: invalid branch")

	// ErrInvalidRole indicates a message role outside the permitted set. Caller bug.
	ErrInvalidRole = errors.New("chat: invalid role")

	// ErrIndexOutOfRange indicates a fork index past the end of the source
	// branch's effective history. Caller bug.
	ErrIndexOutOfRange = errors.New("chat: index out of range")

	// ErrBranchHasChildren indicates an attempt to delete a branch that other
	// branches still fork from.
	ErrBranchHasChildren = errors.New("chat: branch has children")

	// ErrNotFound indicates an unknown conversation id.
	ErrNotFound = errors.New("chat: conversation not found")
)

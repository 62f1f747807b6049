package domain

import "errors"

var (
	// ErrRecipientRequired send-message without recipientId
	ErrRecipientRequired = errors.New("recipientId is required")
	// ErrSelfMessage sender and recipient are the same user
	ErrSelfMessage = errors.New("cannot send a message to yourself")
	// ErrEmptyContent content is blank after trimming
	ErrEmptyContent = errors.New("message content is required")
	// ErrContentTooLong content exceeds the configured limit
	ErrContentTooLong = errors.New("message content is too long")
	// ErrUnknownRecipient recipient is in no role collection and no fallback is configured
	ErrUnknownRecipient = errors.New("recipient not found")
	// ErrUnknownEvent event name not part of the protocol
	ErrUnknownEvent = errors.New("unknown event")
	// ErrInvalidPayload event data failed to decode or validate
	ErrInvalidPayload = errors.New("invalid event payload")
)

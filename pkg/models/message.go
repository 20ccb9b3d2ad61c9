package models

import (
	"strings"
	"time"
)

// MessageKind classifies a message within a task conversation.
type MessageKind string

const (
	// MessageKindRequest is a directive sent by the coordinator.
	MessageKindRequest MessageKind = "request"
	// MessageKindResponse is a result produced by the assignee.
	MessageKindResponse MessageKind = "response"
	// MessageKindEvaluation is the coordinator's verdict on a response.
	MessageKindEvaluation MessageKind = "evaluation"
)

// Valid returns true if the kind is a known value.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindRequest, MessageKindResponse, MessageKindEvaluation:
		return true
	default:
		return false
	}
}

// Message is one immutable entry of a conversation.
type Message struct {
	// ID is the unique identifier for this message.
	ID string `json:"id"`
	// ConversationID is the conversation the message belongs to.
	ConversationID string `json:"conversation_id"`
	// Sequence is the 1-based position within the conversation.
	Sequence int `json:"sequence"`
	// SenderRole is the role that produced the message.
	SenderRole Role `json:"sender_role"`
	// RecipientRole is the role the message is addressed to.
	RecipientRole Role `json:"recipient_role"`
	// Kind classifies the message.
	Kind MessageKind `json:"kind"`
	// InReplyTo is the ID of the message this one answers, if any.
	InReplyTo string `json:"in_reply_to,omitempty"`
	// Content is the message text.
	Content string `json:"content"`
	// CreatedAt is when the message was appended.
	CreatedAt time.Time `json:"created_at"`
}

// Verdict is the coordinator's decision on a submitted result.
type Verdict string

const (
	// VerdictAccept accepts the result as the task's artifact.
	VerdictAccept Verdict = "ACCEPT"
	// VerdictRevise asks the assignee for another attempt.
	VerdictRevise Verdict = "REVISE"
)

// Valid returns true if the verdict is a known value.
func (v Verdict) Valid() bool {
	return v == VerdictAccept || v == VerdictRevise
}

// Evaluation pairs a verdict with the coordinator's feedback.
type Evaluation struct {
	Verdict  Verdict `json:"verdict"`
	Feedback string  `json:"feedback"`
}

// String renders the evaluation the way it is stored in a conversation.
func (e Evaluation) String() string {
	var b strings.Builder
	b.WriteString("VERDICT: ")
	b.WriteString(string(e.Verdict))
	if e.Feedback != "" {
		b.WriteString("\nFEEDBACK: ")
		b.WriteString(e.Feedback)
	}
	return b.String()
}

package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Sender classifies who produced a transcript entry.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderBot
}

// Content is either plain text or a structured JSON value. Structured values
// keep the raw bytes the server sent so key order survives rendering.
type Content struct {
	Text string
	JSON json.RawMessage
}

func TextContent(s string) Content {
	return Content{Text: s}
}

func StructuredContent(raw json.RawMessage) Content {
	return Content{JSON: bytes.Clone(raw)}
}

func (c Content) Structured() bool {
	return c.JSON != nil
}

// Entry is one rendered unit of the transcript. Entries are never mutated
// after they are appended.
type Entry struct {
	ID        string
	Seq       int
	Sender    Sender
	Content   Content
	CreatedAt time.Time
}

// ChatRequest is the body POSTed to the chat endpoint.
type ChatRequest struct {
	Message     string `json:"message"`
	ProjectName string `json:"project_name,omitempty"`
}

// ChatReply is the endpoint's reply. Both fields are kept raw: response may
// be a scalar or a sequence, and either field may be any JSON value.
type ChatReply struct {
	Response json.RawMessage `json:"response,omitempty"`
	Error    json.RawMessage `json:"error,omitempty"`
}

// DataSourceRequest registers a project's schema with the backend.
type DataSourceRequest struct {
	ProjectName string `json:"project_name,omitempty"`
}

type DataSourceReply struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

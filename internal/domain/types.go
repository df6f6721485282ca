package domain

import "time"

type PetID string
type RequestID string
type EntryID string

type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleProcessing Role = "processing"
)

// ConnectionHealth is what the UI shows next to the conversation.
type ConnectionHealth string

const (
	HealthConnected ConnectionHealth = "connected"
	HealthPolling   ConnectionHealth = "polling"
)

// Source names the delivery path that observed an answer.
type Source string

const (
	SourcePrimary Source = "primary"
	SourceBackup  Source = "backup"
	SourcePoll    Source = "poll"
	SourceDirect  Source = "direct"
	SourceHistory Source = "history"
)

type Timestamp = time.Time

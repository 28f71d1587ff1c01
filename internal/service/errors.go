package service

import (
	"errors"

	"modeld/internal/runtime"
	"modeld/internal/store"
)

var (
	// ErrServiceNotInitialized is returned by Global before InitGlobal ran.
	ErrServiceNotInitialized = errors.New("model service not initialized")

	// ErrModelUnavailable means the target worker is absent or has exited;
	// its mailbox no longer accepts requests.
	ErrModelUnavailable = errors.New("model worker unavailable")

	// ErrTaskNotSpawned means a prompt named a task the worker has never
	// materialized.
	ErrTaskNotSpawned = errors.New("task not spawned")

	// ErrNoDefaultModel means a task uses the "default" sentinel but no
	// default model is nominated for the kind.
	ErrNoDefaultModel = errors.New("task needs default model but no default set")

	// ErrRemoteAPI wraps transport or API failures from a remote LLM.
	ErrRemoteAPI = errors.New("error connecting to remote LLM API")

	// ErrStreamNotFound means the transcription stream id is unknown.
	ErrStreamNotFound = errors.New("transcription stream not found")

	// ErrStreamClosed means the stream exists but its pipeline has stopped
	// accepting samples.
	ErrStreamClosed = errors.New("transcription stream closed")

	// ErrSessionCrashed means a stream's pipeline died before it could be
	// closed cooperatively.
	ErrSessionCrashed = errors.New("transcription session crashed")

	// Re-exported kinds so callers can match every failure against this
	// package alone.
	ErrModelNotFound      = store.ErrModelNotFound
	ErrTaskNotFound       = store.ErrTaskNotFound
	ErrUnknownModelSource = runtime.ErrUnknownModelSource
	ErrRemoteNoChoice     = runtime.ErrNoChoice
)

// Package protocol defines the JSON text frames exchanged between a ferry
// client and the relay over a single websocket connection. Client frames
// carry an "action" discriminator, server frames an "event" discriminator.
// The set of variants is closed: unknown discriminators and structurally
// invalid frames are rejected here, at the boundary, never deeper in the
// handlers.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Action identifies a client → server frame.
type Action string

const (
	ActionAuth           Action = "auth"
	ActionStart          Action = "start"
	ActionChunk          Action = "chunk"
	ActionPause          Action = "pause"
	ActionResume         Action = "resume"
	ActionStop           Action = "stop"
	ActionComplete       Action = "complete"
	ActionDownloadStart  Action = "download-start"
	ActionDownloadPause  Action = "download-pause"
	ActionDownloadResume Action = "download-resume"
	ActionDownloadStop   Action = "download-stop"
)

// Event identifies a server → client frame.
type Event string

const (
	EventStartAck         Event = "start-ack"
	EventProgress         Event = "progress"
	EventPauseAck         Event = "pause-ack"
	EventResumeAck        Event = "resume-ack"
	EventStopAck          Event = "stop-ack"
	EventOffsetMismatch   Event = "offset-mismatch"
	EventCompleteAck      Event = "complete-ack"
	EventError            Event = "error"
	EventDownloadStartAck Event = "download-start-ack"
	EventDownloadInfo     Event = "download-info"
	EventDownloadProgress Event = "download-progress"
	EventDownloadComplete Event = "download-complete"
	EventDownloadError    Event = "download-error"
)

// Frame parse errors. ErrMalformedFrame and ErrUnknownAction are protocol
// errors: the router logs them and drops the frame without disconnecting.
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownAction  = errors.New("unknown action")
	ErrUnknownEvent   = errors.New("unknown event")
)

var fileIDPattern = regexp.MustCompile(`^[a-zA-Z0-9\-_]+$`)

// ValidateFileID checks that a client-chosen file identifier is non-empty,
// within length limits and contains only path-safe characters. File IDs are
// embedded verbatim in staging file names, so the character set matters.
func ValidateFileID(id string) error {
	if id == "" {
		return fmt.Errorf("fileId is required")
	}
	if len(id) > MaxFileIDLen {
		return fmt.Errorf("fileId too long: %d > %d", len(id), MaxFileIDLen)
	}
	if !fileIDPattern.MatchString(id) {
		return fmt.Errorf("fileId contains invalid characters")
	}
	return nil
}

// ClientMessage is implemented by every frame a client may send.
type ClientMessage interface {
	isClient()
}

// AuthFrame must be the first frame on a new connection.
type AuthFrame struct {
	Action Action `json:"action"`
	Token  string `json:"token"`
}

// StartFrame opens or resumes an upload session.
type StartFrame struct {
	Action   Action `json:"action"`
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	FileSize uint64 `json:"fileSize"`
	FolderID string `json:"folderId,omitempty"`
}

// ChunkFrame carries one run of file bytes at a declared offset. Data is
// base64 on the wire; encoding/json decodes it into raw bytes.
type ChunkFrame struct {
	Action Action `json:"action"`
	FileID string `json:"fileId"`
	Offset uint64 `json:"offset"`
	Data   []byte `json:"data"`
}

// PauseFrame suspends an upload session.
type PauseFrame struct {
	Action Action `json:"action"`
	FileID string `json:"fileId"`
}

// ResumeFrame reactivates a paused upload session.
type ResumeFrame struct {
	Action Action `json:"action"`
	FileID string `json:"fileId"`
}

// StopFrame aborts an upload session and discards its staging file.
type StopFrame struct {
	Action Action `json:"action"`
	FileID string `json:"fileId"`
}

// CompleteFrame asks the relay to forward a fully staged file.
type CompleteFrame struct {
	Action Action `json:"action"`
	FileID string `json:"fileId"`
}

// DownloadStartFrame asks the relay to fetch a remote URL.
type DownloadStartFrame struct {
	Action   Action `json:"action"`
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

// DownloadPauseFrame suspends a server-side download.
type DownloadPauseFrame struct {
	Action    Action `json:"action"`
	SessionID string `json:"sessionId"`
}

// DownloadResumeFrame resumes a paused server-side download.
type DownloadResumeFrame struct {
	Action    Action `json:"action"`
	SessionID string `json:"sessionId"`
}

// DownloadStopFrame aborts a server-side download and deletes the partial.
type DownloadStopFrame struct {
	Action    Action `json:"action"`
	SessionID string `json:"sessionId"`
}

func (AuthFrame) isClient()           {}
func (StartFrame) isClient()          {}
func (ChunkFrame) isClient()          {}
func (PauseFrame) isClient()          {}
func (ResumeFrame) isClient()         {}
func (StopFrame) isClient()           {}
func (CompleteFrame) isClient()       {}
func (DownloadStartFrame) isClient()  {}
func (DownloadPauseFrame) isClient()  {}
func (DownloadResumeFrame) isClient() {}
func (DownloadStopFrame) isClient()   {}

// Frame constructors used by the client driver.

func NewAuthFrame(token string) AuthFrame {
	return AuthFrame{Action: ActionAuth, Token: token}
}

func NewStartFrame(fileID, fileName string, fileSize uint64, folderID string) StartFrame {
	return StartFrame{Action: ActionStart, FileID: fileID, FileName: fileName, FileSize: fileSize, FolderID: folderID}
}

func NewChunkFrame(fileID string, offset uint64, data []byte) ChunkFrame {
	return ChunkFrame{Action: ActionChunk, FileID: fileID, Offset: offset, Data: data}
}

func NewPauseFrame(fileID string) PauseFrame {
	return PauseFrame{Action: ActionPause, FileID: fileID}
}

func NewResumeFrame(fileID string) ResumeFrame {
	return ResumeFrame{Action: ActionResume, FileID: fileID}
}

func NewStopFrame(fileID string) StopFrame {
	return StopFrame{Action: ActionStop, FileID: fileID}
}

func NewCompleteFrame(fileID string) CompleteFrame {
	return CompleteFrame{Action: ActionComplete, FileID: fileID}
}

func NewDownloadStartFrame(url, filename string) DownloadStartFrame {
	return DownloadStartFrame{Action: ActionDownloadStart, URL: url, Filename: filename}
}

func NewDownloadPauseFrame(sessionID string) DownloadPauseFrame {
	return DownloadPauseFrame{Action: ActionDownloadPause, SessionID: sessionID}
}

func NewDownloadResumeFrame(sessionID string) DownloadResumeFrame {
	return DownloadResumeFrame{Action: ActionDownloadResume, SessionID: sessionID}
}

func NewDownloadStopFrame(sessionID string) DownloadStopFrame {
	return DownloadStopFrame{Action: ActionDownloadStop, SessionID: sessionID}
}

// ParseClient decodes and validates one inbound client frame. The error is
// ErrMalformedFrame or ErrUnknownAction (possibly wrapped) for anything the
// relay should log and drop.
func ParseClient(data []byte) (ClientMessage, error) {
	var env struct {
		Action Action `json:"action"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch env.Action {
	case ActionAuth:
		f := &AuthFrame{}
		if err := unmarshalFrame(data, f); err != nil {
			return nil, err
		}
		if f.Token == "" {
			return nil, fmt.Errorf("%w: auth without token", ErrMalformedFrame)
		}
		return f, nil

	case ActionStart:
		f := &StartFrame{}
		if err := unmarshalFrame(data, f); err != nil {
			return nil, err
		}
		if err := ValidateFileID(f.FileID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if f.FileName == "" {
			return nil, fmt.Errorf("%w: start without fileName", ErrMalformedFrame)
		}
		if len(f.FileName) > MaxFileNameLen {
			return nil, fmt.Errorf("%w: fileName too long", ErrMalformedFrame)
		}
		return f, nil

	case ActionChunk:
		f := &ChunkFrame{}
		if err := unmarshalFrame(data, f); err != nil {
			return nil, err
		}
		if err := ValidateFileID(f.FileID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if len(f.Data) == 0 {
			return nil, fmt.Errorf("%w: chunk without data", ErrMalformedFrame)
		}
		if len(f.Data) > MaxChunkSize {
			return nil, fmt.Errorf("%w: chunk of %d bytes exceeds %d", ErrMalformedFrame, len(f.Data), MaxChunkSize)
		}
		return f, nil

	case ActionPause:
		f := &PauseFrame{}
		if err := unmarshalControl(data, f, &f.FileID); err != nil {
			return nil, err
		}
		return f, nil

	case ActionResume:
		f := &ResumeFrame{}
		if err := unmarshalControl(data, f, &f.FileID); err != nil {
			return nil, err
		}
		return f, nil

	case ActionStop:
		f := &StopFrame{}
		if err := unmarshalControl(data, f, &f.FileID); err != nil {
			return nil, err
		}
		return f, nil

	case ActionComplete:
		f := &CompleteFrame{}
		if err := unmarshalControl(data, f, &f.FileID); err != nil {
			return nil, err
		}
		return f, nil

	case ActionDownloadStart:
		f := &DownloadStartFrame{}
		if err := unmarshalFrame(data, f); err != nil {
			return nil, err
		}
		if f.URL == "" {
			return nil, fmt.Errorf("%w: download-start without url", ErrMalformedFrame)
		}
		return f, nil

	case ActionDownloadPause:
		f := &DownloadPauseFrame{}
		if err := unmarshalControl(data, f, &f.SessionID); err != nil {
			return nil, err
		}
		return f, nil

	case ActionDownloadResume:
		f := &DownloadResumeFrame{}
		if err := unmarshalControl(data, f, &f.SessionID); err != nil {
			return nil, err
		}
		return f, nil

	case ActionDownloadStop:
		f := &DownloadStopFrame{}
		if err := unmarshalControl(data, f, &f.SessionID); err != nil {
			return nil, err
		}
		return f, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Action)
	}
}

func unmarshalFrame(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

// unmarshalControl decodes a single-identifier frame and requires the
// identifier to be present.
func unmarshalControl(data []byte, v any, id *string) error {
	if err := unmarshalFrame(data, v); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: missing identifier", ErrMalformedFrame)
	}
	return nil
}

// ServerMessage is implemented by every frame the relay may send.
type ServerMessage interface {
	isServer()
}

// StartAck reports the adopted offset for an upload session.
type StartAck struct {
	Event  Event  `json:"event"`
	FileID string `json:"fileId"`
	Offset uint64 `json:"offset"`
}

// Progress reports the authoritative received byte count.
type Progress struct {
	Event   Event   `json:"event"`
	FileID  string  `json:"fileId"`
	Offset  uint64  `json:"offset"`
	Percent float64 `json:"percent"`
}

// PauseAck confirms a pause at the reported offset.
type PauseAck struct {
	Event  Event  `json:"event"`
	FileID string `json:"fileId"`
	Offset uint64 `json:"offset"`
}

// ResumeAck confirms a resume at the reported offset.
type ResumeAck struct {
	Event  Event  `json:"event"`
	FileID string `json:"fileId"`
	Offset uint64 `json:"offset"`
}

// StopAck confirms session teardown.
type StopAck struct {
	Event  Event  `json:"event"`
	FileID string `json:"fileId"`
}

// OffsetMismatch tells the client to rewind to the expected offset.
type OffsetMismatch struct {
	Event    Event  `json:"event"`
	FileID   string `json:"fileId"`
	Expected uint64 `json:"expected"`
}

// CompleteAck reports successful forwarding and the destination path.
type CompleteAck struct {
	Event    Event  `json:"event"`
	FileID   string `json:"fileId"`
	FilePath string `json:"filePath"`
}

// ErrorEvent reports a non-fatal per-session or per-frame failure.
type ErrorEvent struct {
	Event  Event  `json:"event"`
	FileID string `json:"fileId,omitempty"`
	Error  string `json:"error"`
}

// DownloadStartAck confirms a download session was created.
type DownloadStartAck struct {
	Event     Event  `json:"event"`
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	Filename  string `json:"filename"`
}

// DownloadInfo reports a download status transition.
type DownloadInfo struct {
	Event           Event  `json:"event"`
	SessionID       string `json:"sessionId"`
	Status          string `json:"status"`
	Filename        string `json:"filename"`
	TotalSize       uint64 `json:"totalSize"`
	DownloadedBytes uint64 `json:"downloadedBytes"`
}

// DownloadProgress reports download advancement.
type DownloadProgress struct {
	Event           Event   `json:"event"`
	SessionID       string  `json:"sessionId"`
	DownloadedBytes uint64  `json:"downloadedBytes"`
	TotalSize       uint64  `json:"totalSize"`
	Progress        float64 `json:"progress"`
}

// DownloadComplete reports the final saved artifact.
type DownloadComplete struct {
	Event     Event  `json:"event"`
	SessionID string `json:"sessionId"`
	FilePath  string `json:"filePath"`
	FileName  string `json:"fileName"`
}

// DownloadError reports a download failure; the partial file is retained.
type DownloadError struct {
	Event     Event  `json:"event"`
	SessionID string `json:"sessionId"`
	Error     string `json:"error"`
}

func (StartAck) isServer()         {}
func (Progress) isServer()         {}
func (PauseAck) isServer()         {}
func (ResumeAck) isServer()        {}
func (StopAck) isServer()          {}
func (OffsetMismatch) isServer()   {}
func (CompleteAck) isServer()      {}
func (ErrorEvent) isServer()       {}
func (DownloadStartAck) isServer() {}
func (DownloadInfo) isServer()     {}
func (DownloadProgress) isServer() {}
func (DownloadComplete) isServer() {}
func (DownloadError) isServer()    {}

// Event constructors used by the relay.

func NewStartAck(fileID string, offset uint64) StartAck {
	return StartAck{Event: EventStartAck, FileID: fileID, Offset: offset}
}

func NewProgress(fileID string, offset, total uint64) Progress {
	return Progress{Event: EventProgress, FileID: fileID, Offset: offset, Percent: PercentOf(offset, total)}
}

func NewPauseAck(fileID string, offset uint64) PauseAck {
	return PauseAck{Event: EventPauseAck, FileID: fileID, Offset: offset}
}

func NewResumeAck(fileID string, offset uint64) ResumeAck {
	return ResumeAck{Event: EventResumeAck, FileID: fileID, Offset: offset}
}

func NewStopAck(fileID string) StopAck {
	return StopAck{Event: EventStopAck, FileID: fileID}
}

func NewOffsetMismatch(fileID string, expected uint64) OffsetMismatch {
	return OffsetMismatch{Event: EventOffsetMismatch, FileID: fileID, Expected: expected}
}

func NewCompleteAck(fileID, filePath string) CompleteAck {
	return CompleteAck{Event: EventCompleteAck, FileID: fileID, FilePath: filePath}
}

func NewErrorEvent(fileID, message string) ErrorEvent {
	return ErrorEvent{Event: EventError, FileID: fileID, Error: message}
}

func NewDownloadStartAck(sessionID, url, filename string) DownloadStartAck {
	return DownloadStartAck{Event: EventDownloadStartAck, SessionID: sessionID, URL: url, Filename: filename}
}

func NewDownloadInfo(sessionID, status, filename string, total, downloaded uint64) DownloadInfo {
	return DownloadInfo{Event: EventDownloadInfo, SessionID: sessionID, Status: status, Filename: filename, TotalSize: total, DownloadedBytes: downloaded}
}

func NewDownloadProgress(sessionID string, downloaded, total uint64) DownloadProgress {
	return DownloadProgress{Event: EventDownloadProgress, SessionID: sessionID, DownloadedBytes: downloaded, TotalSize: total, Progress: PercentOf(downloaded, total)}
}

func NewDownloadComplete(sessionID, filePath, fileName string) DownloadComplete {
	return DownloadComplete{Event: EventDownloadComplete, SessionID: sessionID, FilePath: filePath, FileName: fileName}
}

func NewDownloadError(sessionID, message string) DownloadError {
	return DownloadError{Event: EventDownloadError, SessionID: sessionID, Error: message}
}

// ParseServer decodes one inbound server frame on the client side.
func ParseServer(data []byte) (ServerMessage, error) {
	var env struct {
		Event Event `json:"event"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var msg ServerMessage
	switch env.Event {
	case EventStartAck:
		msg = &StartAck{}
	case EventProgress:
		msg = &Progress{}
	case EventPauseAck:
		msg = &PauseAck{}
	case EventResumeAck:
		msg = &ResumeAck{}
	case EventStopAck:
		msg = &StopAck{}
	case EventOffsetMismatch:
		msg = &OffsetMismatch{}
	case EventCompleteAck:
		msg = &CompleteAck{}
	case EventError:
		msg = &ErrorEvent{}
	case EventDownloadStartAck:
		msg = &DownloadStartAck{}
	case EventDownloadInfo:
		msg = &DownloadInfo{}
	case EventDownloadProgress:
		msg = &DownloadProgress{}
	case EventDownloadComplete:
		msg = &DownloadComplete{}
	case EventDownloadError:
		msg = &DownloadError{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if err := unmarshalFrame(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// PercentOf computes a completion percentage rounded to two decimals.
// A zero total reads as fully complete, matching the download engine's
// treatment of responses without Content-Length.
func PercentOf(part, total uint64) float64 {
	if total == 0 {
		return 100
	}
	p := float64(part) / float64(total) * 100
	return float64(int(p*100+0.5)) / 100
}

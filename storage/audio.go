// Package storage owns the binary audio payloads referenced by AUDIO
// messages. Files are write-once: never overwritten after upload, only
// deleted.
package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"carechat/errors"
)

const MaxAudioBytes = 10 << 20 // 10 MiB

const fallbackContentType = "audio/mpeg"

// allowedAudio is the upload allow-list, checked against the declared
// mime type before anything touches the disk.
var allowedAudio = map[string]struct{}{
	"audio/mpeg":  {},
	"audio/wav":   {},
	"audio/x-wav": {},
	"audio/mp4":   {},
	"audio/aac":   {},
	"audio/x-m4a": {},
	"audio/webm":  {},
	"audio/ogg":   {},
}

var safeExt = regexp.MustCompile(`^\.[a-zA-Z0-9]{1,8}$`)

// AttachmentRef is the handle handed to the message lifecycle once an
// upload succeeds. The message record stores the URL, never the bytes.
type AttachmentRef struct {
	ID              string `json:"id"`
	URL             string `json:"url"`
	MimeType        string `json:"mimeType"`
	SizeBytes       int64  `json:"sizeBytes"`
	DurationSeconds int    `json:"durationSeconds"`
}

type UploadRequest struct {
	Data            []byte
	MimeType        string
	Filename        string
	SenderID        string
	ReceiverID      string
	DurationSeconds int
}

// AudioStore validates, stores, and serves audio payloads under a single
// directory, decoupled from the message rows that reference them.
type AudioStore struct {
	dir string
	log *slog.Logger
}

func NewAudioStore(dir string, log *slog.Logger) (*AudioStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audio directory: %w", err)
	}
	return &AudioStore{dir: dir, log: log}, nil
}

// Upload validates the payload and writes it under a generated id. The
// id is independent of the client-supplied filename; only a sanitized
// extension survives, as a content-type hint for downloads.
func (s *AudioStore) Upload(req UploadRequest) (AttachmentRef, error) {
	if len(req.Data) == 0 {
		return AttachmentRef{}, errors.ErrEmptyFile
	}
	if _, ok := allowedAudio[req.MimeType]; !ok {
		return AttachmentRef{}, fmt.Errorf("%w: %q", errors.ErrUnsupportedMedia, req.MimeType)
	}
	if int64(len(req.Data)) > MaxAudioBytes {
		return AttachmentRef{}, fmt.Errorf("%w: %d bytes", errors.ErrPayloadTooLarge, len(req.Data))
	}

	id := uuid.New().String() + extensionOf(req.Filename)
	path := filepath.Join(s.dir, id)
	if err := os.WriteFile(path, req.Data, 0o644); err != nil {
		return AttachmentRef{}, fmt.Errorf("write audio file: %w", err)
	}
	s.log.Info("Audio attachment stored",
		"id", id, "size", len(req.Data), "sender", req.SenderID, "receiver", req.ReceiverID)

	return AttachmentRef{
		ID:              id,
		URL:             "/audio/download/" + id,
		MimeType:        req.MimeType,
		SizeBytes:       int64(len(req.Data)),
		DurationSeconds: req.DurationSeconds,
	}, nil
}

// Read returns the whole file and its content type. The type is sniffed
// from the bytes, falling back to audio/mpeg when detection fails.
func (s *AudioStore) Read(id string) ([]byte, string, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, "", fmt.Errorf("%w: attachment %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return nil, "", err
	}
	return data, s.contentType(data), nil
}

// Open hands out the file for range-addressable streaming.
func (s *AudioStore) Open(id string) (*os.File, os.FileInfo, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("%w: attachment %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

// Describe rebuilds the attachment reference for an already-uploaded
// file, so a send request only needs to carry the id and the duration.
func (s *AudioStore) Describe(id string, durationSeconds int) (AttachmentRef, error) {
	path, err := s.path(id)
	if err != nil {
		return AttachmentRef{}, err
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return AttachmentRef{}, fmt.Errorf("%w: attachment %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return AttachmentRef{}, err
	}
	ctype := fallbackContentType
	if detected, err := mimetype.DetectFile(path); err == nil && detected.String() != "application/octet-stream" {
		ctype = detected.String()
	}
	return AttachmentRef{
		ID:              id,
		URL:             "/audio/download/" + id,
		MimeType:        ctype,
		SizeBytes:       info.Size(),
		DurationSeconds: durationSeconds,
	}, nil
}

// ContentType sniffs the stored file's type without loading it fully,
// falling back to audio/mpeg when detection fails.
func (s *AudioStore) ContentType(id string) string {
	path, err := s.path(id)
	if err != nil {
		return fallbackContentType
	}
	detected, err := mimetype.DetectFile(path)
	if err != nil || detected.String() == "application/octet-stream" {
		return fallbackContentType
	}
	return detected.String()
}

// Remove deletes the file. A missing file is not an error: delete is
// best-effort and may race with the sweeper.
func (s *AudioStore) Remove(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Exists reports whether the attachment file is still on disk.
func (s *AudioStore) Exists(id string) bool {
	path, err := s.path(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// path rejects ids that try to escape the audio directory. Ids are
// server-generated, so anything with a separator is hostile input.
func (s *AudioStore) path(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("%w: attachment id %q", errors.ErrInvalidArgument, id)
	}
	return filepath.Join(s.dir, id), nil
}

func (s *AudioStore) contentType(data []byte) string {
	detected := mimetype.Detect(data)
	if detected == nil || detected.String() == "application/octet-stream" {
		return fallbackContentType
	}
	return detected.String()
}

func extensionOf(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if !safeExt.MatchString(ext) {
		return ""
	}
	return ext
}

// IDFromURL extracts the attachment id from a stored audio URL.
func IDFromURL(url string) string {
	idx := strings.LastIndex(url, "/")
	if idx < 0 {
		return url
	}
	return url[idx+1:]
}

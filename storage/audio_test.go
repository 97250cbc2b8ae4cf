package storage

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"carechat/errors"
)

func newTestStore(t *testing.T) *AudioStore {
	t.Helper()
	store, err := NewAudioStore(t.TempDir(), slog.Default())
	require.NoError(t, err)
	return store
}

func Test_Upload_Rejects_Empty_Payload(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	_, err := store.Upload(UploadRequest{MimeType: "audio/mpeg"})
	req.ErrorIs(err, errors.ErrEmptyFile)
}

func Test_Upload_Rejects_Unsupported_Media(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	_, err := store.Upload(UploadRequest{
		Data:     []byte("not audio at all"),
		MimeType: "text/plain",
		Filename: "notes.txt",
	})
	req.ErrorIs(err, errors.ErrUnsupportedMedia)
}

func Test_Upload_Rejects_Oversized_Payload(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	_, err := store.Upload(UploadRequest{
		Data:     bytes.Repeat([]byte{0xff}, 11<<20),
		MimeType: "audio/mpeg",
		Filename: "long.mp3",
	})
	req.ErrorIs(err, errors.ErrPayloadTooLarge)
}

func Test_Upload_Stores_Under_Generated_Id(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	data := bytes.Repeat([]byte{0x01}, 1<<20)
	ref, err := store.Upload(UploadRequest{
		Data:            data,
		MimeType:        "audio/aac",
		Filename:        "../../etc/evil voice note.m4a",
		SenderID:        "3",
		ReceiverID:      "7",
		DurationSeconds: 30,
	})
	req.NoError(err)
	req.NotContains(ref.ID, "/")
	req.NotContains(ref.ID, "..")
	req.Equal("/audio/download/"+ref.ID, ref.URL)
	req.Equal(int64(1<<20), ref.SizeBytes)
	req.Equal(30, ref.DurationSeconds)

	stored, _, err := store.Read(ref.ID)
	req.NoError(err)
	req.Equal(data, stored)
}

func Test_Read_Sniffs_Content_Type(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	// An MP3 frame header; detection should land on audio/mpeg anyway.
	data := append([]byte{0xff, 0xfb, 0x90, 0x64}, bytes.Repeat([]byte{0x00}, 512)...)
	ref, err := store.Upload(UploadRequest{Data: data, MimeType: "audio/mpeg", Filename: "clip.mp3"})
	req.NoError(err)

	_, contentType, err := store.Read(ref.ID)
	req.NoError(err)
	req.Equal("audio/mpeg", contentType)
}

func Test_Read_Unknown_Id(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	_, _, err := store.Read("missing.mp3")
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_Path_Traversal_Is_Rejected(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	for _, id := range []string{"../secret", "a/b.mp3", ".hidden", ""} {
		_, _, err := store.Read(id)
		req.Error(err, "id %q must be rejected", id)
	}
}

func Test_Remove_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	ref, err := store.Upload(UploadRequest{
		Data:     []byte("audio bytes"),
		MimeType: "audio/ogg",
		Filename: "clip.ogg",
	})
	req.NoError(err)
	req.True(store.Exists(ref.ID))

	req.NoError(store.Remove(ref.ID))
	req.False(store.Exists(ref.ID))
	// Second removal of a gone file is not an error.
	req.NoError(store.Remove(ref.ID))
}

func Test_Describe_Rebuilds_Reference(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	ref, err := store.Upload(UploadRequest{
		Data:     bytes.Repeat([]byte{0x02}, 2048),
		MimeType: "audio/wav",
		Filename: "note.wav",
	})
	req.NoError(err)

	described, err := store.Describe(ref.ID, 12)
	req.NoError(err)
	req.Equal(ref.URL, described.URL)
	req.Equal(int64(2048), described.SizeBytes)
	req.Equal(12, described.DurationSeconds)

	_, err = store.Describe("missing.wav", 1)
	req.ErrorIs(err, errors.ErrNotFound)
}

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/require"

	"carechat/storage"
)

// mp3Payload starts with an ID3 tag so content sniffing lands on
// audio/mpeg regardless of the padding.
func mp3Payload(size int) []byte {
	data := make([]byte, size)
	copy(data, "ID3\x04\x00\x00\x00\x00\x00\x00")
	for i := 10; i < size; i++ {
		data[i] = byte(i)
	}
	return data
}

func (ts *testServer) upload(t *testing.T, userID, filename, mimeType string, data []byte) (*http.Response, envelope) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("durationSeconds", "30"))
	require.NoError(t, writer.WriteField("receiverId", "7"))
	require.NoError(t, writer.Close())

	request, err := http.NewRequest(http.MethodPost, ts.server.URL+"/audio/upload", &body)
	require.NoError(t, err)
	token, err := ts.tokens.Generate(userID)
	require.NoError(t, err)
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Content-Type", writer.FormDataContentType())

	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	t.Cleanup(func() { _ = response.Body.Close() })

	var env envelope
	require.NoError(t, json.NewDecoder(response.Body).Decode(&env))
	return response, env
}

func Test_Audio_Upload_And_Download(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	payload := mp3Payload(1 << 20)

	response, env := ts.upload(t, "3", "../../voice note.mp3", "audio/mpeg", payload)
	req.Equal(http.StatusCreated, response.StatusCode)
	req.True(env.Success)

	var ref storage.AttachmentRef
	remarshal(t, env.Data, &ref)
	req.NotContains(ref.ID, "/")
	req.NotContains(ref.ID, "..")
	req.Equal("/audio/download/"+ref.ID, ref.URL)
	req.Equal(int64(len(payload)), ref.SizeBytes)
	req.Equal(30, ref.DurationSeconds)

	download, err := ts.get(t, "3", ref.URL, "")
	req.NoError(err)
	req.Equal(http.StatusOK, download.StatusCode)
	req.Equal("audio/mpeg", download.Header.Get("Content-Type"))
	body, err := io.ReadAll(download.Body)
	req.NoError(err)
	req.Equal(payload, body)
}

func Test_Audio_Stream_Honors_Range(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	payload := mp3Payload(4096)

	_, env := ts.upload(t, "3", "note.mp3", "audio/mpeg", payload)
	var ref storage.AttachmentRef
	remarshal(t, env.Data, &ref)
	streamURL := "/audio/stream/" + ref.ID

	// Plain GET: whole body, ranges advertised.
	full, err := ts.get(t, "3", streamURL, "")
	req.NoError(err)
	req.Equal(http.StatusOK, full.StatusCode)
	req.Equal("bytes", full.Header.Get("Accept-Ranges"))
	body, err := io.ReadAll(full.Body)
	req.NoError(err)
	req.Len(body, len(payload))

	// A bounded range yields exactly that span.
	partial, err := ts.get(t, "3", streamURL, "bytes=100-199")
	req.NoError(err)
	req.Equal(http.StatusPartialContent, partial.StatusCode)
	req.Equal(fmt.Sprintf("bytes 100-199/%d", len(payload)), partial.Header.Get("Content-Range"))
	body, err = io.ReadAll(partial.Body)
	req.NoError(err)
	req.Equal(payload[100:200], body)

	// An open-ended range runs to end of file.
	tail, err := ts.get(t, "3", streamURL, "bytes=4000-")
	req.NoError(err)
	req.Equal(http.StatusPartialContent, tail.StatusCode)
	req.Equal(fmt.Sprintf("bytes 4000-4095/%d", len(payload)), tail.Header.Get("Content-Range"))
	body, err = io.ReadAll(tail.Body)
	req.NoError(err)
	req.Equal(payload[4000:], body)

	// A suffix range addresses the final n bytes.
	suffix, err := ts.get(t, "3", streamURL, "bytes=-96")
	req.NoError(err)
	req.Equal(http.StatusPartialContent, suffix.StatusCode)
	req.Equal(fmt.Sprintf("bytes 4000-4095/%d", len(payload)), suffix.Header.Get("Content-Range"))
	body, err = io.ReadAll(suffix.Body)
	req.NoError(err)
	req.Equal(payload[4000:], body)

	// A suffix longer than the file yields the whole file as 206.
	whole, err := ts.get(t, "3", streamURL, "bytes=-9999999")
	req.NoError(err)
	req.Equal(http.StatusPartialContent, whole.StatusCode)
	req.Equal(fmt.Sprintf("bytes 0-4095/%d", len(payload)), whole.Header.Get("Content-Range"))

	// Past end of file: unsatisfiable.
	beyond, err := ts.get(t, "3", streamURL, "bytes=999999-")
	req.NoError(err)
	req.Equal(http.StatusRequestedRangeNotSatisfiable, beyond.StatusCode)
	req.Equal(fmt.Sprintf("bytes */%d", len(payload)), beyond.Header.Get("Content-Range"))
}

func Test_Audio_Upload_Rejections(t *testing.T) {
	ts := newTestServer(t)

	t.Run("Unsupported_Type", func(t *testing.T) {
		response, env := ts.upload(t, "3", "notes.txt", "text/plain", []byte("not audio"))
		require.Equal(t, http.StatusUnsupportedMediaType, response.StatusCode)
		require.False(t, env.Success)
		require.NotEmpty(t, env.Error)
	})

	t.Run("Empty_File", func(t *testing.T) {
		response, env := ts.upload(t, "3", "silence.mp3", "audio/mpeg", nil)
		require.Equal(t, http.StatusBadRequest, response.StatusCode)
		require.False(t, env.Success)
	})

	t.Run("Too_Large", func(t *testing.T) {
		response, env := ts.upload(t, "3", "epic.mp3", "audio/mpeg", mp3Payload(storage.MaxAudioBytes+1))
		require.Equal(t, http.StatusRequestEntityTooLarge, response.StatusCode)
		require.False(t, env.Success)
	})

	t.Run("Body_Beyond_Cap", func(t *testing.T) {
		// Far past the body cap: refused at the reader, never spooled.
		response, env := ts.upload(t, "3", "epic.mp3", "audio/mpeg", mp3Payload(storage.MaxAudioBytes+(2<<20)))
		require.Equal(t, http.StatusRequestEntityTooLarge, response.StatusCode)
		require.False(t, env.Success)
	})
}

func Test_Audio_Download_Unknown_Id(t *testing.T) {
	ts := newTestServer(t)
	response, err := ts.get(t, "3", "/audio/download/0b6f0e06-missing.mp3", "")
	require.NoError(t, err)
	defer response.Body.Close()
	require.Equal(t, http.StatusNotFound, response.StatusCode)
}

func (ts *testServer) get(t *testing.T, userID, path, rangeHeader string) (*http.Response, error) {
	t.Helper()
	request, err := http.NewRequest(http.MethodGet, ts.server.URL+path, nil)
	require.NoError(t, err)
	token, err := ts.tokens.Generate(userID)
	require.NoError(t, err)
	request.Header.Set("Authorization", "Bearer "+token)
	if rangeHeader != "" {
		request.Header.Set("Range", rangeHeader)
	}
	response, err := http.DefaultClient.Do(request)
	if err == nil {
		t.Cleanup(func() { _ = response.Body.Close() })
	}
	return response, err
}

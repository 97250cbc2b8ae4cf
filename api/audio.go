package api

import (
	goerrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"carechat/auth"
	"carechat/errors"
	"carechat/storage"
)

// uploadBodyOverhead leaves room for the multipart framing and the
// plain form fields around a maximum-size audio payload.
const uploadBodyOverhead = 1 << 20

// UploadAudio handles POST /audio/upload (multipart, field "file").
// The body is capped before parsing so an oversized upload is refused
// instead of being spooled to temp files first; payload validation
// itself happens in the store, the handler only shapes the request.
func (h *Handler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxAudioBytes+uploadBodyOverhead)
	if err := r.ParseMultipartForm(storage.MaxAudioBytes + 1024); err != nil {
		var tooLarge *http.MaxBytesError
		if goerrors.As(err, &tooLarge) {
			writeError(w, fmt.Errorf("%w: request body exceeds %d bytes", errors.ErrPayloadTooLarge, tooLarge.Limit))
			return
		}
		writeError(w, fmt.Errorf("%w: multipart form", errors.ErrInvalidArgument))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, fmt.Errorf("%w: missing file field", errors.ErrInvalidArgument))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, storage.MaxAudioBytes+1))
	if err != nil {
		writeError(w, err)
		return
	}
	duration, _ := strconv.Atoi(r.FormValue("durationSeconds"))

	ref, err := h.audio.Upload(storage.UploadRequest{
		Data:            data,
		MimeType:        header.Header.Get("Content-Type"),
		Filename:        header.Filename,
		SenderID:        auth.UserID(r),
		ReceiverID:      r.FormValue("receiverId"),
		DurationSeconds: duration,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, ref)
}

// DownloadAudio handles GET /audio/download/{id}: whole-file fetch with
// the content type sniffed from the bytes.
func (h *Handler) DownloadAudio(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := h.audio.Read(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// StreamAudio handles GET /audio/stream/{id}. A single bytes=start-end
// range yields 206 with the requested span; anything else yields the
// whole body with Accept-Ranges advertised so clients can range-request
// subsequently. Multi-range requests are not supported.
func (h *Handler) StreamAudio(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	file, info, err := h.audio.Open(id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer file.Close()

	size := info.Size()
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", h.audio.ContentType(id))

	start, end, ok := parseRange(r.Header.Get("Range"), size)
	if !ok {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if _, err := file.Seek(0, io.SeekStart); err == nil {
			_, _ = io.Copy(w, file)
		}
		return
	}
	if start >= size {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	length := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	if _, err := file.Seek(start, io.SeekStart); err == nil {
		_, _ = io.CopyN(w, file, length)
	}
}

// parseRange understands a single "bytes=start-end" range. End may be
// omitted to mean end-of-file, start may be omitted for the suffix form
// "bytes=-n" (the final n bytes). The end is clamped to the last byte.
func parseRange(header string, size int64) (start, end int64, ok bool) {
	if !strings.HasPrefix(header, "bytes=") || strings.Contains(header, ",") {
		return 0, 0, false
	}
	span := strings.TrimPrefix(header, "bytes=")
	parts := strings.SplitN(span, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	if parts[0] == "" {
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, true
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	end = size - 1
	if parts[1] != "" {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil || end < start {
			return 0, 0, false
		}
		if end > size-1 {
			end = size - 1
		}
	}
	return start, end, true
}

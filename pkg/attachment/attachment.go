package attachment

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/h2non/filetype"

	"github.com/duochat/duochat/pkg/chat"
)

// ErrTooLarge is returned when a file exceeds the configured upload limit.
var ErrTooLarge = errors.New("attachment too large")

// File is a blob ready to be sent as one multipart "file" part.
type File struct {
	Name string
	MIME string
	Data []byte
}

func (f File) Size() int64 { return int64(len(f.Data)) }

// Group is the set of files attached to a single send, tagged with the
// message type the backend stores them under.
type Group struct {
	Type  chat.MessageType
	Files []File
}

func (g Group) Empty() bool { return len(g.Files) == 0 }

// Load reads path and sniffs its MIME type. maxBytes <= 0 disables the limit.
func Load(path string, maxBytes int64) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("attachment: %w", err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("attachment: %s is a directory", path)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return File{}, fmt.Errorf("attachment: %s is %s, limit %s: %w",
			filepath.Base(path), FormatSize(info.Size()), FormatSize(maxBytes), ErrTooLarge)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("attachment: %w", err)
	}
	name := filepath.Base(path)
	return File{Name: name, MIME: DetectMIME(name, data), Data: data}, nil
}

// DetectMIME sniffs data first, then falls back to the file extension and
// finally to the net/http content sniffer.
func DetectMIME(name string, data []byte) string {
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		return byExt
	}
	return http.DetectContentType(data)
}

// TypeFor maps a MIME type onto a message type.
func TypeFor(mimeType string) chat.MessageType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return chat.TypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return chat.TypeVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return chat.TypeAudio
	default:
		return chat.TypeFile
	}
}

// GroupFor builds a group whose type follows the first file.
func GroupFor(files ...File) Group {
	if len(files) == 0 {
		return Group{}
	}
	return Group{Type: TypeFor(files[0].MIME), Files: files}
}

// Icon returns a short label for the preview list.
func Icon(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	case strings.Contains(mimeType, "pdf"):
		return "pdf"
	case strings.Contains(mimeType, "text/"):
		return "text"
	default:
		return "file"
	}
}

// FormatSize renders a byte count with binary units.
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}

// Describe is the one-line preview shown for a pending file.
func Describe(f File) string {
	return fmt.Sprintf("[%s] %s (%s)", Icon(f.MIME), f.Name, FormatSize(f.Size()))
}

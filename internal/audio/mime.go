package audio

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

func init() {
	for ext, typ := range map[string]string{
		".wav":  "audio/wav",
		".mp3":  "audio/mpeg",
		".m4a":  "audio/mp4",
		".ogg":  "audio/ogg",
		".oga":  "audio/ogg",
		".opus": "audio/ogg",
		".weba": "audio/webm",
		".webm": "audio/webm",
		".aac":  "audio/aac",
		".flac": "audio/flac",
		".heic": "image/heic",
	} {
		_ = mime.AddExtensionType(ext, typ)
	}
}

var canonicalMIME = map[string]string{
	"audio/wave":     "audio/wav",
	"audio/x-wav":    "audio/wav",
	"audio/vnd.wave": "audio/wav",
	"audio/x-m4a":    "audio/mp4",
	"audio/mp3":      "audio/mpeg",
}

// DetectMIME sniffs data and falls back to the file extension when the
// content is ambiguous.
func DetectMIME(name string, data []byte) string {
	sniffed := baseMIME(http.DetectContentType(data))
	if sniffed == "application/octet-stream" || isContainerMIME(sniffed) {
		if byExt := baseMIME(mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))); byExt != "" {
			return byExt
		}
	}
	return sniffed
}

// ExtensionFor returns a file extension for mimeType, ".bin" if unknown
func ExtensionFor(mimeType string) string {
	switch mimeType {
	case "audio/wav":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func baseMIME(v string) string {
	if v == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	if c, ok := canonicalMIME[mediaType]; ok {
		return c
	}
	return mediaType
}

// containers that hold either audio or video
func isContainerMIME(m string) bool {
	return m == "application/ogg" || m == "video/webm" || m == "video/mp4"
}

func isAudioMIME(m string) bool {
	return strings.HasPrefix(m, "audio/") || m == "application/ogg" || m == "video/webm"
}

func isImageMIME(m string) bool {
	return strings.HasPrefix(m, "image/")
}

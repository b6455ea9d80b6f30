// Package attachment validates embedded base64 attachments. Payloads travel
// as data URIs inside JSON bodies and are stored verbatim on the
// conversation document; list projections only ever expose presence flags.
package attachment

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/amirrezabahramy/inquiry-system-server/internal/apperr"
)

// extByContentType maps sniffed MIME types to the extension names used in
// kind descriptors. Sniffing uses the decoded bytes, not the client-supplied
// data URI prefix, so a mislabeled payload is still caught.
var extByContentType = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"application/pdf": "pdf",
}

// Decoded is a validated attachment ready for storage or download.
type Decoded struct {
	ContentType string
	Ext         string
	Data        []byte
}

// Validate decodes a base64 data URI and checks its real type and size
// against the accepted extension list. Returns ValidationError for anything
// a well-behaved client would never send.
func Validate(dataURI string, acceptedExts []string, maxMB int) (*Decoded, error) {
	if len(acceptedExts) == 0 {
		return nil, apperr.Validation("attachments are not accepted here")
	}

	payload := dataURI
	if i := strings.Index(dataURI, ","); i >= 0 {
		payload = dataURI[i+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, apperr.Validation("attachment is not valid base64")
	}
	if len(data) == 0 {
		return nil, apperr.Validation("attachment is empty")
	}
	if maxMB > 0 && len(data) > maxMB*1024*1024 {
		return nil, apperr.Validation("attachment exceeds the %dMB size limit", maxMB)
	}

	contentType := http.DetectContentType(data)
	ext, known := extByContentType[contentType]
	if !known {
		return nil, apperr.Validation("unsupported attachment type %s", contentType)
	}
	for _, accepted := range acceptedExts {
		if ext == accepted {
			return &Decoded{ContentType: contentType, Ext: ext, Data: data}, nil
		}
	}
	return nil, apperr.Validation("attachment type %s is not accepted, expected one of: %s",
		ext, strings.Join(acceptedExts, ", "))
}

// Decode decodes a stored data URI for download without re-validating
// against an accept list. The content type is re-sniffed so the response
// header matches the bytes actually served.
func Decode(dataURI string) (*Decoded, error) {
	payload := dataURI
	if i := strings.Index(dataURI, ","); i >= 0 {
		payload = dataURI[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, apperr.Validation("stored attachment is corrupt")
	}
	contentType := http.DetectContentType(data)
	return &Decoded{ContentType: contentType, Ext: extByContentType[contentType], Data: data}, nil
}

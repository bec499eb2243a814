package router

import (
	"strings"

	"expensebot/internal/domain"
)

// ImageRef is the single resolved image candidate extracted from a turn.
type ImageRef struct {
	URL string
}

// imageFileTypes are the file extensions accepted from platform
// file-reference attachments.
var imageFileTypes = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
}

// ExtractImageRef scans attachments in order and returns the first image
// reference, or nil when the turn carries none. Direct image MIME types win
// outright; platform file references are accepted only when their payload
// names a supported image type and carries a download URL. Malformed
// payloads never fail the scan, they just don't match.
func ExtractImageRef(attachments []domain.Attachment) *ImageRef {
	for _, att := range attachments {
		if strings.HasPrefix(att.ContentType, "image/") {
			if att.ContentURL == "" {
				return nil
			}
			return &ImageRef{URL: att.ContentURL}
		}

		if att.ContentType == domain.TeamsFileDownloadContentType {
			fileType, _ := att.Content["fileType"].(string)
			if !imageFileTypes[strings.ToLower(fileType)] {
				continue
			}
			downloadURL, _ := att.Content["downloadUrl"].(string)
			if downloadURL == "" {
				continue
			}
			return &ImageRef{URL: downloadURL}
		}
	}
	return nil
}

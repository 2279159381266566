package services

import (
	"encoding/base64"
	"strings"

	"carbonledger/models"
)

// Multipart field names that carry binary attachments.
const (
	UploadPhotoNorth      = "photoNorth"
	UploadPhotoSouth      = "photoSouth"
	UploadPhotoEast       = "photoEast"
	UploadPhotoWest       = "photoWest"
	UploadPhotoAdditional = "photoAdditional"
	UploadSoilLabResults  = "soilLabResults"
)

// Upload is one uploaded file held in memory.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Uploads groups uploaded files by multipart field name.
type Uploads map[string][]Upload

func (u Uploads) first(field string) (Upload, bool) {
	files := u[field]
	if len(files) == 0 {
		return Upload{}, false
	}
	return files[0], true
}

// Count returns the total number of uploaded files.
func (u Uploads) Count() int {
	n := 0
	for _, files := range u {
		n += len(files)
	}
	return n
}

// EncodeAttachment renders an upload as a data URL.
func EncodeAttachment(up Upload) string {
	mime := strings.TrimSpace(up.ContentType)
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(up.Data)
}

// uploadedPhotos converts photo uploads into a Photos value; nil when none.
func uploadedPhotos(uploads Uploads) *models.Photos {
	p := &models.Photos{}
	if up, ok := uploads.first(UploadPhotoNorth); ok {
		p.North = EncodeAttachment(up)
	}
	if up, ok := uploads.first(UploadPhotoSouth); ok {
		p.South = EncodeAttachment(up)
	}
	if up, ok := uploads.first(UploadPhotoEast); ok {
		p.East = EncodeAttachment(up)
	}
	if up, ok := uploads.first(UploadPhotoWest); ok {
		p.West = EncodeAttachment(up)
	}
	for _, up := range uploads[UploadPhotoAdditional] {
		p.Additional = append(p.Additional, EncodeAttachment(up))
	}
	if p.IsEmpty() {
		return nil
	}
	return p
}

// overlayPhotos lays top over base. Non-empty cardinal slots in top win and
// additional references accumulate, base first. Neither argument is modified.
func overlayPhotos(base, top *models.Photos) *models.Photos {
	merged := base.Clone()
	if merged == nil {
		merged = &models.Photos{}
	}
	if top != nil {
		if top.North != "" {
			merged.North = top.North
		}
		if top.South != "" {
			merged.South = top.South
		}
		if top.East != "" {
			merged.East = top.East
		}
		if top.West != "" {
			merged.West = top.West
		}
		merged.Additional = append(merged.Additional, top.Additional...)
	}
	merged.Additional = compact(merged.Additional)
	if merged.IsEmpty() {
		return nil
	}
	return merged
}

// resolveLabResults prefers an uploaded lab report over supplied text.
func resolveLabResults(text *string, uploads Uploads) *string {
	if up, ok := uploads.first(UploadSoilLabResults); ok {
		encoded := EncodeAttachment(up)
		return &encoded
	}
	return text
}

// Processed summarizes which attachments a stored record carries.
type Processed struct {
	Photos         PhotoSummary `json:"photos"`
	SoilLabResults bool         `json:"soilLabResults"`
}

// PhotoSummary reports cardinal slot presence and the extra photo count.
type PhotoSummary struct {
	North      bool `json:"north"`
	South      bool `json:"south"`
	East       bool `json:"east"`
	West       bool `json:"west"`
	Additional int  `json:"additional"`
}

func summarize(d *models.FieldData) Processed {
	var out Processed
	if p := d.Photos; p != nil {
		out.Photos = PhotoSummary{
			North:      p.North != "",
			South:      p.South != "",
			East:       p.East != "",
			West:       p.West != "",
			Additional: len(p.Additional),
		}
	}
	out.SoilLabResults = d.SoilLabResults != nil && *d.SoilLabResults != ""
	return out
}

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"

	"carbonledger/config"
	"carbonledger/services"
)

// uploadLimits maps each accepted file field to its maximum file count.
type uploadLimits map[string]int

var (
	noUploads = uploadLimits{}

	submitUploads = uploadLimits{
		services.UploadPhotoNorth:      1,
		services.UploadPhotoSouth:      1,
		services.UploadPhotoEast:       1,
		services.UploadPhotoWest:       1,
		services.UploadPhotoAdditional: 10,
		services.UploadSoilLabResults:  1,
	}

	draftUploads = uploadLimits{
		services.UploadPhotoNorth:      1,
		services.UploadPhotoSouth:      1,
		services.UploadPhotoEast:       1,
		services.UploadPhotoWest:       1,
		services.UploadPhotoAdditional: 20,
		services.UploadSoilLabResults:  1,
	}
)

func badRequest(format string, args ...any) error {
	return &services.ValidationError{Message: fmt.Sprintf(format, args...)}
}

// readInput decodes a JSON, urlencoded or multipart body. Files are only
// accepted on fields named in limits and are held in memory.
func readInput(w http.ResponseWriter, r *http.Request, cfg config.UploadsConfig, limits uploadLimits) (services.Input, services.Uploads, error) {
	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxBodySize)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(cfg.MaxMemory); err != nil {
			return nil, nil, bodyError(err, "Invalid multipart body")
		}
		defer r.MultipartForm.RemoveAll()

		uploads, err := readUploads(r.MultipartForm.File, limits)
		if err != nil {
			return nil, nil, err
		}
		return formInput(r.MultipartForm.Value), uploads, nil

	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, nil, bodyError(err, "Invalid form body")
		}
		return formInput(r.PostForm), nil, nil

	default:
		in := services.Input{}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
			return nil, nil, bodyError(err, "Invalid request body")
		}
		return in, nil, nil
	}
}

func bodyError(err error, message string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return badRequest(message)
}

// formInput keeps the first value of each form field.
func formInput(values url.Values) services.Input {
	in := services.Input{}
	for key, vs := range values {
		if len(vs) > 0 {
			in[key] = vs[0]
		}
	}
	return in
}

func readUploads(files map[string][]*multipart.FileHeader, limits uploadLimits) (services.Uploads, error) {
	fields := make([]string, 0, len(files))
	for field := range files {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	uploads := services.Uploads{}
	for _, field := range fields {
		headers := files[field]
		limit, ok := limits[field]
		if !ok {
			return nil, badRequest("Unexpected file field: %s", field)
		}
		if len(headers) > limit {
			return nil, badRequest("Too many files for %s (max %d)", field, limit)
		}

		for _, fh := range headers {
			up, err := readUpload(fh)
			if err != nil {
				return nil, err
			}
			uploads[field] = append(uploads[field], up)
		}
	}
	return uploads, nil
}

func readUpload(fh *multipart.FileHeader) (services.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return services.Upload{}, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return services.Upload{}, fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
	}
	return services.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

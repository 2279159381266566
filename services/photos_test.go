package services

import (
	"testing"

	"carbonledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAttachment(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,aGk=", EncodeAttachment(Upload{ContentType: "image/jpeg", Data: []byte("hi")}))
	assert.Equal(t, "data:application/octet-stream;base64,", EncodeAttachment(Upload{}))
}

func TestOverlayPhotos(t *testing.T) {
	base := &models.Photos{North: "n1", South: "s1", Additional: []string{"a1"}}
	top := &models.Photos{North: "n2", West: "w2", Additional: []string{"", "a2"}}

	got := overlayPhotos(base, top)
	require.NotNil(t, got)
	assert.Equal(t, &models.Photos{North: "n2", South: "s1", West: "w2", Additional: []string{"a1", "a2"}}, got)

	assert.Equal(t, []string{"a1"}, base.Additional, "base must not be modified")
	assert.Nil(t, overlayPhotos(nil, &models.Photos{}))
}

func TestUploadedPhotos(t *testing.T) {
	assert.Nil(t, uploadedPhotos(nil))

	got := uploadedPhotos(Uploads{
		UploadPhotoEast:  {{ContentType: "image/png", Data: []byte("e")}, {ContentType: "image/png", Data: []byte("ignored")}},
		UploadPhotoSouth: {{ContentType: "image/png", Data: []byte("s")}},
	})
	require.NotNil(t, got)
	assert.Equal(t, "data:image/png;base64,ZQ==", got.East)
	assert.Equal(t, "data:image/png;base64,cw==", got.South)
	assert.Empty(t, got.North)
}

func TestResolveLabResults(t *testing.T) {
	text := "see notes"
	assert.Equal(t, &text, resolveLabResults(&text, nil))

	got := resolveLabResults(&text, Uploads{UploadSoilLabResults: {{ContentType: "text/csv", Data: []byte("ok")}}})
	assert.Equal(t, "data:text/csv;base64,b2s=", *got)
}

func TestSummarize(t *testing.T) {
	lab := "x"
	d := &models.FieldData{Survey: models.Survey{
		Photos:         &models.Photos{North: "n", West: "w", Additional: []string{"a", "b", "c"}},
		SoilLabResults: &lab,
	}}
	assert.Equal(t, Processed{
		Photos:         PhotoSummary{North: true, West: true, Additional: 3},
		SoilLabResults: true,
	}, summarize(d))
}

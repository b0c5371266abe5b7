package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
)

type ImageType string

const (
	InputImageType  ImageType = "input"
	TempImageType   ImageType = "temp"
	OutputImageType ImageType = "output"
)

// UploadSubfolder is where Upload places copies of generated images
const UploadSubfolder = "comfymcp"

// UploadImage sends image bytes to /upload/image. The returned reference carries
// the name the server chose, which may differ from filename.
func (c *ComfyClient) UploadImage(ctx context.Context, data []byte, filename string, overwrite bool, filetype ImageType, subfolder string) (ImageRef, error) {
	var requestBody bytes.Buffer
	writer := multipart.NewWriter(&requestBody)

	formFile, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return ImageRef{}, err
	}
	if _, err := formFile.Write(data); err != nil {
		return ImageRef{}, err
	}
	_ = writer.WriteField("overwrite", strconv.FormatBool(overwrite))
	_ = writer.WriteField("type", string(filetype))
	if subfolder != "" {
		_ = writer.WriteField("subfolder", subfolder)
	}
	if err := writer.Close(); err != nil {
		return ImageRef{}, err
	}

	body, _, err := c.doContent(ctx, http.MethodPost, c.endpoint("/upload/image", nil), writer.FormDataContentType(), &requestBody)
	if err != nil {
		return ImageRef{}, err
	}

	var ref ImageRef
	if err := json.Unmarshal(body, &ref); err != nil {
		return ImageRef{}, fmt.Errorf("decode upload response: %w", err)
	}
	// the server answers with "name" rather than "filename"
	var named struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &named); err == nil && named.Name != "" {
		ref.Filename = named.Name
	}
	if ref.Filename == "" {
		return ImageRef{}, fmt.Errorf("upload response has no file name: %s", body)
	}
	if ref.Type == "" {
		ref.Type = string(filetype)
	}
	return ref, nil
}

// Upload copies a generated image into the backend's input folder so later
// workflows can load it. It returns the /view url of the stored copy.
func (c *ComfyClient) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	ref, err := c.UploadImage(ctx, data, path.Base(name), false, InputImageType, UploadSubfolder)
	if err != nil {
		return "", err
	}
	return c.ViewURL(ref), nil
}

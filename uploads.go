package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"bitbucket.org/assurdata/agence_backend/config"
	"bitbucket.org/assurdata/agence_backend/models"
	"bitbucket.org/assurdata/agence_backend/utils"
	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxUploadSizeBytes int64 = 5 * 1024 * 1024

var scanMimeTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// uploadChequeScanHandler stores the scanned cheque image in GCS, writes a
// 200px-wide JPEG thumbnail beside it and links the object key to the
// cheque row. Multipart field name: "scan".
func uploadChequeScanHandler(c *gin.Context) {
	logger := config.GetLogger()

	id, ok := idParam(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("scan")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scan file is required"})
		return
	}
	if fileHeader.Size > maxUploadSizeBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	ext, supported := scanMimeTypes[mimeType]
	if !supported {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image type"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read scan file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSizeBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read scan file"})
		return
	}
	if int64(len(data)) > maxUploadSizeBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
		return
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image"})
		return
	}

	objectKey := path.Join("cheques", fmt.Sprint(id), uuid.NewString()+ext)
	ctx := c.Request.Context()

	if err := utils.UploadObjectToGCS(ctx, objectKey, mimeType, bytes.NewReader(data)); err != nil {
		config.LogError(logger, "uploads.go", "uploadChequeScanHandler", "Upload scan", objectKey, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store scan"})
		return
	}

	// Thumbnail upload is best-effort: the scan itself is already safe.
	thumbnail := imaging.Resize(img, 200, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err == nil {
		thumbKey := thumbnailObjectKey(objectKey)
		if err := utils.UploadObjectToGCS(ctx, thumbKey, "image/jpeg", &buf); err != nil {
			logger.WithFields(logrus.Fields{
				"field":      "uploadChequeScan",
				"object_key": thumbKey,
			}).Warn("thumbnail upload failed: " + err.Error())
		}
	}

	cheque, err := models.AttachChequeScan(ctx, id, objectKey)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.WithFields(logrus.Fields{
		"cheque_id":  id,
		"object_key": objectKey,
		"size":       len(data),
	}).Info("[cheque.scan.upload]")

	c.JSON(http.StatusOK, cheque)
}

// chequeScanURLHandler returns a short-lived signed URL for the stored scan.
func chequeScanURLHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	cheque, err := models.GetCheque(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if cheque.ScanObjectKey == nil || strings.TrimSpace(*cheque.ScanObjectKey) == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scan attached"})
		return
	}

	url, err := utils.SignedDownloadURL(c.Request.Context(), *cheque.ScanObjectKey, 15*time.Minute)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in_seconds": int((15 * time.Minute).Seconds())})
}

func thumbnailObjectKey(objectKey string) string {
	dir := path.Dir(objectKey)
	filename := path.Base(objectKey)
	return path.Join(dir, "thumbnails", filename)
}

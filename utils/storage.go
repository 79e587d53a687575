package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	"cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iamcredentials/v1"
	"google.golang.org/api/option"
)

type serviceAccountJSON struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// getGCSClient initializes a Google Cloud Storage client.
// Prefers ADC; explicit JSON can be supplied via GCS_CREDENTIALS_JSON.
func getGCSClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

func gcsBucket() (string, error) {
	bucket := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
	if bucket == "" {
		return "", errors.New("GCS_BUCKET is required")
	}
	return bucket, nil
}

// UploadObjectToGCS streams r into the configured bucket under objectKey.
func UploadObjectToGCS(ctx context.Context, objectKey, contentType string, r io.Reader) error {
	bucket, err := gcsBucket()
	if err != nil {
		return err
	}
	client, err := getGCSClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	w := client.Bucket(bucket).Object(objectKey).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// SignedDownloadURL returns a V4 signed GET URL for a stored object.
// Signing key resolution order: GCS_SA_JSON env, ADC JSON, IAM SignBlob
// via the metadata service account (the in-cloud path).
func SignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	bucket, err := gcsBucket()
	if err != nil {
		return "", err
	}

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expires),
	}

	accessID, privateKey, ok, err := loadSignerFromEnv(ctx)
	if err != nil {
		return "", err
	}
	if ok {
		opts.GoogleAccessID = accessID
		opts.PrivateKey = privateKey
	} else {
		email, signBytes, err := iamSigner(ctx)
		if err != nil {
			return "", err
		}
		opts.GoogleAccessID = email
		opts.SignBytes = signBytes
	}

	return storage.SignedURL(bucket, objectKey, opts)
}

func loadSignerFromEnv(ctx context.Context) (string, []byte, bool, error) {
	raw := strings.TrimSpace(os.Getenv("GCS_SA_JSON"))
	if raw == "" {
		// Fall back to ADC when it carries an embedded service-account key.
		creds, err := google.FindDefaultCredentials(ctx, storage.ScopeReadWrite)
		if err != nil || len(creds.JSON) == 0 {
			return "", nil, false, nil
		}
		raw = string(creds.JSON)
	}
	var sa serviceAccountJSON
	if err := json.Unmarshal([]byte(raw), &sa); err != nil {
		return "", nil, false, err
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return "", nil, false, nil
	}
	return sa.ClientEmail, []byte(sa.PrivateKey), true, nil
}

func iamSigner(ctx context.Context) (string, func([]byte) ([]byte, error), error) {
	if !metadata.OnGCE() {
		return "", nil, errors.New("no signing key available and not running on GCE")
	}
	email, err := metadata.Email("default")
	if err != nil {
		return "", nil, err
	}
	svc, err := iamcredentials.NewService(ctx)
	if err != nil {
		return "", nil, err
	}
	name := fmt.Sprintf("projects/-/serviceAccounts/%s", email)
	signBytes := func(b []byte) ([]byte, error) {
		resp, err := svc.Projects.ServiceAccounts.SignBlob(name, &iamcredentials.SignBlobRequest{
			Payload: encodeBase64(b),
		}).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return decodeBase64(resp.SignedBlob)
	}
	return email, signBytes, nil
}

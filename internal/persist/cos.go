package persist

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	cos "github.com/tencentyun/cos-go-sdk-v5"
)

// COSStorage uploads images to a Tencent COS bucket and serves them from a
// public domain.
type COSStorage struct {
	client       *cos.Client
	publicDomain string
}

// COSConfig carries the bucket credentials.
type COSConfig struct {
	Bucket       string
	Region       string
	SecretID     string
	SecretKey    string
	PublicDomain string
}

// NewCOSStorage builds a COS-backed object store.
func NewCOSStorage(cfg COSConfig) (*COSStorage, error) {
	if cfg.Bucket == "" || cfg.SecretID == "" || cfg.SecretKey == "" || cfg.PublicDomain == "" {
		return nil, fmt.Errorf("incomplete COS configuration")
	}
	region := cfg.Region
	if region == "" {
		region = "ap-hongkong"
	}

	bucketURL, err := url.Parse(fmt.Sprintf("https://%s.cos.%s.myqcloud.com", cfg.Bucket, region))
	if err != nil {
		return nil, fmt.Errorf("invalid bucket URL: %w", err)
	}
	client := cos.NewClient(&cos.BaseURL{BucketURL: bucketURL}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
		},
	})
	return &COSStorage{
		client:       client,
		publicDomain: strings.TrimSuffix(cfg.PublicDomain, "/"),
	}, nil
}

// Put uploads data under key and returns its public URL.
func (s *COSStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	opts := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{
			ContentType: "image/jpeg",
		},
	}
	if _, err := s.client.Object.Put(ctx, key, bytes.NewReader(data), opts); err != nil {
		return "", fmt.Errorf("COS put failed: %w", err)
	}
	return s.publicDomain + "/" + key, nil
}

// Delete removes the object under key.
func (s *COSStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.client.Object.Delete(ctx, key); err != nil {
		return fmt.Errorf("COS delete failed: %w", err)
	}
	return nil
}

var _ ObjectStorage = (*COSStorage)(nil)

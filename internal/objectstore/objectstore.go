// Package objectstore addresses job and export artifacts in S3.
package objectstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/openaddresses/batch-sub000/internal/apperr"
)

// Job artifacts.
const (
	AssetSource    = "source.geojson.gz"
	AssetValidated = "validated.geojson.gz"
	AssetPreview   = "source.png"
	AssetCache     = "cache.zip"
)

// Assets lists the job artifacts in the order they are produced.
var Assets = []string{AssetSource, AssetValidated, AssetPreview, AssetCache}

// JobKey returns the key of a job artifact.
func JobKey(stack string, jobID int64, asset string) string {
	return fmt.Sprintf("%s/job/%d/%s", stack, jobID, asset)
}

// ExportKey returns the key of an export archive.
func ExportKey(stack string, exportID int64) string {
	return fmt.Sprintf("%s/export/%d/export.zip", stack, exportID)
}

// CollectionKey returns the key of a collection archive.
func CollectionKey(stack, name string) string {
	return fmt.Sprintf("%s/collection-%s.zip", stack, name)
}

// ValidAsset reports whether asset names a job artifact.
func ValidAsset(asset string) bool {
	for _, a := range Assets {
		if a == asset {
			return true
		}
	}
	return false
}

type presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedRequest, error)
}

// PresignedRequest is the subset of a presigned request callers need.
type PresignedRequest struct {
	URL    string
	Method string
}

// s3Presigner adapts *s3.PresignClient to presigner.
type s3Presigner struct{ c *s3.PresignClient }

func (p s3Presigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedRequest, error) {
	req, err := p.c.PresignGetObject(ctx, params, optFns...)
	if err != nil {
		return nil, err
	}
	return &PresignedRequest{URL: req.URL, Method: req.Method}, nil
}

// Store signs download URLs for artifacts in one bucket.
type Store struct {
	Stack   string
	Bucket  string
	Expires time.Duration
	signer  presigner
}

// New creates a Store from an AWS config.
func New(awsCfg aws.Config, stack, bucket string) *Store {
	return &Store{
		Stack:   stack,
		Bucket:  bucket,
		Expires: 15 * time.Minute,
		signer:  s3Presigner{c: s3.NewPresignClient(s3.NewFromConfig(awsCfg))},
	}
}

// JobURL returns a time-limited download URL for a job artifact.
func (s *Store) JobURL(ctx context.Context, jobID int64, asset string) (string, error) {
	if !ValidAsset(asset) {
		return "", apperr.Validation("unknown job asset %q", asset)
	}
	return s.sign(ctx, JobKey(s.Stack, jobID, asset))
}

// ExportURL returns a time-limited download URL for an export archive.
func (s *Store) ExportURL(ctx context.Context, exportID int64) (string, error) {
	return s.sign(ctx, ExportKey(s.Stack, exportID))
}

// CollectionURL returns a time-limited download URL for a collection.
func (s *Store) CollectionURL(ctx context.Context, name string) (string, error) {
	return s.sign(ctx, CollectionKey(s.Stack, name))
}

func (s *Store) sign(ctx context.Context, key string) (string, error) {
	if s.Bucket == "" {
		return "", apperr.Validation("object store bucket is not configured")
	}
	req, err := s.signer.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.Expires))
	if err != nil {
		return "", apperr.Upstream(err, "objectstore: sign %s", key)
	}
	return req.URL, nil
}

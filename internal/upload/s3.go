// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package upload copies finished reports to S3.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// API is the subset of *s3.Client the uploader uses.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader writes reports to s3://bucket/prefix/<file>.
type S3Uploader struct {
	api    API
	bucket string
	prefix string
}

// NewS3Uploader creates an uploader from the default AWS credential chain.
func NewS3Uploader(ctx context.Context, bucket, prefix, region string) (*S3Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for report upload: %w", err)
	}
	return New(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// New creates an uploader over an existing S3 API.
func New(api API, bucket, prefix string) *S3Uploader {
	return &S3Uploader{api: api, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Ping checks that the bucket exists and the credentials can reach it.
func (u *S3Uploader) Ping(ctx context.Context) error {
	if _, err := u.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(u.bucket)}); err != nil {
		return fmt.Errorf("S3 HeadBucket %s: %w", u.bucket, err)
	}
	return nil
}

// Key returns the object key a local report is uploaded to.
func (u *S3Uploader) Key(localPath string) string {
	name := filepath.Base(localPath)
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// Upload puts the file at localPath and returns its object key.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open report for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat report: %w", err)
	}

	key := u.Key(localPath)
	_, err = u.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("text/csv; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("S3 PutObject %s/%s: %w", u.bucket, key, err)
	}

	slog.Info("report uploaded", "bucket", u.bucket, "key", key, "bytes", info.Size())
	return key, nil
}

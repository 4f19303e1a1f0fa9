// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package delivery

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/dumpvault/internal/config"
)

// S3Channel uploads the artifact to an S3-compatible object store. When age
// recipients are configured the object is encrypted first and stored with
// an additional .age suffix.
type S3Channel struct {
	api           *s3.Client
	enabled       bool
	ageRecipients []age.Recipient
	breaker       *gobreaker.CircuitBreaker[*Result]
	tempDir       string
}

// NewS3Channel creates the channel. With S3 disabled it still accepts s3://
// recipients so they fail with a clear INVALID_CONFIG result.
//
//nolint:gocritic // config is copied once at construction
func NewS3Channel(ctx context.Context, cfg config.S3Config, breaker BreakerSettings) (*S3Channel, error) {
	ch := &S3Channel{
		enabled: cfg.Enabled,
		breaker: newBreaker("s3", breaker),
	}
	if !cfg.Enabled {
		return ch, nil
	}

	for _, raw := range cfg.AgeRecipients {
		r, err := age.ParseX25519Recipient(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("parse age recipient: %w", err)
		}
		ch.ageRecipients = append(ch.ageRecipients, r)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		// A BuildableClient lets the SDK apply AWS_CA_BUNDLE to its transport.
		awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(30*time.Minute)),
	)
	if err != nil {
		return nil, fmt.Errorf("load S3 config: %w", err)
	}

	ch.api = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})
	return ch, nil
}

// Name returns the channel identifier.
func (c *S3Channel) Name() string {
	return "s3"
}

// Accepts reports whether recipient is an s3:// URL.
func (c *S3Channel) Accepts(recipient string) bool {
	return strings.HasPrefix(recipient, "s3://")
}

// Send uploads the artifact.
func (c *S3Channel) Send(ctx context.Context, params *SendParams) (*Result, error) {
	result := newResult(c.Name(), params.Recipient)

	bucket, prefix, err := ParseS3URL(params.Recipient)
	if err != nil {
		return result.fail(ErrorCodeInvalidRecipient, err.Error()), nil //nolint:nilerr // Error is captured in result struct, not returned
	}
	if !c.enabled || c.api == nil {
		return result.fail(ErrorCodeInvalidConfig, "S3 delivery is not configured"), nil
	}

	return guarded(c.breaker, c.Name(), params.Recipient, func() *Result {
		return c.upload(ctx, params, bucket, prefix)
	}), nil
}

func (c *S3Channel) upload(ctx context.Context, params *SendParams, bucket, prefix string) *Result {
	result := newResult(c.Name(), params.Recipient)
	a := params.Artifact

	body, cleanup, err := c.openBody(a.Path)
	if err != nil {
		return result.fail(ErrorCodeArtifactMissing, err.Error())
	}
	defer cleanup()

	size, digest, err := sizeAndDigest(body)
	if err != nil {
		return result.fail(ErrorCodeArtifactMissing, err.Error())
	}
	checksum, err := encodeSHA256(digest)
	if err != nil {
		return result.fail(ErrorCodeUnknown, err.Error())
	}

	key := path.Join(prefix, a.Filename)
	contentType := "application/octet-stream"
	if len(c.ageRecipients) > 0 {
		key += ".age"
	} else if a.Compressed {
		contentType = "application/gzip"
	}

	out, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(bucket),
		Key:               aws.String(key),
		Body:              body,
		ContentLength:     aws.Int64(size),
		ContentType:       aws.String(contentType),
		ChecksumAlgorithm: s3types.ChecksumAlgorithmSha256,
		ChecksumSHA256:    aws.String(checksum),
		Metadata: map[string]string{
			"sha256":   digest,
			"filename": a.Filename,
			"verified": string(a.Verified),
			"trigger":  params.Trigger,
		},
	})
	if err != nil {
		code, status := classifyS3Error(err)
		result.ResponseCode = status
		return result.fail(code, fmt.Sprintf("upload s3://%s/%s: %v", bucket, key, err))
	}

	if out.ETag != nil {
		result.ExternalID = strings.Trim(*out.ETag, `"`)
	}
	result.ResponseCode = http.StatusOK
	return result.succeed()
}

// openBody returns a seekable reader over the bytes to upload. With age
// recipients the artifact is encrypted into a temporary file first so the
// upload has a known length and checksum.
func (c *S3Channel) openBody(artifactPath string) (*os.File, func(), error) {
	src, err := os.Open(artifactPath)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open artifact: %w", err)
	}
	if len(c.ageRecipients) == 0 {
		return src, func() { _ = src.Close() }, nil
	}
	defer src.Close()

	tmp, err := os.CreateTemp(c.tempDir, "dumpvault-*.age")
	if err != nil {
		return nil, func() {}, fmt.Errorf("create encryption buffer: %w", err)
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	w, err := age.Encrypt(tmp, c.ageRecipients...)
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("start encryption: %w", err)
	}
	if _, err := io.Copy(w, src); err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("encrypt artifact: %w", err)
	}
	if err := w.Close(); err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("finish encryption: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("rewind encryption buffer: %w", err)
	}
	return tmp, cleanup, nil
}

func sizeAndDigest(f *os.File) (int64, string, error) {
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", fmt.Errorf("hash upload body: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, "", fmt.Errorf("rewind upload body: %w", err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

func encodeSHA256(hexDigest string) (string, error) {
	if hexDigest == "" {
		return "", errors.New("sha256 digest required")
	}
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// classifyS3Error maps SDK errors to delivery codes and the HTTP status when
// one is known.
func classifyS3Error(err error) (string, int) {
	status := 0
	var withStatus interface{ HTTPStatusCode() int }
	if errors.As(err, &withStatus) {
		status = withStatus.HTTPStatusCode()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return ErrorCodeAuthFailed, status
		case "NoSuchBucket":
			return ErrorCodeRecipientNotFound, status
		case "SlowDown", "RequestLimitExceeded", "Throttling":
			return ErrorCodeRateLimited, status
		case "EntityTooLarge":
			return ErrorCodeContentTooLarge, status
		case "InternalError", "ServiceUnavailable":
			return ErrorCodeServerError, status
		}
	}
	if status != 0 {
		return classifyHTTPStatusCode(status), status
	}
	return classifyHTTPError(err), status
}

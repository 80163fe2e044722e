// Package legacy verifies passwords against the digests of the previous
// system, exported as one S3 object per user:
//
//	<prefix><user id>.json  {"user_id": 42, "bcrypt_hash": "$2a$10$..."}
//
// Once a password has been migrated the object is deleted.
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/authfacade/internal/logging"
	"golang.org/x/crypto/bcrypt"
)

const maxRecordSize = 64 << 10

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3API is the part of *s3.Client the migrator uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Options locate the legacy bucket.
type S3Options struct {
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

// NewS3Client builds a path-style client for an S3 compatible store.
func NewS3Client(ctx context.Context, o S3Options) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(o.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			o.AccessKey,
			o.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(opt *s3.Options) {
		if o.BaseEndpoint != "" {
			opt.BaseEndpoint = aws.String(o.BaseEndpoint)
		}
		opt.UsePathStyle = true
	}), nil
}

type record struct {
	UserID     int64  `json:"user_id"`
	BcryptHash string `json:"bcrypt_hash"`
}

// Migrator implements password.Migrator over an S3 bucket.
type Migrator struct {
	client S3API
	bucket string
	prefix string
	logger logging.Logger
}

func New(client S3API, bucket, prefix string, logger logging.Logger) *Migrator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Migrator{client: client, bucket: bucket, prefix: prefix, logger: logger.With("component", "legacy")}
}

func (m *Migrator) key(userID int64) string {
	return m.prefix + strconv.FormatInt(userID, 10) + ".json"
}

// VerifyLegacy reports whether password matches the legacy digest of
// userID. A user without a legacy object does not match.
func (m *Migrator) VerifyLegacy(ctx context.Context, userID int64, password string) (bool, error) {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.key(userID)),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get legacy record: %w", err)
	}
	defer out.Body.Close()

	var rec record
	if err := json.NewDecoder(io.LimitReader(out.Body, maxRecordSize)).Decode(&rec); err != nil {
		return false, fmt.Errorf("decode legacy record %s: %w", m.key(userID), err)
	}
	if rec.UserID != userID {
		m.logger.Warn(ctx, "legacy record belongs to another user", "user_id", userID, "record_user_id", rec.UserID)
		return false, nil
	}

	err = bcrypt.CompareHashAndPassword([]byte(rec.BcryptHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("legacy digest of user %d: %w", userID, err)
	}
}

// OnMigrated removes the legacy record of userID.
func (m *Migrator) OnMigrated(ctx context.Context, userID int64) error {
	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.key(userID)),
	})
	if err != nil {
		return fmt.Errorf("delete legacy record: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

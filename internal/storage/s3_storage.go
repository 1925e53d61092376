package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"greendrake/estate/internal/config"
)

// BiometricPrefix is the key prefix for biometric captures.
const BiometricPrefix = "biometrics"

// Content types accepted for biometric uploads.
var allowedBiometricTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"video/mp4":  ".mp4",
}

// ErrUnsupportedContentType is returned for uploads outside the allow list.
var ErrUnsupportedContentType = errors.New("unsupported content type")

// IS3Storage defines the interface for S3 operations.
type IS3Storage interface {
	// PresignBiometricUpload returns a PUT URL and the object key the agent
	// must later quote as biometric_data.
	PresignBiometricUpload(ctx context.Context, agentID, contentType string) (url string, objectKey string, err error)
	ObjectExists(ctx context.Context, key string) (bool, error)
}

// s3Storage implements IS3Storage.
type s3Storage struct {
	cfg           *config.Config
	s3Client      *s3.Client
	presignClient *s3.PresignClient
}

// NewS3Storage creates a new S3 storage service.
func NewS3Storage(cfg *config.Config) (IS3Storage, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(context.TODO(),
		aws_config.WithRegion(cfg.AwsRegion),
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	presignClient := s3.NewPresignClient(s3Client)

	return &s3Storage{
		cfg:           cfg,
		s3Client:      s3Client,
		presignClient: presignClient,
	}, nil
}

// BiometricKey builds the object key for a new capture of agentID.
func BiometricKey(agentID, contentType string) (string, error) {
	ext, ok := allowedBiometricTypes[strings.ToLower(contentType)]
	if !ok {
		return "", ErrUnsupportedContentType
	}
	return path.Join(BiometricPrefix, agentID, uuid.NewString()+ext), nil
}

var biometricKeyPattern = regexp.MustCompile(`^` + BiometricPrefix + `/([^/]+)/[0-9a-f-]{36}\.(jpg|png|webp|mp4)$`)

// OwnsBiometricKey reports whether key was issued to agentID by BiometricKey.
func OwnsBiometricKey(agentID, key string) bool {
	m := biometricKeyPattern.FindStringSubmatch(key)
	return m != nil && m[1] == agentID
}

func (s *s3Storage) PresignBiometricUpload(ctx context.Context, agentID, contentType string) (string, string, error) {
	objectKey, err := BiometricKey(agentID, contentType)
	if err != nil {
		return "", "", err
	}

	expiration := s.cfg.BiometricURLTTL
	if expiration <= 0 {
		expiration = 15 * time.Minute
	}

	presignParams := &s3.PutObjectInput{
		Bucket:               aws.String(s.cfg.AwsS3Bucket),
		Key:                  aws.String(objectKey),
		ContentType:          aws.String(contentType),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	}

	presignedReq, err := s.presignClient.PresignPutObject(ctx, presignParams, s3.WithPresignExpires(expiration))
	if err != nil {
		return "", "", fmt.Errorf("failed to generate presigned PUT URL for key %s: %w", objectKey, err)
	}
	return presignedReq.URL, objectKey, nil
}

func (s *s3Storage) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.AwsS3Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to head object %s: %w", key, err)
}

package access

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/SubGate/internal/pkg/env"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
)

const defaultLinkTTL = 7 * 24 * time.Hour

// FileStorageConfig holds the S3 settings of the shared file storage.
type FileStorageConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	SharedObjectKey string
	LinkTTL         time.Duration
}

// LoadFileStorageConfig loads the file storage configuration from environment variables
func LoadFileStorageConfig() (*FileStorageConfig, error) {
	cfg := &FileStorageConfig{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		SharedObjectKey: env.GetEnv("S3_SHARED_OBJECT_KEY", "shared/index.html"),
		LinkTTL:         env.GetDuration("S3_LINK_TTL", defaultLinkTTL),
	}

	if cfg.AccessKeyID == "" {
		return nil, errors.New("S3_ACCESS_KEY_ID is required for file storage access")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("S3_SECRET_ACCESS_KEY is required for file storage access")
	}
	if cfg.BucketName == "" {
		return nil, errors.New("S3_BUCKET_NAME is required for file storage access")
	}
	return cfg, nil
}

// GrantObjectKey is where the access record of a subscription is written.
func (c *FileStorageConfig) GrantObjectKey(userID, subscriptionID uint) string {
	return fmt.Sprintf("access/%d/%d.json", userID, subscriptionID)
}

type objectWriter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Mailer delivers the access link.
type Mailer interface {
	SendMail(to, subject, body string) error
}

// FileStorageClient grants file storage access by writing an access record
// into the bucket and mailing a presigned link to the shared folder.
type FileStorageClient struct {
	objects   objectWriter
	presigner objectPresigner
	mailer    Mailer
	config    *FileStorageConfig
}

// NewFileStorageClient creates the S3 client for the configured bucket.
func NewFileStorageClient(ctx context.Context, cfg *FileStorageConfig, mailer Mailer) (*FileStorageClient, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible providers need path-style URLs
			o.UsePathStyle = true
		}
	})

	log.Infof("[Access] file storage client ready for bucket %s", cfg.BucketName)
	return &FileStorageClient{
		objects:   s3Client,
		presigner: s3.NewPresignClient(s3Client),
		mailer:    mailer,
		config:    cfg,
	}, nil
}

type fileStorageGrant struct {
	Email          string    `json:"email"`
	UserID         uint      `json:"user_id"`
	SubscriptionID uint      `json:"subscription_id"`
	GrantedAt      time.Time `json:"granted_at"`
}

// GrantFileStorageAccess records the grant and mails the access link. The
// grant counts as failed if the link cannot be delivered.
func (c *FileStorageClient) GrantFileStorageAccess(ctx context.Context, email string, userID, subscriptionID uint) error {
	record, err := json.Marshal(fileStorageGrant{
		Email:          email,
		UserID:         userID,
		SubscriptionID: subscriptionID,
		GrantedAt:      time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	key := c.config.GrantObjectKey(userID, subscriptionID)
	_, err = c.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.config.BucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(record),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(record))),
		Metadata: map[string]string{
			"grant-email":  email,
			"grant-source": "subgate",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write access record s3://%s/%s: %w", c.config.BucketName, key, err)
	}

	link, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.config.BucketName),
		Key:    aws.String(c.config.SharedObjectKey),
	}, s3.WithPresignExpires(c.config.LinkTTL))
	if err != nil {
		return fmt.Errorf("failed to presign shared folder link: %w", err)
	}

	body := fmt.Sprintf(`<p>Доступ к файловому хранилищу открыт.</p><p><a href="%s">Открыть хранилище</a></p><p>Ссылка действует %d дн.</p>`,
		link.URL, int(c.config.LinkTTL.Hours()/24))
	if err := c.mailer.SendMail(email, "Доступ к файловому хранилищу", body); err != nil {
		return fmt.Errorf("failed to mail access link: %w", err)
	}
	return nil
}

package sharestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/keyfold/wallet-custody-backend/interfaces"
)

// S3Store implements the server-side share store on Amazon S3 or a
// compatible object store. Objects are private and server-side encrypted;
// the sealed share inside is additionally protected by the PIN-derived key.
type S3Store struct {
	client      *s3.S3
	bucketName  string
	prefix      string
	slot        interfaces.ShareSlot
	log         *slog.Logger
	locationURI string
}

// NewS3Store creates an S3-backed share store. Credentials may be empty to
// use the ambient AWS credential chain.
func NewS3Store(bucketName, prefix, region, endpoint, accessKey, secretKey string, slot interfaces.ShareSlot, log *slog.Logger) (*S3Store, error) {
	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Store{
		client:      s3.New(sess),
		bucketName:  bucketName,
		prefix:      strings.TrimSuffix(prefix, "/"),
		slot:        slot,
		log:         log,
		locationURI: fmt.Sprintf("s3://%s/%s?region=%s", bucketName, prefix, region),
	}, nil
}

// Get retrieves the sealed share record for a wallet from S3.
func (s *S3Store) Get(ctx context.Context, walletID interfaces.WalletID) (*interfaces.ShareRecord, error) {
	start := time.Now()
	key := s.objectKey(walletID)

	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "404") {
			return nil, interfaces.ErrShareUnavailable
		}
		s.log.Error("Failed to get object from S3",
			slog.String("bucket", s.bucketName),
			slog.String("key", key),
			"err", err)
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	record, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}

	s.log.Debug("Fetched share record from S3",
		slog.String("wallet_id", walletID.String()),
		slog.String("slot", s.slot.String()),
		slog.Duration("duration", time.Since(start)))
	return record, nil
}

// Put stores or replaces the sealed share record for a wallet in S3.
func (s *S3Store) Put(ctx context.Context, walletID interfaces.WalletID, record *interfaces.ShareRecord) error {
	data, err := encodeRecord(record)
	if err != nil {
		return err
	}

	key := s.objectKey(walletID)
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucketName),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ServerSideEncryption: aws.String("AES256"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object to S3: %w", err)
	}

	s.log.Debug("Stored share record in S3",
		slog.String("bucket", s.bucketName),
		slog.String("key", key),
		slog.String("wallet_id", walletID.String()))
	return nil
}

// Delete removes the sealed share record for a wallet.
func (s *S3Store) Delete(ctx context.Context, walletID interfaces.WalletID) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(walletID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

// Name returns an identifier for logging.
func (s *S3Store) Name() string {
	return fmt.Sprintf("s3-%s-%s", s.slot, s.bucketName)
}

func (s *S3Store) objectKey(walletID interfaces.WalletID) string {
	name := fmt.Sprintf("%s/%s.json", s.slot, walletID)
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

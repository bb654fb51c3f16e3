package snapshot

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"

	"docsync/internal/awsconf"
	"docsync/internal/config"
	"docsync/internal/docsync"
)

// NewSinkFromConfig creates the configured sink. It returns nil for type
// "none".
func NewSinkFromConfig(ctx context.Context, cfg config.SnapshotConfig) (Sink, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "filesystem":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("filesystem snapshots require dir to be set")
		}
		sink, err := NewFileSystemSink(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 snapshots require s3_bucket to be set")
		}
		awsCfg, err := awsconf.Load(ctx, awsconf.Options{
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		uploader := manager.NewUploader(NewS3Client(awsCfg, cfg.S3Endpoint))
		return NewS3Sink(uploader, cfg.S3Bucket, cfg.S3Prefix), nil
	default:
		return nil, fmt.Errorf("unknown snapshot type: %s", cfg.Type)
	}
}

// NewSnapshotterFromConfig wires a Snapshotter for store. It returns nil when
// snapshots are disabled.
func NewSnapshotterFromConfig(ctx context.Context, cfg config.SnapshotConfig, store Backuper, logger docsync.Logger) (*Snapshotter, error) {
	sink, err := NewSinkFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, nil
	}

	var enc *AgeEncryptor
	if cfg.PublicKeyPath != "" {
		enc = NewAgeEncryptor(cfg.PublicKeyPath, cfg.PrivateKeyPath)
		if !enc.IsConfigured() {
			return nil, fmt.Errorf("snapshot public key %s not found, run 'docsync snapshot keygen'", cfg.PublicKeyPath)
		}
	}
	return NewSnapshotter(store, sink, enc, logger), nil
}

package trainer

import "context"
import "net/url"
import "os"
import "path"
import "path/filepath"
import "strings"

import "github.com/aws/aws-sdk-go/aws"
import "github.com/aws/aws-sdk-go/aws/session"
import "github.com/aws/aws-sdk-go/service/s3"
import "github.com/pkg/errors"
import "k8s.io/klog/v2"

// ParseS3URI splits s3://bucket/prefix into bucket and key prefix.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", errors.Wrap(err, "s3 uri")
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", errors.Errorf("s3 uri %q: want s3://bucket/prefix", uri)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

// Uploader stores a local file under key.
type Uploader interface {
	Upload(ctx context.Context, key, name string) error
}

type s3Uploader struct {
	svc    *s3.S3
	bucket string
}

func (u *s3Uploader) Upload(ctx context.Context, key, name string) error {
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = u.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	return err
}

// S3Sync uploads every new best checkpoint below the S3 prefix. It must run
// after ModelCheckpoint.
type S3Sync struct {
	NopCallback

	Prefix   string
	Uploader Uploader

	uploaded string
}

// NewS3Sync creates an uploader for s3://bucket/prefix. Credentials and the
// region come from the usual AWS environment and shared config.
func NewS3Sync(uri string) (*S3Sync, error) {
	bucket, prefix, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	sess, err := session.NewSessionWithOptions(session.Options{SharedConfigState: session.SharedConfigEnable})
	if err != nil {
		return nil, errors.Wrap(err, "s3 session")
	}
	return &S3Sync{Prefix: prefix, Uploader: &s3Uploader{svc: s3.New(sess), bucket: bucket}}, nil
}

// Key is the object key of a local checkpoint file.
func (s *S3Sync) Key(name string) string {
	return path.Join(s.Prefix, filepath.Base(name))
}

func (s *S3Sync) sync(ctx context.Context, t *Trainer) error {
	name := t.BestCheckpoint
	if name == "" || name == s.uploaded {
		return nil
	}
	key := s.Key(name)
	if err := s.Uploader.Upload(ctx, key, name); err != nil {
		return errors.Wrapf(err, "uploading %s", name)
	}
	s.uploaded = name
	klog.InfoS("uploaded checkpoint", "path", name, "key", key)
	return nil
}

// OnValidationEnd uploads the best checkpoint when it changed.
func (s *S3Sync) OnValidationEnd(ctx context.Context, t *Trainer, _ Metrics) error {
	return s.sync(ctx, t)
}

// OnFitEnd makes sure the final best checkpoint is uploaded.
func (s *S3Sync) OnFitEnd(ctx context.Context, t *Trainer) error {
	return s.sync(ctx, t)
}

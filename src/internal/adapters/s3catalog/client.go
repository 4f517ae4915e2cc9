package s3catalog

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/untruncd/untruncd/src/internal/domain"
)

var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".mkv": true,
	".avi": true,
	".m4v": true,
}

// S3Catalog lists repair candidates stored in S3.
type S3Catalog struct {
	client *s3.Client
}

func New(client *s3.Client) *S3Catalog {
	return &S3Catalog{client: client}
}

// ListVideos returns all video objects under the given prefix, with size
// and last-modified time so reference selection and sizing can run on them.
func (c *S3Catalog) ListVideos(ctx context.Context, bucket, prefix string) ([]domain.Candidate, error) {
	var files []domain.Candidate

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !isVideoKey(key) {
				continue
			}
			cand := domain.Candidate{Path: key}
			if obj.Size != nil {
				cand.Size = *obj.Size
			}
			if obj.LastModified != nil {
				cand.ModTime = *obj.LastModified
			}
			files = append(files, cand)
		}
	}
	return files, nil
}

func isVideoKey(key string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(key))]
}

package repository

import (
	"context"
	"time"

	"social_chat_service/pkg/database"
)

// MinioAvatarSigner presigned GET for avatar objects
type MinioAvatarSigner struct {
	client *database.MinIOClient
	expiry time.Duration
}

// NewMinioAvatarSigner create MinioAvatarSigner
func NewMinioAvatarSigner(client *database.MinIOClient, expiry time.Duration) *MinioAvatarSigner {
	return &MinioAvatarSigner{client: client, expiry: expiry}
}

func (s *MinioAvatarSigner) SignAvatar(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	return s.client.PresignGetURL(ctx, key, s.expiry)
}

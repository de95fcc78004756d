package bootstrap

import (
	"context"
	"fmt"
	"hash/crc32"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type secretVersionAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// secretsAccessor reads config values stored as Secret Manager versions, e.g.
// projects/{project}/secrets/plaid-secret/versions/latest
type secretsAccessor struct {
	client secretVersionAccessor
}

func newSecretsAccessor(client secretVersionAccessor) *secretsAccessor {
	return &secretsAccessor{client: client}
}

func (s *secretsAccessor) AccessSecret(ctx context.Context, name string) (string, error) {
	res, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if status.Code(err) == codes.NotFound {
		return "", fmt.Errorf("secret %s not found", name)
	}
	if err != nil {
		return "", err
	}
	data := res.GetPayload().GetData()
	if sum := res.GetPayload().DataCrc32C; sum != nil && int64(crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli))) != *sum {
		return "", fmt.Errorf("secret %s: payload checksum mismatch", name)
	}
	return string(data), nil
}

func initSecretManager(ctx context.Context) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx)
}

package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretsManager struct {
	out *secretsmanager.GetSecretValueOutput
	err error
	ids []string
}

func (f *fakeSecretsManager) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.ids = append(f.ids, aws.ToString(in.SecretId))
	return f.out, f.err
}

func TestAWSProvider_JSONSecret(t *testing.T) {
	fake := &fakeSecretsManager{out: &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String(`{"jwt_secret":"s3cret"}`),
	}}
	p := &AWSSecretsManagerProvider{client: fake}

	v, err := p.GetSecret(context.Background(), "prod/ledger-service/jwt")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"jwt_secret": "s3cret"}, v)
	assert.Equal(t, []string{"prod/ledger-service/jwt"}, fake.ids)
}

func TestAWSProvider_PlainAndBinarySecrets(t *testing.T) {
	p := &AWSSecretsManagerProvider{client: &fakeSecretsManager{out: &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String("just-a-key"),
	}}}
	v, err := p.GetSecret(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "just-a-key", v[PlainField])

	p = &AWSSecretsManagerProvider{client: &fakeSecretsManager{out: &secretsmanager.GetSecretValueOutput{
		SecretBinary: []byte{0x01, 0x02},
	}}}
	v, err = p.GetSecret(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, string([]byte{0x01, 0x02}), v[PlainField])
}

func TestAWSProvider_Errors(t *testing.T) {
	p := &AWSSecretsManagerProvider{client: &fakeSecretsManager{err: errors.New("AccessDeniedException")}}
	_, err := p.GetSecret(context.Background(), "k")
	assert.ErrorContains(t, err, "AccessDeniedException")

	p = &AWSSecretsManagerProvider{client: &fakeSecretsManager{out: &secretsmanager.GetSecretValueOutput{}}}
	_, err = p.GetSecret(context.Background(), "k")
	assert.ErrorContains(t, err, "is empty")
}

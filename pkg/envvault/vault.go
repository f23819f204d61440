// Package envvault implements the Env Vault (spec §4.5): a single opaque
// environment blob per (userId, serviceId), stored in a KMS-encrypted SSM
// parameter, with the three-way decision table the Inspector uses to decide
// whether to overwrite, no-op, or fail.
package envvault

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// paramClient is the subset of *ssm.Client this package uses, so tests can
// substitute a fake.
type paramClient interface {
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// MaxBlobSize is the hard size ceiling enforced at write (spec §4.5/§3).
const MaxBlobSize = 4096

// placeholderContent is written on an explicit reset with no new content.
const placeholderContent = " "

// ErrMutuallyExclusive is returned when a caller sets both isReset and
// envFileContent.
var ErrMutuallyExclusive = errors.New("cannot specify both isReset and envFileContent")

// ErrInitialEnvRequired is returned when a service has no prior blob and the
// caller supplied no content.
var ErrInitialEnvRequired = errors.New("initial deployment requires env content")

// ErrTooLarge is returned when envFileContent exceeds MaxBlobSize.
var ErrTooLarge = fmt.Errorf("env content exceeds %d byte limit", MaxBlobSize)

// Vault resolves and stores per-service environment blobs.
type Vault struct {
	ssm         paramClient
	projectName string
	kmsKeyArn   string
}

// New creates a Vault.
func New(client *ssm.Client, projectName, kmsKeyArn string) *Vault {
	return &Vault{ssm: client, projectName: projectName, kmsKeyArn: kmsKeyArn}
}

// Path returns the SSM parameter path for a (userId, serviceId) pair.
func (v *Vault) Path(userID, serviceID string) string {
	return fmt.Sprintf("/%s/%s/%s/DOTENV_BLOB", v.projectName, userID, serviceID)
}

// Resolve applies the three-way decision table and returns the path written
// (or already present) so the Inspector can pass it to the builder.
func (v *Vault) Resolve(ctx context.Context, userID, serviceID string, isReset bool, envFileContent string) (string, error) {
	if isReset && envFileContent != "" {
		return "", ErrMutuallyExclusive
	}

	path := v.Path(userID, serviceID)

	if isReset {
		if err := v.put(ctx, path, placeholderContent); err != nil {
			return "", err
		}
		return path, nil
	}

	if envFileContent != "" {
		if len(envFileContent) > MaxBlobSize {
			return "", ErrTooLarge
		}
		if err := v.put(ctx, path, envFileContent); err != nil {
			return "", err
		}
		return path, nil
	}

	exists, err := v.exists(ctx, path)
	if err != nil {
		return "", err
	}
	if exists {
		return path, nil
	}

	return "", ErrInitialEnvRequired
}

func (v *Vault) put(ctx context.Context, path, value string) error {
	_, err := v.ssm.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(path),
		Value:     aws.String(value),
		Type:      ssmtypes.ParameterTypeSecureString,
		KeyId:     aws.String(v.kmsKeyArn),
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("writing env blob %s: %w", path, err)
	}
	return nil
}

func (v *Vault) exists(ctx context.Context, path string) (bool, error) {
	_, err := v.ssm.GetParameter(ctx, &ssm.GetParameterInput{Name: aws.String(path)})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking env blob %s: %w", path, err)
	}
	return true, nil
}

package envvault

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeParamClient struct {
	values     map[string]string
	putErr     error
	putCalls   int
	lastPutVal string
}

func (f *fakeParamClient) PutParameter(ctx context.Context, in *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.putCalls++
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.lastPutVal = *in.Value
	f.values[*in.Name] = *in.Value
	return &ssm.PutParameterOutput{}, nil
}

func (f *fakeParamClient) GetParameter(ctx context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if _, ok := f.values[*in.Name]; !ok {
		msg := "not found"
		return nil, &ssmtypes.ParameterNotFound{Message: &msg}
	}
	return &ssm.GetParameterOutput{}, nil
}

func newVault(fc *fakeParamClient) *Vault {
	return &Vault{ssm: fc, projectName: "whaleray", kmsKeyArn: "arn:kms:key"}
}

func TestResolve_MutuallyExclusive(t *testing.T) {
	v := newVault(&fakeParamClient{values: map[string]string{}})
	_, err := v.Resolve(context.Background(), "u1", "svc1", true, "FOO=1")
	if err != ErrMutuallyExclusive {
		t.Fatalf("expected ErrMutuallyExclusive, got %v", err)
	}
}

func TestResolve_ResetOverwritesWithPlaceholder(t *testing.T) {
	fc := &fakeParamClient{values: map[string]string{}}
	v := newVault(fc)

	path, err := v.Resolve(context.Background(), "u1", "svc1", true, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.lastPutVal != placeholderContent {
		t.Errorf("expected placeholder content, got %q", fc.lastPutVal)
	}
	if !strings.Contains(path, "svc1") {
		t.Errorf("expected path to contain service id, got %s", path)
	}
}

func TestResolve_NewContentOverwrites(t *testing.T) {
	fc := &fakeParamClient{values: map[string]string{}}
	v := newVault(fc)

	_, err := v.Resolve(context.Background(), "u1", "svc1", false, "FOO=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.lastPutVal != "FOO=1" {
		t.Errorf("expected FOO=1, got %q", fc.lastPutVal)
	}
}

func TestResolve_NoopWhenPriorBlobExists(t *testing.T) {
	path := "/whaleray/u1/svc1/DOTENV_BLOB"
	fc := &fakeParamClient{values: map[string]string{path: "EXISTING=1"}}
	v := newVault(fc)

	_, err := v.Resolve(context.Background(), "u1", "svc1", false, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.putCalls != 0 {
		t.Errorf("expected no writes, got %d", fc.putCalls)
	}
}

func TestResolve_FailsWhenNoPriorBlobAndNoContent(t *testing.T) {
	fc := &fakeParamClient{values: map[string]string{}}
	v := newVault(fc)

	_, err := v.Resolve(context.Background(), "u1", "svc1", false, "")
	if err != ErrInitialEnvRequired {
		t.Fatalf("expected ErrInitialEnvRequired, got %v", err)
	}
}

func TestResolve_TooLarge(t *testing.T) {
	fc := &fakeParamClient{values: map[string]string{}}
	v := newVault(fc)

	big := strings.Repeat("a", MaxBlobSize+1)
	_, err := v.Resolve(context.Background(), "u1", "svc1", false, big)
	if err != ErrTooLarge {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

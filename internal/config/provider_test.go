package config

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

var (
	_ SecretProvider = (*SSMProvider)(nil)
	_ SecretProvider = (*EnvVarProvider)(nil)
)

type fakeSSM struct {
	batches [][]string
	invalid []string
	err     error
}

func (f *fakeSSM) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.batches = append(f.batches, in.Names)
	if f.err != nil {
		return nil, f.err
	}
	if !aws.ToBool(in.WithDecryption) {
		return nil, errors.New("decryption not requested")
	}
	out := &ssm.GetParametersOutput{InvalidParameters: f.invalid}
	for _, name := range in.Names {
		out.Parameters = append(out.Parameters, ssmtypes.Parameter{
			Name:  aws.String(name),
			Value: aws.String("value-of-" + name),
		})
	}
	return out, nil
}

func TestSSMProvider_Batches(t *testing.T) {
	client := &fakeSSM{}
	p := newSSMProviderWithClient("us-east-1", client)

	keys := make([]string, 23)
	for i := range keys {
		keys[i] = fmt.Sprintf("/prod/bugspotter/k%02d", i)
	}

	got, err := p.GetParametersBatch(context.Background(), keys)
	if err != nil {
		t.Fatalf("GetParametersBatch: %v", err)
	}
	if len(got) != 23 {
		t.Fatalf("resolved %d keys, want 23", len(got))
	}
	if got["/prod/bugspotter/k07"] != "value-of-/prod/bugspotter/k07" {
		t.Errorf("unexpected value %q", got["/prod/bugspotter/k07"])
	}
	if len(client.batches) != 3 || len(client.batches[2]) != 3 {
		t.Errorf("batch sizes = %v, want 10/10/3", client.batches)
	}
}

func TestSSMProvider_Errors(t *testing.T) {
	t.Run("invalid parameters", func(t *testing.T) {
		p := newSSMProviderWithClient("us-east-1", &fakeSSM{invalid: []string{"/prod/missing"}})
		if _, err := p.GetParametersBatch(context.Background(), []string{"/prod/missing"}); err == nil {
			t.Fatal("expected error for invalid parameter")
		}
	})

	t.Run("api error", func(t *testing.T) {
		boom := errors.New("AccessDenied")
		p := newSSMProviderWithClient("us-east-1", &fakeSSM{err: boom})
		if _, err := p.GetParametersBatch(context.Background(), []string{"/prod/a"}); !errors.Is(err, boom) {
			t.Fatalf("expected wrapped api error, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		client := &fakeSSM{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := newSSMProviderWithClient("us-east-1", client)
		if _, err := p.GetParametersBatch(ctx, []string{"/prod/a"}); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if len(client.batches) != 0 {
			t.Error("no call should be made after cancellation")
		}
	})

	t.Run("empty keys skip the client", func(t *testing.T) {
		p := NewSSMProvider("us-east-1", "")
		got, err := p.GetParametersBatch(context.Background(), nil)
		if err != nil || got == nil || len(got) != 0 {
			t.Fatalf("got (%v, %v), want empty map", got, err)
		}
	})
}

func TestEnvVarProvider(t *testing.T) {
	t.Setenv("BUGSPOTTER_TEST_SECRET", "shh")

	got, err := NewEnvVarProvider().GetParametersBatch(context.Background(),
		[]string{"BUGSPOTTER_TEST_SECRET", "BUGSPOTTER_TEST_UNSET_XYZ"})
	if err != nil {
		t.Fatalf("GetParametersBatch: %v", err)
	}
	if len(got) != 1 || got["BUGSPOTTER_TEST_SECRET"] != "shh" {
		t.Errorf("got %v", got)
	}
}

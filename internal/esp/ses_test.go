package esp

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/ignite/sequence-engine/internal/domain"
	"github.com/ignite/sequence-engine/internal/service/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	in  *sesv2.SendEmailInput
	out *sesv2.SendEmailOutput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	return f.out, f.err
}

type senderFunc func(context.Context, *sequence.Message) (string, error)

func (f senderFunc) Send(ctx context.Context, m *sequence.Message) (string, error) { return f(ctx, m) }

type staticContent struct{}

func (staticContent) Resolve(context.Context, string) (*sequence.Content, error) {
	return &sequence.Content{Subject: "s"}, nil
}

func enrollment() *domain.Enrollment {
	return &domain.Enrollment{ID: "enr-1", Email: "ada@example.com"}
}

func oneStep() *domain.Sequence {
	return &domain.Sequence{ID: "seq", Steps: []domain.Step{{Position: 0, ContentRef: "c"}}}
}

func TestSESSenderSend(t *testing.T) {
	api := &fakeSES{out: &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}}
	s := NewSESSenderWithClient(api, "team@example.com")

	id, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "ses-1", id)
	assert.Equal(t, []string{"ada@example.com"}, api.in.Destination.ToAddresses)
	assert.Equal(t, "Welcome", aws.ToString(api.in.Content.Simple.Subject.Data))
	assert.Nil(t, api.in.Content.Simple.Body.Text)
	assert.Len(t, api.in.EmailTags, 2)
}

func TestSESSenderClassifiesFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"rejected", &types.MessageRejected{Message: aws.String("bad address")}, false},
		{"bad request", &types.BadRequestException{Message: aws.String("invalid")}, false},
		{"throttled", &types.TooManyRequestsException{Message: aws.String("slow down")}, true},
		{"paused account", &types.SendingPausedException{Message: aws.String("paused")}, true},
		{"network", errors.New("dial tcp: i/o timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSESSenderWithClient(&fakeSES{err: tt.err}, "team@example.com")
			_, err := s.Send(context.Background(), testMessage())

			var se *SendError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.transient, se.Temporary())
		})
	}
}

func TestSESSenderEmptyMessageID(t *testing.T) {
	s := NewSESSenderWithClient(&fakeSES{out: &sesv2.SendEmailOutput{}}, "team@example.com")
	_, err := s.Send(context.Background(), testMessage())
	var se *SendError
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Temporary())
}

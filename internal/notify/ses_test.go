package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSESClient struct {
	sent      []*sesv2.SendEmailInput
	created   []*sesv2.CreateEmailTemplateInput
	updated   []*sesv2.UpdateEmailTemplateInput
	sendErr   error
	createErr error
}

func (m *mockSESClient) SendEmail(_ context.Context, input *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, input)
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func (m *mockSESClient) CreateEmailTemplate(_ context.Context, input *sesv2.CreateEmailTemplateInput, _ ...func(*sesv2.Options)) (*sesv2.CreateEmailTemplateOutput, error) {
	m.created = append(m.created, input)
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &sesv2.CreateEmailTemplateOutput{}, nil
}

func (m *mockSESClient) UpdateEmailTemplate(_ context.Context, input *sesv2.UpdateEmailTemplateInput, _ ...func(*sesv2.Options)) (*sesv2.UpdateEmailTemplateOutput, error) {
	m.updated = append(m.updated, input)
	return &sesv2.UpdateEmailTemplateOutput{}, nil
}

func TestSESDispatcher_Template(t *testing.T) {
	mock := &mockSESClient{}
	d := NewSESDispatcher(mock, SESOptions{
		From:             "audit@example.com",
		ConfigurationSet: "compliance",
		Recipients:       Recipients{Default: []string{"ops@example.com"}},
	})

	id, err := d.Dispatch(context.Background(), financeReport())
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	require.Len(t, mock.sent, 1)

	in := mock.sent[0]
	assert.Equal(t, "audit@example.com", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"ops@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "compliance", aws.ToString(in.ConfigurationSetName))
	require.NotNil(t, in.Content.Template)
	assert.Nil(t, in.Content.Raw)
	assert.Equal(t, DefaultTemplateName, aws.ToString(in.Content.Template.TemplateName))

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.Content.Template.TemplateData)), &data))
	assert.Equal(t, "Finance", data["BusinessUnit"])
	assert.Equal(t, "finance-aggregator", data["AggregatorName"])
}

func TestSESDispatcher_Raw(t *testing.T) {
	mock := &mockSESClient{}
	d := NewSESDispatcher(mock, SESOptions{
		Mode:       ModeRaw,
		From:       "audit@example.com",
		Recipients: Recipients{Default: []string{"ops@example.com"}},
	})

	_, err := d.Dispatch(context.Background(), financeReport())
	require.NoError(t, err)
	require.Len(t, mock.sent, 1)
	require.NotNil(t, mock.sent[0].Content.Raw)

	msg, err := mail.ReadMessage(bytes.NewReader(mock.sent[0].Content.Raw.Data))
	require.NoError(t, err)
	assert.Equal(t, "Finance AWS Accounts Compliance Report", msg.Header.Get("Subject"))
	assert.Equal(t, "ops@example.com", msg.Header.Get("To"))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])
	text, err := mr.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(text)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Finance")

	att, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "data.json", att.FileName())
}

func TestSESDispatcher_APIError(t *testing.T) {
	mock := &mockSESClient{sendErr: &sestypes.MessageRejected{Message: aws.String("Email address is not verified.")}}
	d := NewSESDispatcher(mock, SESOptions{Recipients: Recipients{Default: []string{"ops@example.com"}}})

	_, err := d.Dispatch(context.Background(), financeReport())
	require.Error(t, err)

	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "MessageRejected", de.Code)
	assert.Equal(t, "Email address is not verified.", de.Message)
	assert.Equal(t, "Finance", de.BusinessUnit)
}

func TestSESDispatcher_NoRecipientsSkipsSend(t *testing.T) {
	mock := &mockSESClient{}
	d := NewSESDispatcher(mock, SESOptions{})

	_, err := d.Dispatch(context.Background(), financeReport())
	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, CodeNoRecipients, de.Code)
	assert.Empty(t, mock.sent)
}

func TestUploadTemplate_Create(t *testing.T) {
	mock := &mockSESClient{}
	err := UploadTemplate(context.Background(), mock, Template{Name: "T", Subject: DefaultSubject, HTML: "<p>{{BusinessUnit}}</p>"})
	require.NoError(t, err)
	require.Len(t, mock.created, 1)
	assert.Empty(t, mock.updated)
	assert.Nil(t, mock.created[0].TemplateContent.Text)
}

func TestUploadTemplate_UpdatesExisting(t *testing.T) {
	mock := &mockSESClient{createErr: &sestypes.AlreadyExistsException{Message: aws.String("exists")}}
	err := UploadTemplate(context.Background(), mock, Template{Name: "T", Subject: DefaultSubject, Text: "Non Compliance Aggregator"})
	require.NoError(t, err)
	require.Len(t, mock.updated, 1)
	assert.Equal(t, "T", aws.ToString(mock.updated[0].TemplateName))
}

func TestUploadTemplate_CreateFails(t *testing.T) {
	mock := &mockSESClient{createErr: errors.New("access denied")}
	err := UploadTemplate(context.Background(), mock, Template{Name: "T"})
	require.Error(t, err)
	assert.Empty(t, mock.updated)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeTemplate, m)

	m, err = ParseMode("raw")
	require.NoError(t, err)
	assert.Equal(t, ModeRaw, m)

	_, err = ParseMode("smtp")
	assert.Error(t, err)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "Finance AWS Accounts Compliance Report", Subject(DefaultSubject, "Finance"))
}

func TestWrapBase64(t *testing.T) {
	out := wrapBase64(bytes.Repeat([]byte("x"), 120))
	for _, line := range bytes.Split([]byte(out), []byte("\r\n")) {
		assert.LessOrEqual(t, len(line), 76)
	}
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/ppiankov/configspectre/internal/analyzer"
	"github.com/ppiankov/configspectre/internal/report"
)

// SESAPI is the minimal interface for SES v2 operations.
type SESAPI interface {
	SendEmail(ctx context.Context, input *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	CreateEmailTemplate(ctx context.Context, input *sesv2.CreateEmailTemplateInput, opts ...func(*sesv2.Options)) (*sesv2.CreateEmailTemplateOutput, error)
	UpdateEmailTemplate(ctx context.Context, input *sesv2.UpdateEmailTemplateInput, opts ...func(*sesv2.Options)) (*sesv2.UpdateEmailTemplateOutput, error)
}

// Mode selects how reports are rendered into mail.
type Mode string

const (
	// ModeTemplate sends the report as data for a stored SES template.
	ModeTemplate Mode = "template"
	// ModeRaw sends a MIME message with the report attached as data.json.
	ModeRaw Mode = "raw"
)

// DefaultTemplateName is the SES template reports are rendered with.
const DefaultTemplateName = "AWSConfigComplianceReport"

// DefaultSubject is the subject line; {{BusinessUnit}} is substituted.
const DefaultSubject = "{{BusinessUnit}} AWS Accounts Compliance Report"

// ParseMode accepts "template", "raw" or empty (template).
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeTemplate:
		return ModeTemplate, nil
	case ModeRaw:
		return ModeRaw, nil
	}
	return "", fmt.Errorf("unknown delivery mode %q (use template or raw)", s)
}

// SESOptions configures an SESDispatcher.
type SESOptions struct {
	Mode             Mode
	From             string
	ReplyTo          []string
	SourceARN        string
	ConfigurationSet string
	Template         string
	Subject          string
	Recipients       Recipients
}

// SESDispatcher sends reports through SES v2.
type SESDispatcher struct {
	client SESAPI
	opts   SESOptions
}

// NewSESDispatcher creates a dispatcher, filling defaults for unset options.
func NewSESDispatcher(client SESAPI, opts SESOptions) *SESDispatcher {
	if opts.Mode == "" {
		opts.Mode = ModeTemplate
	}
	if opts.Template == "" {
		opts.Template = DefaultTemplateName
	}
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}
	return &SESDispatcher{client: client, opts: opts}
}

// Dispatch sends r and returns the SES message ID.
func (d *SESDispatcher) Dispatch(ctx context.Context, r *analyzer.Report) (string, error) {
	to, err := d.opts.Recipients.Resolve(r)
	if err != nil {
		return "", err
	}

	data, err := report.TemplateData(r)
	if err != nil {
		return "", err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(d.opts.From),
		Destination:      &sestypes.Destination{ToAddresses: to},
		ReplyToAddresses: d.opts.ReplyTo,
	}
	if d.opts.SourceARN != "" {
		input.FromEmailAddressIdentityArn = aws.String(d.opts.SourceARN)
	}
	if d.opts.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(d.opts.ConfigurationSet)
	}

	switch d.opts.Mode {
	case ModeRaw:
		msg, err := buildRawMessage(rawMessage{
			From:       d.opts.From,
			To:         to,
			ReplyTo:    d.opts.ReplyTo,
			Subject:    Subject(d.opts.Subject, r.BusinessUnit),
			Body:       fmt.Sprintf("Please review the attached compliance report for %s.\n", r.BusinessUnit),
			Attachment: data,
		})
		if err != nil {
			return "", err
		}
		input.Content = &sestypes.EmailContent{Raw: &sestypes.RawMessage{Data: msg}}
	default:
		input.Content = &sestypes.EmailContent{
			Template: &sestypes.Template{
				TemplateName: aws.String(d.opts.Template),
				TemplateData: aws.String(string(data)),
			},
		}
	}

	out, err := d.client.SendEmail(ctx, input)
	if err != nil {
		return "", deliveryError(r.BusinessUnit, err)
	}

	id := aws.ToString(out.MessageId)
	slog.Info("Report sent",
		"aggregator", r.AggregatorName,
		"business_unit", r.BusinessUnit,
		"recipients", len(to),
		"message_id", id,
	)
	return id, nil
}

// Subject substitutes the business unit into a subject template.
func Subject(tmpl, businessUnit string) string {
	return strings.ReplaceAll(tmpl, "{{BusinessUnit}}", businessUnit)
}

func deliveryError(businessUnit string, err error) error {
	de := &DeliveryError{Code: "Unknown", Message: err.Error(), BusinessUnit: businessUnit, Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		de.Code = apiErr.ErrorCode()
		de.Message = apiErr.ErrorMessage()
	}
	return de
}

// Template is the content of a stored SES email template.
type Template struct {
	Name    string
	Subject string
	Text    string
	HTML    string
}

// UploadTemplate creates the template, or updates it when it already exists.
func UploadTemplate(ctx context.Context, client SESAPI, t Template) error {
	content := &sestypes.EmailTemplateContent{
		Subject: aws.String(t.Subject),
	}
	if t.Text != "" {
		content.Text = aws.String(t.Text)
	}
	if t.HTML != "" {
		content.Html = aws.String(t.HTML)
	}

	_, err := client.CreateEmailTemplate(ctx, &sesv2.CreateEmailTemplateInput{
		TemplateName:    aws.String(t.Name),
		TemplateContent: content,
	})
	if err == nil {
		slog.Info("Created email template", "template", t.Name)
		return nil
	}

	var exists *sestypes.AlreadyExistsException
	if !errors.As(err, &exists) {
		return fmt.Errorf("create email template %s: %w", t.Name, err)
	}

	if _, err := client.UpdateEmailTemplate(ctx, &sesv2.UpdateEmailTemplateInput{
		TemplateName:    aws.String(t.Name),
		TemplateContent: content,
	}); err != nil {
		return fmt.Errorf("update email template %s: %w", t.Name, err)
	}
	slog.Info("Updated email template", "template", t.Name)
	return nil
}

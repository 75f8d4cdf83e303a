package commands

import (
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/spf13/cobra"

	"github.com/ppiankov/configspectre/internal/aws"
	"github.com/ppiankov/configspectre/internal/notify"
)

var templateFlags struct {
	name     string
	subject  string
	text     string
	htmlFile string
}

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Upload the SES email template reports are rendered with",
	Long: `Create or update the SES v2 email template used in template delivery mode.
The HTML part receives the report JSON as template data.`,
	RunE: runTemplate,
}

func init() {
	templateCmd.Flags().StringVar(&templateFlags.name, "name", "", "Template name (default: delivery.template or AWSConfigComplianceReport)")
	templateCmd.Flags().StringVar(&templateFlags.subject, "subject", "", "Subject line (default: delivery.subject)")
	templateCmd.Flags().StringVar(&templateFlags.text, "text", "Non Compliance Aggregator", "Plain text part")
	templateCmd.Flags().StringVar(&templateFlags.htmlFile, "html", "", "HTML part file")
	_ = templateCmd.MarkFlagRequired("html")
}

func runTemplate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	html, err := os.ReadFile(templateFlags.htmlFile)
	if err != nil {
		return fmt.Errorf("read template html: %w", err)
	}

	t := notify.Template{
		Name:    firstNonEmpty(templateFlags.name, cfg.Delivery.Template, notify.DefaultTemplateName),
		Subject: firstNonEmpty(templateFlags.subject, cfg.Delivery.Subject, notify.DefaultSubject),
		Text:    templateFlags.text,
		HTML:    string(html),
	}

	client, err := aws.NewClient(ctx, resolveProfile(), resolveHomeRegion(), aws.RetryConfig{MaxAttempts: cfg.MaxAttempts})
	if err != nil {
		return enhanceError("initialize AWS client", err)
	}

	if err := notify.UploadTemplate(ctx, sesv2.NewFromConfig(client.Config()), t); err != nil {
		return enhanceError("upload template", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Template %s is up to date\n", t.Name)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

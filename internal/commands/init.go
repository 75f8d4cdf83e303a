package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initFlags struct {
	force bool
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate sample config, rule metadata and IAM policy",
	Long: `Creates a sample .configspectre.yaml, a starter rule_info.json metadata file
and an IAM policy JSON file with the permissions a run needs.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initFlags.force, "force", false, "Overwrite existing files")
}

func runInit(_ *cobra.Command, _ []string) error {
	files := []struct {
		path    string
		content string
	}{
		{".configspectre.yaml", sampleConfig},
		{"rule_info.json", sampleRuleInfo},
		{"configspectre-policy.json", sampleIAMPolicy},
	}

	for _, f := range files {
		if err := writeIfNotExists(f.path, f.content, initFlags.force); err != nil {
			return err
		}
	}

	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit .configspectre.yaml: sender address, recipients, regions")
	fmt.Println("  2. Add a severity for every rule you report on to rule_info.json")
	fmt.Println("  3. Apply configspectre-policy.json to your AWS IAM role/user")
	fmt.Println("  4. Run: configspectre run --dry-run")
	return nil
}

func writeIfNotExists(path, content string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("Skipping %s (already exists, use --force to overwrite)\n", path)
			return nil
		}
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("Created %s\n", path)
	return nil
}

const sampleConfig = `# configspectre configuration
# See: https://github.com/ppiankov/configspectre

# AWS profile (or set AWS_PROFILE env var)
# profile: default

# Home regions of the aggregators (default: region from AWS config)
# regions:
#   - us-east-1

# Region for SES, CloudWatch and S3 calls
# home_region: us-east-1

# Only aggregators tagged level_tag=level are reported
level_tag: AggregatorLevel
level: BusinessUnit
business_unit_tag: BusinessUnit

# Send to the address in the contact tag instead of the recipient lists
use_contact_tag: false
contact_tag: DevOpsContact

# Rule metadata: local path or s3://bucket/key (.json, .yaml, .yml)
metadata: rule_info.json
enrich: true

# Base rule name is the first capture group
rule_name_pattern: '^[^-]+-(.+)-[^-]+$'
# Rule names that do not match: skip or fail
unmatched: skip

concurrency: 1
timeout: 10m
max_attempts: 5
max_backoff: 20s

delivery:
  # template (stored SES template) or raw (MIME mail with data.json attached)
  mode: template
  from: compliance@example.com
  template: AWSConfigComplianceReport
  subject: "{{BusinessUnit}} AWS Accounts Compliance Report"
  recipients:
    default:
      - devops@example.com
    # business_units:
    #   Finance:
    #     - finance-ops@example.com

metrics:
  enabled: false
  namespace: ConfigSpectre

# archive:
#   uri: s3://compliance-reports/daily
`

const sampleRuleInfo = `{
  "s3-bucket-public-read-prohibited": {
    "severity": "High",
    "description": "S3 buckets must not allow public read access"
  },
  "iam-user-mfa-enabled": {
    "severity": "Medium",
    "description": "IAM users must have MFA enabled"
  },
  "cloudtrail-enabled": {
    "severity": "Low",
    "description": "CloudTrail must be enabled in every region"
  }
}
`

const sampleIAMPolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Sid": "ConfigSpectreRead",
      "Effect": "Allow",
      "Action": [
        "config:DescribeConfigurationAggregators",
        "config:ListTagsForResource",
        "config:DescribeAggregateComplianceByConfigRules",
        "config:GetAggregateComplianceDetailsByConfigRule",
        "ec2:DescribeRegions",
        "sts:GetCallerIdentity"
      ],
      "Resource": "*"
    },
    {
      "Sid": "ConfigSpectreDeliver",
      "Effect": "Allow",
      "Action": [
        "ses:SendEmail",
        "ses:SendRawEmail",
        "ses:CreateEmailTemplate",
        "ses:UpdateEmailTemplate",
        "cloudwatch:PutMetricData",
        "s3:GetObject",
        "s3:PutObject"
      ],
      "Resource": "*"
    }
  ]
}
`

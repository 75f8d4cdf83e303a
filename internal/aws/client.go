package aws

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// EC2API is the minimal interface for region discovery.
type EC2API interface {
	DescribeRegions(ctx context.Context, input *ec2.DescribeRegionsInput, opts ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

// STSAPI is the minimal interface for caller identity lookups.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, input *sts.GetCallerIdentityInput, opts ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// RetryConfig bounds the SDK standard retryer.
type RetryConfig struct {
	MaxAttempts int
	MaxBackoff  time.Duration
}

// Client wraps the AWS SDK configuration for creating service clients.
type Client struct {
	cfg aws.Config
}

// NewClient creates a new AWS client using the specified profile and region.
// If profile is empty, the default credential chain is used.
// If region is empty, the default region from config/env is used.
// Every service client built from it retries throttling and transient errors
// with exponential backoff, bounded by rc.
func NewClient(ctx context.Context, profile, region string, rc RetryConfig) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	opts = append(opts, awsconfig.WithRetryer(newRetryer(rc)))

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Client{cfg: cfg}, nil
}

func newRetryer(rc RetryConfig) func() aws.Retryer {
	return func() aws.Retryer {
		var r aws.Retryer = retry.NewStandard(func(o *retry.StandardOptions) {
			if rc.MaxBackoff > 0 {
				o.MaxBackoff = rc.MaxBackoff
			}
		})
		if rc.MaxAttempts > 0 {
			r = retry.AddWithMaxAttempts(r, rc.MaxAttempts)
		}
		return r
	}
}

// Config returns the underlying AWS config.
func (c *Client) Config() aws.Config {
	return c.cfg
}

// ConfigForRegion returns a copy of the AWS config with the region overridden.
func (c *Client) ConfigForRegion(region string) aws.Config {
	cfg := c.cfg.Copy()
	if region != "" {
		cfg.Region = region
	}
	return cfg
}

// ListEnabledRegions returns all enabled regions for the account.
func (c *Client) ListEnabledRegions(ctx context.Context) ([]string, error) {
	return ListEnabledRegions(ctx, ec2.NewFromConfig(c.cfg))
}

// ListEnabledRegions returns the regions enabled for the account behind api.
func ListEnabledRegions(ctx context.Context, api EC2API) ([]string, error) {
	out, err := api.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		AllRegions: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("describe regions: %w", err)
	}

	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		if r.RegionName != nil {
			regions = append(regions, *r.RegionName)
		}
	}

	slog.Debug("Discovered enabled regions", "count", len(regions))
	return regions, nil
}

// Identity describes the principal the run executes as.
type Identity struct {
	Account string
	ARN     string
}

// CallerIdentity returns the account and ARN of the configured credentials.
func (c *Client) CallerIdentity(ctx context.Context) (Identity, error) {
	return CallerIdentity(ctx, sts.NewFromConfig(c.cfg))
}

// CallerIdentity asks STS who the credentials behind api belong to.
func CallerIdentity(ctx context.Context, api STSAPI) (Identity, error) {
	out, err := api.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("get caller identity: %w", err)
	}
	return Identity{Account: deref(out.Account), ARN: deref(out.Arn)}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

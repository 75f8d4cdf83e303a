package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/configservice"
)

// ConfigAPI is the minimal interface for AWS Config aggregator operations.
type ConfigAPI interface {
	DescribeConfigurationAggregators(ctx context.Context, input *configservice.DescribeConfigurationAggregatorsInput, opts ...func(*configservice.Options)) (*configservice.DescribeConfigurationAggregatorsOutput, error)
	ListTagsForResource(ctx context.Context, input *configservice.ListTagsForResourceInput, opts ...func(*configservice.Options)) (*configservice.ListTagsForResourceOutput, error)
	DescribeAggregateComplianceByConfigRules(ctx context.Context, input *configservice.DescribeAggregateComplianceByConfigRulesInput, opts ...func(*configservice.Options)) (*configservice.DescribeAggregateComplianceByConfigRulesOutput, error)
	GetAggregateComplianceDetailsByConfigRule(ctx context.Context, input *configservice.GetAggregateComplianceDetailsByConfigRuleInput, opts ...func(*configservice.Options)) (*configservice.GetAggregateComplianceDetailsByConfigRuleOutput, error)
}

// ConfigService bundles the AWS Config readers for one home region.
type ConfigService struct {
	region      string
	Tags        *TagResolver
	Catalog     *AggregatorCatalog
	Rules       *RuleFetcher
	Evaluations *EvaluationFetcher
}

// NewConfigService wires all readers to a single AWS Config client.
func NewConfigService(client ConfigAPI, region string) *ConfigService {
	tags := NewTagResolver(client)
	return &ConfigService{
		region:      region,
		Tags:        tags,
		Catalog:     NewAggregatorCatalog(client, tags, region),
		Rules:       NewRuleFetcher(client),
		Evaluations: NewEvaluationFetcher(client),
	}
}

// NewConfigServiceForRegion builds a ConfigService from the client's credentials.
func (c *Client) NewConfigServiceForRegion(region string) *ConfigService {
	cfg := c.ConfigForRegion(region)
	return NewConfigService(configservice.NewFromConfig(cfg), cfg.Region)
}

// Region returns the home region of the aggregators this service reads.
func (s *ConfigService) Region() string {
	return s.region
}

// nextToken normalises a continuation token; an empty token ends pagination.
func nextToken(tok *string) (*string, bool) {
	if tok == nil || *tok == "" {
		return nil, false
	}
	return tok, true
}

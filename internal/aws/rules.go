package aws

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/configservice"
	cfgtypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"
)

// RuleFetcher lists rules with non-compliant evaluations inside an aggregator.
type RuleFetcher struct {
	client ConfigAPI
}

// NewRuleFetcher creates a fetcher backed by the given client.
func NewRuleFetcher(client ConfigAPI) *RuleFetcher {
	return &RuleFetcher{client: client}
}

// ListNonCompliantRules returns every non-compliant rule stub of the aggregator
// in page order.
func (f *RuleFetcher) ListNonCompliantRules(ctx context.Context, aggregator string) ([]ComplianceRule, error) {
	input := &configservice.DescribeAggregateComplianceByConfigRulesInput{
		ConfigurationAggregatorName: &aggregator,
		Filters: &cfgtypes.ConfigRuleComplianceFilters{
			ComplianceType: cfgtypes.ComplianceTypeNonCompliant,
		},
	}

	var rules []ComplianceRule
	pages := 0
	for {
		out, err := f.client.DescribeAggregateComplianceByConfigRules(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("describe aggregate compliance for %s: %w", aggregator, err)
		}
		pages++

		for _, r := range out.AggregateComplianceByConfigRules {
			rules = append(rules, ComplianceRule{
				Name:      deref(r.ConfigRuleName),
				AccountID: deref(r.AccountId),
				Region:    deref(r.AwsRegion),
			})
		}

		tok, more := nextToken(out.NextToken)
		if !more {
			break
		}
		input.NextToken = tok
	}

	slog.Debug("Listed non-compliant rules", "aggregator", aggregator, "rules", len(rules), "pages", pages)
	return rules, nil
}

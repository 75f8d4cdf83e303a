package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/configservice"
	cfgtypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"
)

// EvaluationFetcher lists the non-compliant resources behind one rule stub.
type EvaluationFetcher struct {
	client ConfigAPI
}

// NewEvaluationFetcher creates a fetcher backed by the given client.
func NewEvaluationFetcher(client ConfigAPI) *EvaluationFetcher {
	return &EvaluationFetcher{client: client}
}

// ListEvaluations returns the non-compliant evaluations of rule in its account
// and region, in page order. Account and region are taken from the stub.
func (f *EvaluationFetcher) ListEvaluations(ctx context.Context, aggregator string, rule ComplianceRule) ([]ResourceEvaluation, error) {
	input := &configservice.GetAggregateComplianceDetailsByConfigRuleInput{
		ConfigurationAggregatorName: &aggregator,
		ConfigRuleName:              &rule.Name,
		AccountId:                   &rule.AccountID,
		AwsRegion:                   &rule.Region,
		ComplianceType:              cfgtypes.ComplianceTypeNonCompliant,
	}

	var evals []ResourceEvaluation
	for {
		out, err := f.client.GetAggregateComplianceDetailsByConfigRule(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("get compliance details for %s (%s/%s): %w", rule.Name, rule.AccountID, rule.Region, err)
		}

		for _, r := range out.AggregateEvaluationResults {
			evals = append(evals, toEvaluation(r, rule))
		}

		tok, more := nextToken(out.NextToken)
		if !more {
			break
		}
		input.NextToken = tok
	}
	return evals, nil
}

func toEvaluation(r cfgtypes.AggregateEvaluationResult, rule ComplianceRule) ResourceEvaluation {
	ev := ResourceEvaluation{
		ConfigRuleName:     rule.Name,
		AccountID:          rule.AccountID,
		Region:             rule.Region,
		Annotation:         deref(r.Annotation),
		ResultRecordedTime: r.ResultRecordedTime,
	}
	if r.EvaluationResultIdentifier != nil && r.EvaluationResultIdentifier.EvaluationResultQualifier != nil {
		q := r.EvaluationResultIdentifier.EvaluationResultQualifier
		if q.ConfigRuleName != nil {
			ev.ConfigRuleName = *q.ConfigRuleName
		}
		ev.ResourceType = deref(q.ResourceType)
		ev.ResourceID = deref(q.ResourceId)
		ev.EvaluationMode = string(q.EvaluationMode)
	}
	return ev
}

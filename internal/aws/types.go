package aws

import "time"

// Aggregator is an AWS Config configuration aggregator with its tags.
type Aggregator struct {
	Name   string            `json:"name"`
	ARN    string            `json:"arn"`
	Region string            `json:"region"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// ComplianceRule is a config rule with at least one non-compliant evaluation,
// scoped to the account and region it was evaluated in.
type ComplianceRule struct {
	Name      string `json:"ConfigRuleName"`
	AccountID string `json:"AccountId"`
	Region    string `json:"AwsRegion"`
}

// ResourceEvaluation is one non-compliant resource reported for a rule.
// JSON keys mirror the AWS evaluation qualifier so mail templates can address them.
type ResourceEvaluation struct {
	ConfigRuleName     string     `json:"ConfigRuleName"`
	ResourceType       string     `json:"ResourceType"`
	ResourceID         string     `json:"ResourceId"`
	EvaluationMode     string     `json:"EvaluationMode,omitempty"`
	AccountID          string     `json:"AccountId"`
	Region             string     `json:"AwsRegion"`
	Annotation         string     `json:"Annotation,omitempty"`
	ResultRecordedTime *time.Time `json:"ResultRecordedTime,omitempty"`
}

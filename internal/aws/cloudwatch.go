package aws

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	// maxMetricDatums is the maximum number of datums per PutMetricData call.
	maxMetricDatums = 1000
	// DefaultMetricNamespace is used when no namespace is configured.
	DefaultMetricNamespace = "ConfigSpectre"
)

// CloudWatchAPI is the minimal interface for CloudWatch operations needed by the metrics publisher.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, input *cloudwatch.PutMetricDataInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// ComplianceCounts summarises one aggregator report for publishing.
type ComplianceCounts struct {
	BusinessUnit string
	Aggregator   string
	Rules        int
	Resources    int
	BySeverity   map[string]int
}

// MetricsPublisher writes compliance counts to CloudWatch.
type MetricsPublisher struct {
	client    CloudWatchAPI
	namespace string
	now       func() time.Time
}

// NewMetricsPublisher creates a publisher writing to the given namespace.
func NewMetricsPublisher(client CloudWatchAPI, namespace string) *MetricsPublisher {
	if namespace == "" {
		namespace = DefaultMetricNamespace
	}
	return &MetricsPublisher{client: client, namespace: namespace, now: time.Now}
}

// NewMetricsPublisher creates a publisher using the client's credentials and region.
func (c *Client) NewMetricsPublisher(namespace string) *MetricsPublisher {
	return NewMetricsPublisher(cloudwatch.NewFromConfig(c.cfg), namespace)
}

// Publish sends NonCompliantRules, NonCompliantResources and one
// ResourcesBySeverity datum per severity for each report.
func (p *MetricsPublisher) Publish(ctx context.Context, counts []ComplianceCounts) error {
	datums := p.buildDatums(counts)
	if len(datums) == 0 {
		return nil
	}

	batches := batchDatums(datums, maxMetricDatums)
	for batchIdx, batch := range batches {
		slog.Debug("Publishing CloudWatch metrics", "batch", batchIdx+1, "total_batches", len(batches), "count", len(batch))

		_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  awssdk.String(p.namespace),
			MetricData: batch,
		})
		if err != nil {
			return fmt.Errorf("put metric data (%s): %w", p.namespace, err)
		}
	}
	return nil
}

func (p *MetricsPublisher) buildDatums(counts []ComplianceCounts) []cwtypes.MetricDatum {
	ts := p.now().UTC()
	var datums []cwtypes.MetricDatum

	for _, c := range counts {
		dims := []cwtypes.Dimension{
			{Name: awssdk.String("BusinessUnit"), Value: awssdk.String(c.BusinessUnit)},
			{Name: awssdk.String("Aggregator"), Value: awssdk.String(c.Aggregator)},
		}
		datums = append(datums,
			countDatum("NonCompliantRules", dims, c.Rules, ts),
			countDatum("NonCompliantResources", dims, c.Resources, ts),
		)

		severities := make([]string, 0, len(c.BySeverity))
		for s := range c.BySeverity {
			severities = append(severities, s)
		}
		sort.Strings(severities)

		for _, s := range severities {
			sevDims := append(append([]cwtypes.Dimension{}, dims...), cwtypes.Dimension{
				Name: awssdk.String("Severity"), Value: awssdk.String(s),
			})
			datums = append(datums, countDatum("ResourcesBySeverity", sevDims, c.BySeverity[s], ts))
		}
	}
	return datums
}

func countDatum(name string, dims []cwtypes.Dimension, v int, ts time.Time) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: awssdk.String(name),
		Dimensions: dims,
		Value:      awssdk.Float64(float64(v)),
		Unit:       cwtypes.StandardUnitCount,
		Timestamp:  awssdk.Time(ts),
	}
}

// batchDatums splits datums into batches of the given size.
func batchDatums(datums []cwtypes.MetricDatum, batchSize int) [][]cwtypes.MetricDatum {
	if batchSize <= 0 {
		batchSize = maxMetricDatums
	}

	var batches [][]cwtypes.MetricDatum
	for i := 0; i < len(datums); i += batchSize {
		end := i + batchSize
		if end > len(datums) {
			end = len(datums)
		}
		batches = append(batches, datums[i:end])
	}
	return batches
}

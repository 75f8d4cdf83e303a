package aws

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/configservice"
)

// AggregatorCatalog lists the configuration aggregators visible to the caller.
type AggregatorCatalog struct {
	client ConfigAPI
	tags   *TagResolver
	region string
}

// NewAggregatorCatalog creates a catalog for aggregators homed in region.
func NewAggregatorCatalog(client ConfigAPI, tags *TagResolver, region string) *AggregatorCatalog {
	return &AggregatorCatalog{client: client, tags: tags, region: region}
}

// Aggregators lazily pages through all aggregators and resolves their tags.
//
// A tag lookup failure yields the aggregator's name and ARN together with the
// error, and iteration continues with the next aggregator. A failure to fetch a
// page yields a zero Aggregator with the error and ends the sequence.
func (c *AggregatorCatalog) Aggregators(ctx context.Context) iter.Seq2[Aggregator, error] {
	return func(yield func(Aggregator, error) bool) {
		paginator := configservice.NewDescribeConfigurationAggregatorsPaginator(c.client, &configservice.DescribeConfigurationAggregatorsInput{})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(Aggregator{}, fmt.Errorf("describe configuration aggregators: %w", err))
				return
			}

			for _, ca := range page.ConfigurationAggregators {
				agg := Aggregator{
					Name:   deref(ca.ConfigurationAggregatorName),
					ARN:    deref(ca.ConfigurationAggregatorArn),
					Region: c.region,
				}

				tags, err := c.tags.Resolve(ctx, agg.ARN)
				if err != nil {
					if !yield(agg, fmt.Errorf("aggregator %s: %w", agg.Name, err)) {
						return
					}
					continue
				}
				agg.Tags = tags

				if !yield(agg, nil) {
					return
				}
			}
		}
	}
}

// List collects every aggregator, failing on the first error.
func (c *AggregatorCatalog) List(ctx context.Context) ([]Aggregator, error) {
	var out []Aggregator
	for agg, err := range c.Aggregators(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	slog.Debug("Listed aggregators", "region", c.region, "count", len(out))
	return out, nil
}

// MatchesLevel reports whether the aggregator's tag equals value.
// Aggregators without the tag never match.
func MatchesLevel(agg Aggregator, tag, value string) bool {
	v, ok := agg.Tags[tag]
	return ok && v == value
}

// FilterByLevel keeps the aggregators whose tag equals value, preserving order.
func FilterByLevel(aggs []Aggregator, tag, value string) []Aggregator {
	var out []Aggregator
	for _, agg := range aggs {
		if MatchesLevel(agg, tag, value) {
			out = append(out, agg)
		}
	}
	return out
}

package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/configservice"
	cfgtypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"
)

// TagResolver looks up the tags attached to AWS Config resources.
type TagResolver struct {
	client ConfigAPI
}

// NewTagResolver creates a resolver backed by the given client.
func NewTagResolver(client ConfigAPI) *TagResolver {
	return &TagResolver{client: client}
}

// Resolve returns the tags of the resource as a key/value map.
func (r *TagResolver) Resolve(ctx context.Context, arn string) (map[string]string, error) {
	input := &configservice.ListTagsForResourceInput{ResourceArn: &arn}
	tags := make(map[string]string)

	for {
		out, err := r.client.ListTagsForResource(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list tags for %s: %w", arn, err)
		}
		mergeTags(tags, out.Tags)

		tok, more := nextToken(out.NextToken)
		if !more {
			break
		}
		input.NextToken = tok
	}
	return tags, nil
}

func mergeTags(dst map[string]string, tags []cfgtypes.Tag) {
	for _, t := range tags {
		if t.Key == nil {
			continue
		}
		dst[*t.Key] = deref(t.Value)
	}
}

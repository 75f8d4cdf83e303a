package notify

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/configspectre/internal/analyzer"
	"github.com/ppiankov/configspectre/internal/report"
)

// Dispatcher delivers one aggregator report.
type Dispatcher interface {
	Dispatch(ctx context.Context, r *analyzer.Report) (string, error)
}

// DeliveryError describes a report that could not be sent.
type DeliveryError struct {
	Code         string
	Message      string
	BusinessUnit string
	Err          error
}

func (e *DeliveryError) Error() string {
	if e.BusinessUnit != "" {
		return fmt.Sprintf("deliver report for %s: %s: %s", e.BusinessUnit, e.Code, e.Message)
	}
	return fmt.Sprintf("deliver report: %s: %s", e.Code, e.Message)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// CodeNoRecipients is reported when no address is configured for a report.
const CodeNoRecipients = "NoRecipients"

// DefaultContactTag is the aggregator tag holding its owners' address.
const DefaultContactTag = "DevOpsContact"

// Recipients selects the destination addresses of a report.
type Recipients struct {
	// UseContactTag sends to the address in ContactTag when the aggregator has it.
	UseContactTag bool
	ContactTag    string
	BusinessUnits map[string][]string
	Default       []string
}

// Resolve returns the addresses for r: contact tag, then business unit list,
// then the default list.
func (rc Recipients) Resolve(r *analyzer.Report) ([]string, error) {
	if rc.UseContactTag {
		tag := rc.ContactTag
		if tag == "" {
			tag = DefaultContactTag
		}
		if addrs := splitAddresses(r.Tags[tag]); len(addrs) > 0 {
			return addrs, nil
		}
	}
	if addrs := rc.BusinessUnits[r.BusinessUnit]; len(addrs) > 0 {
		return addrs, nil
	}
	if len(rc.Default) > 0 {
		return rc.Default, nil
	}
	return nil, &DeliveryError{
		Code:         CodeNoRecipients,
		Message:      fmt.Sprintf("no recipients configured for aggregator %s", r.AggregatorName),
		BusinessUnit: r.BusinessUnit,
	}
}

func splitAddresses(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == ' ' })
}

// WriterDispatcher prints payloads instead of sending them.
type WriterDispatcher struct {
	Writer io.Writer
}

// Dispatch writes the template data of r followed by a newline.
func (d *WriterDispatcher) Dispatch(_ context.Context, r *analyzer.Report) (string, error) {
	data, err := report.TemplateData(r)
	if err != nil {
		return "", err
	}
	if _, err := fmt.Fprintf(d.Writer, "%s\n", data); err != nil {
		return "", fmt.Errorf("write payload: %w", err)
	}
	return "dry-run", nil
}

package observability

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// WriteText gathers every metric family from gatherer and writes it to w in
// the prometheus text exposition format.
func WriteText(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	encoder := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))

	for _, family := range families {
		encodeErr := encoder.Encode(family)
		if encodeErr != nil {
			return fmt.Errorf("encode %s: %w", family.GetName(), encodeErr)
		}
	}

	return nil
}

package ensembl

import (
	"fmt"

	"github.com/shpitdev/orthomap/internal/ortholog"
)

// HomologyResponse is the subset of the homology/symbol payload this module reads.
// Slices and objects are pointers so absent keys can be told apart from empty ones.
type HomologyResponse struct {
	Data *[]HomologyData `json:"data"`
}

type HomologyData struct {
	ID         string      `json:"id"`
	Homologies *[]Homology `json:"homologies"`
}

type Homology struct {
	Type   string          `json:"type"`
	Target *HomologyTarget `json:"target"`
}

type HomologyTarget struct {
	ID      string   `json:"id"`
	Species string   `json:"species"`
	PercID  *float64 `json:"perc_id"`
	PercPos *float64 `json:"perc_pos"`
}

// MalformedResponseError reports a decodable body missing a field the lookup depends on.
type MalformedResponseError struct {
	Gene   string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed homology response for %s: %s", e.Gene, e.Reason)
}

// HumanOrthologs extracts the homo_sapiens homologies of gene from resp, in response order.
// A well-formed response with no human target yields an empty slice and no error.
func HumanOrthologs(gene string, resp *HomologyResponse) ([]ortholog.Record, error) {
	if resp == nil || resp.Data == nil {
		return nil, &MalformedResponseError{Gene: gene, Reason: "missing data"}
	}
	if len(*resp.Data) == 0 {
		return nil, &MalformedResponseError{Gene: gene, Reason: "empty data"}
	}
	first := (*resp.Data)[0]
	if first.Homologies == nil {
		return nil, &MalformedResponseError{Gene: gene, Reason: "missing data[0].homologies"}
	}

	var out []ortholog.Record
	for i, h := range *first.Homologies {
		if h.Target == nil {
			return nil, &MalformedResponseError{Gene: gene, Reason: fmt.Sprintf("homologies[%d] missing target", i)}
		}
		if h.Target.Species != TargetSpecies {
			continue
		}
		out = append(out, ortholog.Record{
			SourceGene:   gene,
			TargetSymbol: h.Target.ID,
			HomologyType: h.Type,
			Identity:     percent(h.Target.PercID),
			Positivity:   percent(h.Target.PercPos),
		})
	}
	return out, nil
}

func percent(v *float64) ortholog.Percent {
	if v == nil {
		return ortholog.Percent{}
	}
	return ortholog.Pct(*v)
}

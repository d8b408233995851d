package inspect

import (
	"encoding/json"
	"time"

	"github.com/mel2oo/go-alpn/alpn"
	"github.com/mel2oo/go-alpn/clienthello"
	"github.com/mel2oo/go-alpn/gid"
	"github.com/mel2oo/go-alpn/optionals"
	"github.com/mel2oo/go-alpn/sets"
)

// Report describes the Client Hello found at the start of one TCP flow.
type Report struct {
	ID gid.FlowID `json:"id"`

	// "client -> server", as host:port pairs.
	Flow string `json:"flow"`

	// Capture time of the first packet of the flow.
	ObservationTime time.Time `json:"observation_time"`

	// Set when the Client Hello was parsed.
	Hello optionals.Optional[clienthello.ParsedClientHello] `json:"hello"`

	// Filled by the dry run, when cipher suites are enabled.
	Pairs       []alpn.CandidatePair `json:"pairs,omitempty"`
	Provisional string               `json:"provisional,omitempty"`

	// Distinct protocols across Pairs.
	CandidateProtocols sets.OrderedSet[string] `json:"candidate_protocols,omitempty"`

	// Why parsing or the dry run failed.
	Err error `json:"-"`
}

func (r Report) MarshalJSON() ([]byte, error) {
	type report Report
	var errText string
	if r.Err != nil {
		errText = r.Err.Error()
	}
	return json.Marshal(struct {
		report
		Error string `json:"error,omitempty"`
	}{
		report: report(r),
		Error:  errText,
	})
}

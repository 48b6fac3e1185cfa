package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
)

// Plan is the discovered dependency closure for one top-level requirement
// set: build waves in leaves-first order, plus each id's direct
// dependencies. Discovery re-runs produce the same plan for the same
// requirement set, so plans are cacheable keyed by Requirements.Hash.
type Plan struct {
	waves [][]ID
	deps  map[ID]nodeDeps
}

type nodeDeps struct {
	values     []ID
	timeSeries []TimeSeriesID
}

// Waves returns the build order: every id in wave n depends only on supplied
// data and ids in waves < n.
func (p *Plan) Waves() [][]ID { return p.waves }

// DepsOf returns the direct value and time-series dependencies of id.
func (p *Plan) DepsOf(id ID) ([]ID, []TimeSeriesID) {
	d, ok := p.deps[id]
	if !ok {
		return nil, nil
	}
	return d.values, d.timeSeries
}

// Size reports the number of ids the plan builds.
func (p *Plan) Size() int {
	n := 0
	for _, w := range p.waves {
		n += len(w)
	}
	return n
}

// PlanCache stores discovered plans keyed by requirement-set hash. A cache
// is a performance layer only: a miss or error simply means rediscovery.
type PlanCache interface {
	Get(ctx context.Context, key string) (*Plan, bool)
	Put(ctx context.Context, key string, plan *Plan) error
}

// encodedID is the wire form of an ID: the type tag selects the concrete
// struct on decode. The ID type set is closed, so the switch is exhaustive.
type encodedID struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeID serializes an ID for caching.
func EncodeID(id ID) (json.RawMessage, error) {
	data, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	return json.Marshal(encodedID{Type: id.IDType(), Data: data})
}

// DecodeID reconstructs an ID from its wire form.
func DecodeID(raw json.RawMessage) (ID, error) {
	var e encodedID
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	switch e.Type {
	case TypeQuote:
		var id QuoteID
		return id, json.Unmarshal(e.Data, &id)
	case TypeCurve:
		var id CurveID
		return id, json.Unmarshal(e.Data, &id)
	case TypeCurveGroup:
		var id CurveGroupID
		return id, json.Unmarshal(e.Data, &id)
	case TypeIndexRates:
		var id IndexRatesID
		return id, json.Unmarshal(e.Data, &id)
	case TypeFxRate:
		var id FxRateID
		return id, json.Unmarshal(e.Data, &id)
	case TypeTimeSeries:
		var id TimeSeriesID
		return id, json.Unmarshal(e.Data, &id)
	default:
		return nil, fmt.Errorf("unknown id type %q", e.Type)
	}
}

type encodedNode struct {
	ID         json.RawMessage   `json:"id"`
	Values     []json.RawMessage `json:"values,omitempty"`
	TimeSeries []TimeSeriesID    `json:"time_series,omitempty"`
}

type encodedPlan struct {
	Waves [][]json.RawMessage `json:"waves"`
	Nodes []encodedNode       `json:"nodes"`
}

// MarshalJSON serializes the plan for the cache.
func (p *Plan) MarshalJSON() ([]byte, error) {
	enc := encodedPlan{Waves: make([][]json.RawMessage, len(p.waves))}
	for i, wave := range p.waves {
		enc.Waves[i] = make([]json.RawMessage, len(wave))
		for j, id := range wave {
			raw, err := EncodeID(id)
			if err != nil {
				return nil, err
			}
			enc.Waves[i][j] = raw
		}
	}
	for id, d := range p.deps {
		raw, err := EncodeID(id)
		if err != nil {
			return nil, err
		}
		node := encodedNode{ID: raw, TimeSeries: d.timeSeries}
		for _, dep := range d.values {
			depRaw, err := EncodeID(dep)
			if err != nil {
				return nil, err
			}
			node.Values = append(node.Values, depRaw)
		}
		enc.Nodes = append(enc.Nodes, node)
	}
	return json.Marshal(enc)
}

// UnmarshalJSON reconstructs a cached plan.
func (p *Plan) UnmarshalJSON(data []byte) error {
	var enc encodedPlan
	if err := json.Unmarshal(data, &enc); err != nil {
		return err
	}
	p.waves = make([][]ID, len(enc.Waves))
	for i, wave := range enc.Waves {
		p.waves[i] = make([]ID, len(wave))
		for j, raw := range wave {
			id, err := DecodeID(raw)
			if err != nil {
				return err
			}
			p.waves[i][j] = id
		}
	}
	p.deps = make(map[ID]nodeDeps, len(enc.Nodes))
	for _, node := range enc.Nodes {
		id, err := DecodeID(node.ID)
		if err != nil {
			return err
		}
		d := nodeDeps{timeSeries: node.TimeSeries}
		for _, depRaw := range node.Values {
			dep, err := DecodeID(depRaw)
			if err != nil {
				return err
			}
			d.values = append(d.values, dep)
		}
		p.deps[id] = d
	}
	return nil
}

package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pastelnetwork/go-inference-client/internal/consensus"
	"github.com/pastelnetwork/go-inference-client/internal/types"
)

// Candidate is a supernode that can serve the requested model and
// parameters, annotated with its menu entry and probe latency.
type Candidate struct {
	Node    types.Supernode
	Model   types.ModelInfo
	Latency time.Duration
}

// discoverCapable probes live nodes concurrently for their capability
// menus, keeps those that serve the requested model, inference type and
// every requested parameter, and returns them ordered by probe latency
// ascending, capped at the configured candidate maximum. Individual probe
// failures remove a node, never abort the pass.
func (p *Protocol) discoverCapable(ctx context.Context, live []types.Supernode, params RequestParams) []Candidate {
	results := make([]*Candidate, len(live))
	var wg sync.WaitGroup
	for i, node := range live {
		wg.Add(1)
		go func(i int, node types.Supernode) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
			defer cancel()

			started := time.Now()
			menu, err := p.factory(node).GetModelMenu(probeCtx)
			latency := time.Since(started)
			if err != nil {
				log.Debug().Str("supernode", node.PastelID).Err(err).Msg("capability probe failed")
				return
			}
			model, ok := menu.FindModel(params.ModelName)
			if !ok || !model.SupportsInferenceType(params.InferenceType) {
				return
			}
			if !parametersAccepted(model, params.ModelParameters) {
				return
			}
			results[i] = &Candidate{Node: node, Model: model, Latency: latency}
		}(i, node)
	}
	wg.Wait()

	capable := make([]Candidate, 0, len(results))
	for _, c := range results {
		if c != nil {
			capable = append(capable, *c)
		}
	}
	sort.SliceStable(capable, func(i, j int) bool {
		return capable[i].Latency < capable[j].Latency
	})
	if len(capable) > p.cfg.MaxCandidates {
		capable = capable[:p.cfg.MaxCandidates]
	}
	return capable
}

// parametersAccepted checks every requested parameter against the model's
// declared menu: the parameter must be declared, its value must be of the
// declared type, and when the menu enumerates allowed values the value
// must be among them. A parameter missing from the menu excludes the node
// from the candidate set entirely.
func parametersAccepted(model types.ModelInfo, requested map[string]any) bool {
	declared := make(map[string]types.ModelParameter, len(model.Parameters))
	for _, param := range model.Parameters {
		declared[param.Name] = param
	}
	for name, value := range requested {
		spec, ok := declared[name]
		if !ok {
			return false
		}
		if !valueMatchesType(value, spec.Type) {
			return false
		}
		if len(spec.AllowedValues) > 0 {
			canonical := consensus.CanonicalValue(normalizeValue(value))
			allowed := false
			for _, v := range spec.AllowedValues {
				if v == canonical {
					allowed = true
					break
				}
			}
			if !allowed {
				return false
			}
		}
	}
	return true
}

func valueMatchesType(value any, declaredType string) bool {
	switch declaredType {
	case "int":
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return v == float64(int64(v))
		case json.Number:
			_, err := v.Int64()
			return err == nil
		default:
			return false
		}
	case "float":
		switch value.(type) {
		case int, int32, int64, float32, float64, json.Number:
			return true
		default:
			return false
		}
	case "bool":
		_, ok := value.(bool)
		return ok
	case "string", "":
		_, ok := value.(string)
		return ok || declaredType == ""
	default:
		return true
	}
}

// normalizeValue round-trips a value through json so ints and floats
// canonicalize the same way regardless of the caller's Go type.
func normalizeValue(value any) any {
	data, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var out any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return value
	}
	return out
}

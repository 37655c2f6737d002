package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
)

// Terminator delimits frames on the transport. Std-compatible JSON escapes
// control characters inside strings, so an encoded event can never contain
// this byte unescaped.
const Terminator byte = '\n'

// ErrDecode wraps all frame decode failures. A decode failure discards the
// frame only; the connection it arrived on stays usable.
var ErrDecode = errors.New("metricflow: cannot decode metric event")

var codec = sonic.ConfigStd

type metadataEnvelope struct {
	Type        string     `json:"type"`
	Name        string     `json:"name"`
	Kind        MetricKind `json:"kind"`
	Description string     `json:"description"`
	Unit        *string    `json:"unit,omitempty"`
}

type metricEnvelope struct {
	Type      string          `json:"type"`
	Name      string          `json:"name"`
	Labels    LabelSet        `json:"labels"`
	Operation string          `json:"operation"`
	Value     json.RawMessage `json:"value"`
}

const (
	typeMetadata = "metadata"
	typeMetric   = "metric"
)

var opsByName = func() map[string]Op {
	byName := make(map[string]Op, len(opNames))
	for op, name := range opNames {
		byName[name] = op
	}
	return byName
}()

// Encode serializes one event without the frame terminator.
func Encode(event MetricEvent) ([]byte, error) {
	switch {
	case event.Metadata != nil:
		env := metadataEnvelope{
			Type:        typeMetadata,
			Name:        event.Metadata.Name,
			Kind:        event.Metadata.Kind,
			Description: event.Metadata.Description,
		}
		if event.Metadata.Unit != "" {
			unit := event.Metadata.Unit
			env.Unit = &unit
		}
		return codec.Marshal(env)
	case event.Metric != nil:
		value, err := encodeValue(event.Metric.Operation)
		if err != nil {
			return nil, err
		}
		labels := event.Metric.Labels
		if labels == nil {
			labels = LabelSet{}
		}
		env := metricEnvelope{
			Type:      typeMetric,
			Name:      event.Metric.Name,
			Labels:    labels,
			Operation: event.Metric.Operation.Op.String(),
			Value:     value,
		}
		return codec.Marshal(env)
	default:
		return nil, fmt.Errorf("metricflow: cannot encode empty metric event")
	}
}

// EncodeFrame serializes one event and appends the frame terminator,
// yielding bytes that can be written to a transport as one whole frame.
func EncodeFrame(event MetricEvent) ([]byte, error) {
	encoded, err := Encode(event)
	if err != nil {
		return nil, err
	}
	return append(encoded, Terminator), nil
}

// Decode parses one frame back into an event. The trailing terminator, if
// still attached, is ignored. Decoded metric events always carry a non-nil
// label set.
func Decode(frame []byte) (MetricEvent, error) {
	frame = bytes.TrimRight(frame, "\r\n")
	if len(frame) == 0 {
		return MetricEvent{}, fmt.Errorf("%w: empty frame", ErrDecode)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := codec.Unmarshal(frame, &probe); err != nil {
		return MetricEvent{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch probe.Type {
	case typeMetadata:
		return decodeMetadata(frame)
	case typeMetric:
		return decodeMetric(frame)
	default:
		return MetricEvent{}, fmt.Errorf("%w: unknown event type %q", ErrDecode, probe.Type)
	}
}

func decodeMetadata(frame []byte) (MetricEvent, error) {
	var env metadataEnvelope
	if err := codec.Unmarshal(frame, &env); err != nil {
		return MetricEvent{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !env.Kind.Valid() {
		return MetricEvent{}, fmt.Errorf("%w: unknown metric kind %q", ErrDecode, env.Kind)
	}

	metadata := MetricMetadata{
		Name:        env.Name,
		Kind:        env.Kind,
		Description: env.Description,
	}
	if env.Unit != nil {
		metadata.Unit = *env.Unit
	}
	return MetadataEvent(metadata), nil
}

func decodeMetric(frame []byte) (MetricEvent, error) {
	var env metricEnvelope
	if err := codec.Unmarshal(frame, &env); err != nil {
		return MetricEvent{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	op, ok := opsByName[env.Operation]
	if !ok {
		return MetricEvent{}, fmt.Errorf("%w: unknown operation %q", ErrDecode, env.Operation)
	}

	operation, err := decodeValue(op, env.Value)
	if err != nil {
		return MetricEvent{}, err
	}

	labels := env.Labels
	if labels == nil {
		labels = LabelSet{}
	}
	return MetricDataEvent(MetricData{
		Name:      env.Name,
		Labels:    labels,
		Operation: operation,
	}), nil
}

// encodeValue renders the numeric payload. Counter values are emitted as
// bare integers so the full uint64 range survives the round trip.
func encodeValue(operation MetricOperation) (json.RawMessage, error) {
	if operation.Op.IsCounter() {
		return strconv.AppendUint(nil, operation.CounterValue, 10), nil
	}
	return codec.Marshal(operation.SampleValue)
}

func decodeValue(op Op, raw json.RawMessage) (MetricOperation, error) {
	if len(raw) == 0 {
		return MetricOperation{}, fmt.Errorf("%w: missing value", ErrDecode)
	}
	if op.IsCounter() {
		var value uint64
		if err := codec.Unmarshal(raw, &value); err != nil {
			return MetricOperation{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return MetricOperation{Op: op, CounterValue: value}, nil
	}
	var value float64
	if err := codec.Unmarshal(raw, &value); err != nil {
		return MetricOperation{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return MetricOperation{Op: op, SampleValue: value}, nil
}

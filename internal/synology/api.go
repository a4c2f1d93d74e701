package synology

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"

	"github.com/cockroachdb/errors"
)

// Record is one decoded JSON object returned by the router.
type Record = map[string]any

// caller is the part of Transport the namespaces depend on.
type caller interface {
	Call(ctx context.Context, call Call) (json.RawMessage, error)
}

type api struct {
	transport caller
}

func (a api) call(ctx context.Context, call Call) (any, error) {
	raw, err := a.transport.Call(ctx, call)
	if err != nil {
		return nil, err
	}
	return decodeValue(raw)
}

// object performs the call and expects a JSON object payload.
func (a api) object(ctx context.Context, call Call) (Record, error) {
	value, err := a.call(ctx, call)
	if err != nil {
		return nil, err
	}
	record, ok := value.(Record)
	if !ok {
		return nil, errors.Wrapf(ErrMalformedResponse, "%s %s: expected an object, got %T", call.API, call.Method, value)
	}
	return record, nil
}

// list performs the call and extracts the named list member of the payload.
func (a api) list(ctx context.Context, call Call, key string) ([]Record, error) {
	record, err := a.object(ctx, call)
	if err != nil {
		return nil, err
	}
	return records(record[key]), nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, errors.Wrap(ErrMalformedResponse, err.Error())
	}
	return value, nil
}

// records keeps the object entries of a decoded JSON list.
func records(value any) []Record {
	items, ok := value.([]any)
	if !ok {
		return []Record{}
	}
	out := make([]Record, 0, len(items))
	for _, item := range items {
		if record, ok := item.(Record); ok {
			out = append(out, record)
		}
	}
	return out
}

// filter keeps the records whose fields equal every filter value.
// A record lacking a filtered key does not match. No filters keeps everything.
func filter(elements []Record, filters map[string]any) []Record {
	if len(filters) == 0 {
		return elements
	}

	matched := make([]Record, 0, len(elements))
	for _, element := range elements {
		if matches(element, filters) {
			matched = append(matched, element)
		}
	}
	return matched
}

func matches(element Record, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := element[key]
		if !ok || !equalValue(got, want) {
			return false
		}
	}
	return true
}

// equalValue compares a decoded JSON value with a caller supplied one,
// so that json.Number("1") matches the int 1.
func equalValue(got, want any) bool {
	if number, ok := got.(json.Number); ok {
		switch w := want.(type) {
		case json.Number:
			return number == w
		case string:
			return string(number) == w
		case int:
			n, err := number.Int64()
			return err == nil && n == int64(w)
		case int64:
			n, err := number.Int64()
			return err == nil && n == w
		case float64:
			f, err := number.Float64()
			return err == nil && f == w
		}
	}
	return reflect.DeepEqual(got, want)
}

// successFlag extracts the "success" member of a response. A bare boolean
// payload is the flag itself. Failed calls never get here, so a payload
// without any flag counts as success.
func successFlag(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case Record:
		flag, ok := v["success"]
		if !ok {
			return true
		}
		b, _ := flag.(bool)
		return b
	default:
		return true
	}
}

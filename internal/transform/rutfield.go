package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"

	"rutkit/internal/logging"
	"rutkit/internal/telemetry"
	"rutkit/pkg/rut"
)

// Version is reported in plugin metadata.
const Version = "1.0.0"

// Output selects which representation is written back into the record.
type Output string

const (
	OutputCleaned   Output = "cleaned"
	OutputFormatted Output = "formatted"
)

// InvalidPolicy selects what happens to records holding an invalid RUT.
type InvalidPolicy string

const (
	InvalidPass InvalidPolicy = "pass"
	InvalidDrop InvalidPolicy = "drop"
)

// Attribute keys set on every event.
const (
	AttrCleaned   = "rut_cleaned"
	AttrFormatted = "rut_formatted"
	AttrValid     = "rut_valid"
)

// RUTOptions configures a RUTField.
type RUTOptions struct {
	// Field is the JSON field holding the raw RUT. Empty means the whole
	// payload is the RUT text.
	Field     string        `yaml:"field" koanf:"field"`
	Output    Output        `yaml:"output" koanf:"output"`
	OnInvalid InvalidPolicy `yaml:"on_invalid" koanf:"on_invalid"`
	// Dedupe drops records whose outputs equal the last ones seen for the
	// same record key.
	Dedupe bool `yaml:"dedupe" koanf:"dedupe"`
}

func (o *RUTOptions) normalize() error {
	switch o.Output {
	case "":
		o.Output = OutputFormatted
	case OutputCleaned, OutputFormatted:
	default:
		return fmt.Errorf("transform: unknown output %q", o.Output)
	}
	switch o.OnInvalid {
	case "":
		o.OnInvalid = InvalidPass
	case InvalidPass, InvalidDrop:
	default:
		return fmt.Errorf("transform: unknown on_invalid policy %q", o.OnInvalid)
	}
	return nil
}

// RUTField cleans, formats and validates the RUT carried by each record.
type RUTField struct {
	opts RUTOptions
	memo Memo
}

// NewRUTField validates opts. memo is required when opts.Dedupe is set.
func NewRUTField(opts RUTOptions, memo Memo) (*RUTField, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	if opts.Dedupe && memo == nil {
		return nil, fmt.Errorf("transform: dedupe requires a memo")
	}
	return &RUTField{opts: opts, memo: memo}, nil
}

func (t *RUTField) Metadata(context.Context) (Info, error) {
	return Info{
		Name:     "rut",
		Version:  Version,
		Protocol: "1.0",
		Capabilities: map[string]string{
			"field":      t.opts.Field,
			"output":     string(t.opts.Output),
			"on_invalid": string(t.opts.OnInvalid),
			"dedupe":     strconv.FormatBool(t.opts.Dedupe),
		},
	}, nil
}

func (t *RUTField) Health(ctx context.Context) (Health, error) {
	if p, ok := t.memo.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return Health{OK: false, Details: "memo: " + err.Error()}, nil
		}
	}
	return Health{OK: true, Details: "OK"}, nil
}

func (t *RUTField) Transform(ctx context.Context, req Request) (Response, error) {
	raw, obj, err := t.extract(req.Payload)
	if err != nil {
		logging.L().Warn("rut: unreadable payload", "offset", req.Metadata.SourceOffset, "err", err)
		return Response{Status: StatusDrop, Detail: err.Error()}, nil
	}

	res := rut.Evaluate(raw)
	telemetry.ObserveEvaluation(res)

	if !res.Valid && t.opts.OnInvalid == InvalidDrop {
		detail := "invalid rut"
		if _, err := rut.Parse(raw); err != nil {
			detail = err.Error()
		}
		return Response{Status: StatusDrop, Detail: detail}, nil
	}

	if t.opts.Dedupe && len(req.Key) > 0 {
		changed, err := t.memo.Swap(ctx, string(req.Key), Snapshot{Cleaned: res.Cleaned, Valid: res.Valid})
		if err != nil {
			return Response{}, fmt.Errorf("transform: memo: %w", err)
		}
		if !changed {
			return Response{Status: StatusDrop, Detail: "unchanged"}, nil
		}
	}

	value, err := t.render(res, obj)
	if err != nil {
		return Response{}, err
	}

	md := Metadata{SourceOffset: req.Metadata.SourceOffset, Attributes: make(map[string]string, len(req.Metadata.Attributes)+3)}
	maps.Copy(md.Attributes, req.Metadata.Attributes)
	md.Attributes[AttrCleaned] = res.Cleaned
	md.Attributes[AttrFormatted] = res.Formatted
	md.Attributes[AttrValid] = strconv.FormatBool(res.Valid)

	return Response{
		Status: StatusOK,
		Events: []Event{{ID: req.Metadata.SourceOffset, Key: req.Key, Value: value, Metadata: md}},
	}, nil
}

// extract returns the raw RUT text and, in field mode, the decoded object.
func (t *RUTField) extract(payload []byte) (string, map[string]any, error) {
	if t.opts.Field == "" {
		return string(payload), nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return "", nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	if obj == nil {
		return "", nil, fmt.Errorf("payload is not a JSON object")
	}
	switch v := obj[t.opts.Field].(type) {
	case nil:
		return "", obj, nil
	case string:
		return v, obj, nil
	case json.Number:
		return v.String(), obj, nil
	default:
		return "", nil, fmt.Errorf("field %q holds %T, want string", t.opts.Field, v)
	}
}

func (t *RUTField) render(res rut.Result, obj map[string]any) ([]byte, error) {
	value := res.Formatted
	if t.opts.Output == OutputCleaned {
		value = res.Cleaned
	}
	if obj == nil {
		return []byte(value), nil
	}
	obj[t.opts.Field] = value
	obj[t.opts.Field+"_valid"] = res.Valid
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("transform: encode payload: %w", err)
	}
	return out, nil
}

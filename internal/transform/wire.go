package transform

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// The gRPC contract carries protobuf Structs. Byte fields travel as standard
// base64 strings because Struct strings must be valid UTF-8.

func encodeBytes(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func decodeBytes(fields map[string]*structpb.Value, name string) ([]byte, error) {
	s := fields[name].GetStringValue()
	if s == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", name, err)
	}
	return b, nil
}

func metadataToMap(m Metadata) map[string]any {
	attrs := make(map[string]any, len(m.Attributes))
	for k, v := range m.Attributes {
		attrs[k] = v
	}
	return map[string]any{"source_offset": m.SourceOffset, "attributes": attrs}
}

func metadataFromValue(v *structpb.Value) Metadata {
	fields := v.GetStructValue().GetFields()
	md := Metadata{SourceOffset: fields["source_offset"].GetStringValue()}
	if attrs := fields["attributes"].GetStructValue().GetFields(); len(attrs) > 0 {
		md.Attributes = make(map[string]string, len(attrs))
		for k, a := range attrs {
			md.Attributes[k] = a.GetStringValue()
		}
	}
	return md
}

func requestToStruct(r Request) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"key":      encodeBytes(r.Key),
		"payload":  encodeBytes(r.Payload),
		"metadata": metadataToMap(r.Metadata),
	})
}

func requestFromStruct(s *structpb.Struct) (Request, error) {
	f := s.GetFields()
	key, err := decodeBytes(f, "key")
	if err != nil {
		return Request{}, err
	}
	payload, err := decodeBytes(f, "payload")
	if err != nil {
		return Request{}, err
	}
	return Request{Key: key, Payload: payload, Metadata: metadataFromValue(f["metadata"])}, nil
}

func responseToStruct(r Response) (*structpb.Struct, error) {
	events := make([]any, 0, len(r.Events))
	for _, ev := range r.Events {
		events = append(events, map[string]any{
			"id":       ev.ID,
			"key":      encodeBytes(ev.Key),
			"value":    encodeBytes(ev.Value),
			"metadata": metadataToMap(ev.Metadata),
		})
	}
	return structpb.NewStruct(map[string]any{
		"status": r.Status.String(),
		"detail": r.Detail,
		"events": events,
	})
}

func responseFromStruct(s *structpb.Struct) (Response, error) {
	f := s.GetFields()
	st, err := ParseStatus(f["status"].GetStringValue())
	if err != nil {
		return Response{}, err
	}
	resp := Response{Status: st, Detail: f["detail"].GetStringValue()}
	for _, v := range f["events"].GetListValue().GetValues() {
		ef := v.GetStructValue().GetFields()
		key, err := decodeBytes(ef, "key")
		if err != nil {
			return Response{}, err
		}
		val, err := decodeBytes(ef, "value")
		if err != nil {
			return Response{}, err
		}
		resp.Events = append(resp.Events, Event{
			ID:       ef["id"].GetStringValue(),
			Key:      key,
			Value:    val,
			Metadata: metadataFromValue(ef["metadata"]),
		})
	}
	return resp, nil
}

func infoToStruct(i Info) (*structpb.Struct, error) {
	caps := make(map[string]any, len(i.Capabilities))
	for k, v := range i.Capabilities {
		caps[k] = v
	}
	return structpb.NewStruct(map[string]any{
		"name":         i.Name,
		"version":      i.Version,
		"protocol":     i.Protocol,
		"capabilities": caps,
	})
}

func infoFromStruct(s *structpb.Struct) Info {
	f := s.GetFields()
	info := Info{
		Name:     f["name"].GetStringValue(),
		Version:  f["version"].GetStringValue(),
		Protocol: f["protocol"].GetStringValue(),
	}
	if caps := f["capabilities"].GetStructValue().GetFields(); len(caps) > 0 {
		info.Capabilities = make(map[string]string, len(caps))
		for k, v := range caps {
			info.Capabilities[k] = v.GetStringValue()
		}
	}
	return info
}

func healthToStruct(h Health) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"ok": h.OK, "details": h.Details})
}

func healthFromStruct(s *structpb.Struct) Health {
	f := s.GetFields()
	return Health{OK: f["ok"].GetBoolValue(), Details: f["details"].GetStringValue()}
}

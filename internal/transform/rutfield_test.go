package transform

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rutkit/pkg/rut"
)

func newField(t *testing.T, opts RUTOptions, memo Memo) *RUTField {
	t.Helper()
	f, err := NewRUTField(opts, memo)
	require.NoError(t, err)
	return f
}

func TestNewRUTField_Options(t *testing.T) {
	_, err := NewRUTField(RUTOptions{Output: "upper"}, nil)
	assert.Error(t, err)
	_, err = NewRUTField(RUTOptions{OnInvalid: "explode"}, nil)
	assert.Error(t, err)
	_, err = NewRUTField(RUTOptions{Dedupe: true}, nil)
	assert.Error(t, err)

	f := newField(t, RUTOptions{}, nil)
	info, err := f.Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rut", info.Name)
	assert.Equal(t, "formatted", info.Capabilities["output"])
	assert.Equal(t, "pass", info.Capabilities["on_invalid"])
}

func TestTransform_WholePayload(t *testing.T) {
	f := newField(t, RUTOptions{}, nil)
	resp, err := f.Transform(context.Background(), Request{
		Payload:  []byte("123456785"),
		Metadata: Metadata{SourceOffset: "7", Attributes: map[string]string{"src": "form"}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusOK, resp.Status)
	require.Len(t, resp.Events, 1)

	ev := resp.Events[0]
	assert.Equal(t, "12.345.678-5", string(ev.Value))
	assert.Equal(t, "7", ev.ID)
	assert.Equal(t, "form", ev.Metadata.Attributes["src"])
	assert.Equal(t, "123456785", ev.Metadata.Attributes[AttrCleaned])
	assert.Equal(t, "true", ev.Metadata.Attributes[AttrValid])
}

func TestTransform_JSONField(t *testing.T) {
	f := newField(t, RUTOptions{Field: "rut", Output: OutputCleaned}, nil)
	resp, err := f.Transform(context.Background(), Request{
		Payload: []byte(`{"rut":"12.345.670-k","name":"Ana","age":31}`),
	})
	require.NoError(t, err)
	require.Equal(t, StatusOK, resp.Status)

	var got map[string]any
	require.NoError(t, json.Unmarshal(resp.Events[0].Value, &got))
	assert.Equal(t, "12345670K", got["rut"])
	assert.Equal(t, true, got["rut_valid"])
	assert.Equal(t, "Ana", got["name"])
	assert.Equal(t, float64(31), got["age"])
}

func TestTransform_NumericAndMissingField(t *testing.T) {
	f := newField(t, RUTOptions{Field: "rut"}, nil)

	resp, err := f.Transform(context.Background(), Request{Payload: []byte(`{"rut":111111111}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"rut":"11.111.111-1","rut_valid":true}`, string(resp.Events[0].Value))

	resp, err = f.Transform(context.Background(), Request{Payload: []byte(`{"other":1}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"other":1,"rut":"","rut_valid":true}`, string(resp.Events[0].Value))
}

func TestTransform_UnreadablePayloadIsDropped(t *testing.T) {
	f := newField(t, RUTOptions{Field: "rut"}, nil)
	for _, p := range []string{"not json", "null", `{"rut":["a"]}`} {
		resp, err := f.Transform(context.Background(), Request{Payload: []byte(p)})
		require.NoError(t, err)
		assert.Equal(t, StatusDrop, resp.Status, "payload %s", p)
		assert.NotEmpty(t, resp.Detail)
	}
}

func TestTransform_InvalidPolicy(t *testing.T) {
	pass := newField(t, RUTOptions{}, nil)
	resp, err := pass.Transform(context.Background(), Request{Payload: []byte("12.345.678-0")})
	require.NoError(t, err)
	require.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, "false", resp.Events[0].Metadata.Attributes[AttrValid])

	drop := newField(t, RUTOptions{OnInvalid: InvalidDrop}, nil)
	resp, err = drop.Transform(context.Background(), Request{Payload: []byte("12.345.678-0")})
	require.NoError(t, err)
	assert.Equal(t, StatusDrop, resp.Status)
	assert.Contains(t, resp.Detail, rut.ErrCheckDigit.Error())

	resp, err = drop.Transform(context.Background(), Request{Payload: []byte("1K2-3")})
	require.NoError(t, err)
	assert.Equal(t, StatusDrop, resp.Status)
	assert.Contains(t, resp.Detail, rut.ErrMalformed.Error())

	// Empty input is valid under the composed policy and is never dropped.
	resp, err = drop.Transform(context.Background(), Request{Payload: []byte("  ")})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
}

func TestTransform_DedupeByKey(t *testing.T) {
	memo := NewMemoryMemo()
	f := newField(t, RUTOptions{Dedupe: true}, memo)
	ctx := context.Background()

	send := func(key, payload string) Status {
		resp, err := f.Transform(ctx, Request{Key: []byte(key), Payload: []byte(payload)})
		require.NoError(t, err)
		return resp.Status
	}

	assert.Equal(t, StatusOK, send("user-1", "12345678-5"))
	assert.Equal(t, StatusDrop, send("user-1", "12.345.678-5"), "same outputs, different spelling")
	assert.Equal(t, StatusOK, send("user-2", "12345678-5"))
	assert.Equal(t, StatusOK, send("user-1", "11111111-1"))
	// Records without a key are never deduplicated.
	assert.Equal(t, StatusOK, send("", "11111111-1"))
	assert.Equal(t, StatusOK, send("", "11111111-1"))
	assert.Equal(t, 2, memo.Len())
}

type failingMemo struct{}

func (failingMemo) Swap(context.Context, string, Snapshot) (bool, error) {
	return false, errors.New("down")
}
func (failingMemo) Ping(context.Context) error { return errors.New("down") }

func TestTransform_MemoFailure(t *testing.T) {
	f := newField(t, RUTOptions{Dedupe: true}, failingMemo{})
	_, err := f.Transform(context.Background(), Request{Key: []byte("k"), Payload: []byte("6K")})
	assert.Error(t, err)

	h, err := f.Health(context.Background())
	require.NoError(t, err)
	assert.False(t, h.OK)
}

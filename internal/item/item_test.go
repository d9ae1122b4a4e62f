package item_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushpub/internal/item"
	"pushpub/pkg/tnetstring"
)

func TestBuildPlainContent(t *testing.T) {
	it, err := item.Build(item.Params{Channel: "test", Content: "hello"})
	require.NoError(t, err)

	require.NotNil(t, it.Response)
	assert.Equal(t, "hello\n", it.Response.Body)
	assert.Nil(t, it.Response.Code)

	require.NotNil(t, it.Stream)
	assert.False(t, it.Stream.Close)
	assert.Equal(t, "hello\n", it.Stream.Content)

	require.NotNil(t, it.WS)
	assert.Equal(t, "hello", it.WS.Content)
}

func TestBuildCodeAndHeaders(t *testing.T) {
	code := 404
	it, err := item.Build(item.Params{
		Channel: "test",
		Content: "gone",
		Code:    &code,
		Headers: []string{"X-Foo: bar", "X-Foo:baz", "X-Time: 10: 30"},
	})
	require.NoError(t, err)

	require.NotNil(t, it.Response)
	require.NotNil(t, it.Response.Code)
	assert.Equal(t, 404, *it.Response.Code)
	assert.Equal(t, []item.Header{
		{Name: "X-Foo", Value: "bar"},
		{Name: "X-Foo", Value: "baz"},
		{Name: "X-Time", Value: "10: 30"},
	}, it.Response.Headers)
}

func TestBuildMalformedHeader(t *testing.T) {
	_, err := item.Build(item.Params{
		Channel: "test",
		Content: "hello",
		Headers: []string{"not a header"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, item.ErrBadHeader)
}

func TestBuildClose(t *testing.T) {
	t.Run("without content", func(t *testing.T) {
		it, err := item.Build(item.Params{Channel: "test", Close: true})
		require.NoError(t, err)

		assert.Nil(t, it.Response)
		assert.Nil(t, it.WS)
		require.NotNil(t, it.Stream)
		assert.True(t, it.Stream.Close)
		assert.Empty(t, it.Stream.Content)
	})

	t.Run("with content", func(t *testing.T) {
		it, err := item.Build(item.Params{Channel: "test", Content: "bye", Close: true})
		require.NoError(t, err)

		require.NotNil(t, it.Response)
		assert.Equal(t, "bye\n", it.Response.Body)
		require.NotNil(t, it.Stream)
		assert.True(t, it.Stream.Close)
		assert.Empty(t, it.Stream.Content)
		assert.Nil(t, it.WS)
	})
}

func TestBuildPatch(t *testing.T) {
	it, err := item.Build(item.Params{Channel: "test", Content: `{"op":"x"}`, Patch: true})
	require.NoError(t, err)

	require.NotNil(t, it.Response)
	assert.Empty(t, it.Response.Body)
	assert.True(t, it.Response.Patch.Equal(
		tnetstring.Dict(tnetstring.P("op", tnetstring.String("x"))),
	))
	assert.Nil(t, it.Stream)
	assert.Nil(t, it.WS)

	formats, ok := it.Value().Get("formats")
	require.True(t, ok)
	require.Len(t, formats.Pairs(), 1)
	assert.Equal(t, "http-response", string(formats.Pairs()[0].Key))
}

func TestBuildPatchValueMapping(t *testing.T) {
	it, err := item.Build(item.Params{
		Channel: "test",
		Content: `{"b":[1,2.5,"s",true,null],"a":{}}`,
		Patch:   true,
	})
	require.NoError(t, err)

	// Object keys come out sorted so repeat encodes are byte-identical.
	want := tnetstring.Dict(
		tnetstring.P("a", tnetstring.Dict()),
		tnetstring.P("b", tnetstring.List(
			tnetstring.Int(1),
			tnetstring.Float(2.5),
			tnetstring.String("s"),
			tnetstring.Bool(true),
			tnetstring.Null(),
		)),
	)
	assert.True(t, it.Response.Patch.Equal(want))
}

func TestBuildPatchInvalidJSON(t *testing.T) {
	tests := []struct {
		desc    string
		content string
	}{
		{"not json", "hello"},
		{"truncated", `{"op":`},
		{"trailing garbage", `{"op":"x"} extra`},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := item.Build(item.Params{Channel: "test", Content: tc.content, Patch: true})
			require.Error(t, err)
			assert.ErrorIs(t, err, item.ErrBadPatch)
		})
	}
}

func TestBuildNothingToSend(t *testing.T) {
	tests := []struct {
		desc   string
		params item.Params
	}{
		{"no content", item.Params{Channel: "test"}},
		{"patch without content", item.Params{Channel: "test", Patch: true}},
		{"options without content", item.Params{Channel: "test", Headers: []string{"X: y"}, Sender: "cli"}},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := item.Build(tc.params)
			require.Error(t, err)
			assert.ErrorIs(t, err, item.ErrNothingToSend)
		})
	}
}

func TestBuildEmptyChannel(t *testing.T) {
	_, err := item.Build(item.Params{Content: "hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, item.ErrEmptyChannel)
}

func TestValueWireShape(t *testing.T) {
	code := 200
	it, err := item.Build(item.Params{
		Channel: "room",
		Content: "hi",
		Code:    &code,
		Headers: []string{"X-Foo: bar"},
		ID:      "3",
		PrevID:  "2",
		Sender:  "cli",
	})
	require.NoError(t, err)

	v := it.Value()
	require.Equal(t, tnetstring.KindDict, v.Kind())

	channel, ok := v.Get("channel")
	require.True(t, ok)
	assert.Equal(t, []byte("room"), channel.Bytes())

	id, ok := v.Get("id")
	require.True(t, ok)
	assert.Equal(t, []byte("3"), id.Bytes())

	prevID, ok := v.Get("prev-id")
	require.True(t, ok)
	assert.Equal(t, []byte("2"), prevID.Bytes())

	meta, ok := v.Get("meta")
	require.True(t, ok)
	sender, ok := meta.Get("sender")
	require.True(t, ok)
	assert.Equal(t, []byte("cli"), sender.Bytes())

	formats, ok := v.Get("formats")
	require.True(t, ok)

	hr, ok := formats.Get("http-response")
	require.True(t, ok)
	body, ok := hr.Get("body")
	require.True(t, ok)
	assert.Equal(t, []byte("hi\n"), body.Bytes())
	codeVal, ok := hr.Get("code")
	require.True(t, ok)
	require.Equal(t, tnetstring.KindInt, codeVal.Kind())
	assert.Equal(t, int64(200), codeVal.Int())
	headers, ok := hr.Get("headers")
	require.True(t, ok)
	require.Len(t, headers.List(), 1)
	pair := headers.List()[0]
	require.Len(t, pair.List(), 2)
	assert.Equal(t, []byte("X-Foo"), pair.List()[0].Bytes())
	assert.Equal(t, []byte("bar"), pair.List()[1].Bytes())

	hs, ok := formats.Get("http-stream")
	require.True(t, ok)
	chunk, ok := hs.Get("content")
	require.True(t, ok)
	assert.Equal(t, []byte("hi\n"), chunk.Bytes())
	_, ok = hs.Get("action")
	assert.False(t, ok)

	ws, ok := formats.Get("ws-message")
	require.True(t, ok)
	msg, ok := ws.Get("content")
	require.True(t, ok)
	assert.Equal(t, []byte("hi"), msg.Bytes())
}

func TestValueCloseShape(t *testing.T) {
	it, err := item.Build(item.Params{Channel: "room", Close: true})
	require.NoError(t, err)

	formats, ok := it.Value().Get("formats")
	require.True(t, ok)
	hs, ok := formats.Get("http-stream")
	require.True(t, ok)
	require.Len(t, hs.Pairs(), 1)
	action, ok := hs.Get("action")
	require.True(t, ok)
	assert.Equal(t, []byte("close"), action.Bytes())
}

// The broker parses these bytes; the framing must match it exactly.
func TestGoldenWireBytes(t *testing.T) {
	it, err := item.Build(item.Params{Channel: "test", Content: "hello"})
	require.NoError(t, err)

	buf, err := tnetstring.Marshal(it.Value())
	require.NoError(t, err)

	want := "143:7:channel,4:test,7:formats," +
		"111:13:http-response,16:4:body,6:hello\n,}" +
		"11:http-stream,19:7:content,6:hello\n,}" +
		"10:ws-message,18:7:content,5:hello,}}}"
	assert.Equal(t, want, string(buf))
}

package daemon

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fsindex/internal/term"
)

func TestResponseConstructors(t *testing.T) {
	ok := NewSuccessResponse("req-1", SearchResult{Paths: []string{"/a.txt"}})
	assert.Equal(t, "2.0", ok.JSONRPC)
	assert.Equal(t, "req-1", ok.ID)
	assert.Nil(t, ok.Error)

	failed := NewErrorResponse("req-2", ErrCodeInvalidParams, "bad kind")
	assert.Nil(t, failed.Result)
	require.NotNil(t, failed.Error)
	assert.Equal(t, ErrCodeInvalidParams, failed.Error.Code)
	assert.Equal(t, "bad kind", failed.Error.Message)
}

func TestResponse_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(NewErrorResponse("x", ErrCodeInternalError, "boom"))
	require.NoError(t, err)

	assert.NotContains(t, string(data), `"result"`)
	assert.Contains(t, string(data), `"error"`)
}

func TestSearchParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  SearchParams
		want    term.Term
		wantErr bool
	}{
		{name: "word", params: SearchParams{Kind: "word", Text: "milk"}, want: term.Word("milk")},
		{name: "sentence keeps text verbatim", params: SearchParams{Kind: "Sentence", Text: "Buy milk."}, want: term.Sentence("Buy milk.")},
		{name: "unknown kind", params: SearchParams{Kind: "phrase", Text: "milk"}, wantErr: true},
		{name: "missing kind", params: SearchParams{Text: "milk"}, wantErr: true},
		{name: "blank text", params: SearchParams{Kind: "word", Text: " "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.params.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPathsParams_Validate(t *testing.T) {
	assert.NoError(t, (&PathsParams{Paths: []string{"/a", "/b"}}).Validate())
	assert.Error(t, (&PathsParams{}).Validate())
	assert.Error(t, (&PathsParams{Paths: []string{"/a", ""}}).Validate())
}

func TestCancelParams_Validate(t *testing.T) {
	assert.NoError(t, (&CancelParams{Path: "/a"}).Validate())
	assert.Error(t, (&CancelParams{Path: "  "}).Validate())
}

func TestRequest_ParamsSurviveGenericDecode(t *testing.T) {
	// Given: a request encoded by the client
	data, err := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  MethodRegister,
		Params:  PathsParams{Paths: []string{"/a", "/b"}},
		ID:      "req-7",
	})
	require.NoError(t, err)

	// When: the server decodes it generically and re-decodes the params
	var req Request
	require.NoError(t, json.Unmarshal(data, &req))
	var params PathsParams
	require.NoError(t, decodeParams(req.Params, &params))

	// Then: the typed params are intact
	assert.Equal(t, MethodRegister, req.Method)
	assert.Equal(t, []string{"/a", "/b"}, params.Paths)
}

package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddClient(t *testing.T) {
	command, err := Parse("AddClient{A1;A;127.0.0.1:8787}")
	require.NoError(t, err)
	assert.Equal(t, AddClient{Name: "A1", Group: "A", Addr: "127.0.0.1:8787"}, command)
}

func TestParseSendMsg(t *testing.T) {
	command, err := Parse("SendMsg{A1;A2;this is A1, to A group}")
	require.NoError(t, err)
	assert.Equal(t, SendMsg{From: "A1", To: "A2", Content: "this is A1, to A group"}, command)
}

func TestParseShutdown(t *testing.T) {
	command, err := Parse("Shutdown")
	require.NoError(t, err)
	assert.Equal(t, Shutdown{}, command)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"unknown command", "AddjClient{A1;A;127.0.0.1:8787}", "command not support"},
		{"wrong field separator", "AddClient{A1,A;127.0.0.1:8787}", "Error! AddClient info should be 'name;group;address'"},
		{"leading token mismatch", "AddClient {A1;A;127.0.0.1:8787}", "command not support"},
		{"missing braces", "AddClient", "Error! input style should be 'Command{xxx}'"},
		{"extra brace", "AddClient{A1;A{127.0.0.1:8787}", "Error! input style should be 'Command{xxx}'"},
		{"send msg wrong fields", "SendMsg{A1;hello}", "Error! SendMsg info should be 'from;to;content'"},
		{"empty line", "", "Error! input style should be 'Command{xxx}'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

package self

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/nightconcept/pyrope-go/internal/cli/clitest"
)

func TestRepository(t *testing.T) {
	tests := []struct {
		flag    string
		want    string
		wantErr bool
	}{
		{flag: "", want: DefaultRepository},
		{flag: "someone/fork", want: "someone/fork"},
		{flag: "noslash", wantErr: true},
		{flag: "/repo", wantErr: true},
		{flag: "a/b/c", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			got, err := repository(tt.flag)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCurrentVersion(t *testing.T) {
	v, err := currentVersion("v1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v.String())

	_, err = currentVersion("dev")
	require.Error(t, err)
}

func TestUpdate_InvalidSource(t *testing.T) {
	res := clitest.Run(t, "", []*cli.Command{NewSelfCommand()}, "self", "update", "--source", "bad")
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "Invalid --source format")
}

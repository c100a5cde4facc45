package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectAction(t *testing.T) {
	tests := []struct {
		name    string
		flags   flags
		want    string
		wantErr string
	}{
		{name: "none", flags: flags{force: -1}, wantErr: "no action specified"},
		{name: "up", flags: flags{up: true, force: -1}, want: "up"},
		{name: "down", flags: flags{down: true, force: -1}, want: "down"},
		{name: "steps", flags: flags{steps: -2, force: -1}, want: "steps"},
		{name: "version", flags: flags{version: true, force: -1}, want: "version"},
		{name: "force zero", flags: flags{force: 0}, want: "force"},
		{name: "two actions", flags: flags{up: true, version: true, force: -1}, wantErr: "only one action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, err := selectAction(tt.flags)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, act.name)
		})
	}
}

func TestSelectAction_VersionHasNoApply(t *testing.T) {
	act, err := selectAction(flags{version: true, force: -1})
	require.NoError(t, err)
	assert.Nil(t, act.apply)
}

func TestMigrationSource(t *testing.T) {
	assert.Equal(t, "migrations", migrationSource("migrations", flags{}))
	assert.Equal(t, "/tmp/m", migrationSource("migrations", flags{path: "/tmp/m"}))
	assert.Empty(t, migrationSource("migrations", flags{path: "/tmp/m", embedded: true}))
	assert.Empty(t, migrationSource("", flags{}))
}

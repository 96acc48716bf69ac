package scantemplate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanwarden/scanwarden/internal/scantypes"
)

func TestRegistry_LookupAndBuild(t *testing.T) {
	r, err := NewRegistry(DefaultDefinitions())
	require.NoError(t, err)

	d, err := r.Lookup(scantypes.ScanKindMalware)
	require.NoError(t, err)

	spec := d.Build("/home/alice")
	assert.Equal(t, "/usr/bin/clamscan", spec.ExecutablePath)
	assert.Equal(t, []string{"--recursive", "--infected", "--stdout", "/home/alice"}, spec.Args)
	assert.Equal(t, scantypes.PrivilegeDomain("clamav"), spec.Domain)
}

func TestRegistry_BuildUsesDefaultTarget(t *testing.T) {
	r, err := NewRegistry(DefaultDefinitions())
	require.NoError(t, err)

	d, err := r.Lookup(scantypes.ScanKindMalware)
	require.NoError(t, err)

	spec := d.Build("")
	assert.Equal(t, "/home", spec.Args[len(spec.Args)-1])
}

func TestRegistry_TargetIgnoredWhenNotAccepted(t *testing.T) {
	r, err := NewRegistry(DefaultDefinitions())
	require.NoError(t, err)

	d, err := r.Lookup(scantypes.ScanKindRootkit)
	require.NoError(t, err)

	spec := d.Build("/home/alice")
	assert.Equal(t, []string{"--check", "--sk", "--nocolors"}, spec.Args)
}

func TestRegistry_UnknownKind(t *testing.T) {
	r, err := NewRegistry(DefaultDefinitions())
	require.NoError(t, err)

	_, err = r.Lookup(scantypes.ScanKind("does-not-exist"))
	assert.ErrorIs(t, err, scantypes.ErrUnknownScanKind)
}

func TestNewRegistry_RejectsDuplicateKinds(t *testing.T) {
	defs := append(DefaultDefinitions(), DefaultDefinitions()...)
	_, err := NewRegistry(defs)
	assert.Error(t, err)
}

func TestDefinition_BuildDoesNotAliasFixedArgs(t *testing.T) {
	d := Definition{
		Kind:          scantypes.ScanKindMalware,
		Executable:    "/usr/bin/clamscan",
		FixedArgs:     []string{"--recursive"},
		AcceptsTarget: true,
	}
	first := d.Build("/home/a")
	second := d.Build("/home/b")
	assert.Equal(t, []string{"--recursive", "/home/a"}, first.Args)
	assert.Equal(t, []string{"--recursive", "/home/b"}, second.Args)
}

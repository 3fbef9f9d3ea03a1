package arch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetsAreValid(t *testing.T) {
	for _, k := range []Kind{VPUX30XX, VPUX311X, VPUX37XX} {
		t.Run(k.String(), func(t *testing.T) {
			d, err := Preset(k)
			require.NoError(t, err)
			assert.Equal(t, k, d.Kind)
			assert.NoError(t, d.Validate())
		})
	}
}

func TestPresetByName(t *testing.T) {
	d, err := PresetByName("vpux37xx")
	require.NoError(t, err)
	assert.Equal(t, 2, d.DMAPorts)
	assert.Equal(t, 2, d.NumClusters)

	_, err = PresetByName("VPUX9000")
	assert.Error(t, err)

	_, err = Preset(Unknown)
	assert.Error(t, err)
}

func TestValidateRejectsBadLimits(t *testing.T) {
	d := Descriptor{Name: "custom", NumClusters: 0, DMAPorts: 2, MaxBarriers: 8, CMXSize: 1, DDRSize: 1}
	err := d.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "num_clusters")

	d.NumClusters = 2
	d.DMAPorts = 32
	err = d.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dma_ports")
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "VPUX30XX", VPUX30XX.String())
	assert.Equal(t, "UNKNOWN", Kind(99).String())

	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, Unknown, k)
}

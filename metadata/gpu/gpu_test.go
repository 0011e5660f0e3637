package gpu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fake struct {
	busy []bool
	err  error
}

func (f fake) Count() (int, error)      { return len(f.busy), f.err }
func (f fake) Busy(d int) (bool, error) { return f.busy[d], nil }

func TestIdle(t *testing.T) {
	configs := []struct {
		name string
		o    Oracle
		want []int
	}{
		{
			name: "Empty",
			o:    fake{},
			want: []int{},
		},
		{
			name: "AllBusy",
			o:    fake{busy: []bool{true, true}},
			want: []int{},
		},
		{
			name: "Mixed",
			o:    fake{busy: []bool{false, true, false}},
			want: []int{0, 2},
		},
	}

	for _, c := range configs {
		t.Run(c.name, func(t *testing.T) {
			got, err := Idle(c.o)
			require.NoError(t, err)
			require.Equal(t, c.want, got)
		})
	}
}

func TestIdleError(t *testing.T) {
	_, err := Idle(fake{err: errors.New("driver gone")})
	require.Error(t, err)
}

func TestGetWithoutDescriber(t *testing.T) {
	devices, err := Get(fake{busy: []bool{true, false}})
	require.NoError(t, err)
	require.Len(t, devices, 2)

	require.Equal(t, 0, devices[0].DeviceNumber())
	require.True(t, devices[0].Busy())
	require.Equal(t, "", devices[0].Name())
	require.False(t, devices[1].Busy())
}

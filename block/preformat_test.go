package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rangererrors "github.com/arboretum-ml/ranger/errors"
)

func TestVerifyMatchingSignatureRemapsLevelsIdentically(t *testing.T) {
	pf := &PreFormat{
		Sig: Signature{
			PredMap: []int{0, 1, 2},
			Level:   [][]string{{"red", "green", "blue"}},
		},
	}

	remap, warn := pf.Verify(Signature{
		PredMap: []int{0, 1, 2},
		Level:   [][]string{{"red", "green", "blue"}},
	})

	require.NoError(t, warn)
	require.Len(t, remap, 1)
	assert.Equal(t, []uint32{0, 1, 2}, remap[0])
}

func TestVerifyPredictorCountMismatchIsFatal(t *testing.T) {
	pf := &PreFormat{Sig: Signature{PredMap: []int{0, 1}}}

	_, warn := pf.Verify(Signature{PredMap: []int{0, 1, 2}})
	require.Error(t, warn)
	assert.True(t, rangererrors.Is(warn, rangererrors.ErrSignatureMismatch))
}

func TestVerifyPredictorMapMismatchIsFatal(t *testing.T) {
	pf := &PreFormat{Sig: Signature{PredMap: []int{0, 2}}}

	_, warn := pf.Verify(Signature{PredMap: []int{0, 1}})
	require.Error(t, warn)
	assert.True(t, rangererrors.Is(warn, rangererrors.ErrSignatureMismatch))
}

func TestVerifyUnobservedLevelUsesProxyAndWarns(t *testing.T) {
	pf := &PreFormat{
		Sig: Signature{
			PredMap: []int{0},
			Level:   [][]string{{"red", "green"}},
		},
	}

	remap, warn := pf.Verify(Signature{
		PredMap: []int{0},
		Level:   [][]string{{"red", "purple", "green"}},
	})

	require.Error(t, warn)
	assert.True(t, rangererrors.Is(warn, rangererrors.ErrLevelNotObserved))

	require.Len(t, remap, 1)
	// "red" -> 0, "purple" unobserved -> proxy len(trainLevels)+1 == 3,
	// "green" -> 1.
	assert.Equal(t, []uint32{0, 3, 1}, remap[0])
}

func TestVerifyNoMismatchNoWarning(t *testing.T) {
	pf := &PreFormat{
		Sig: Signature{
			PredMap: []int{0, 1},
			Level:   [][]string{{"a", "b"}, {"x", "y", "z"}},
		},
	}

	remap, warn := pf.Verify(Signature{
		PredMap: []int{0, 1},
		Level:   [][]string{{"a", "b"}, {"x", "y", "z"}},
	})

	require.NoError(t, warn)
	assert.Equal(t, []uint32{0, 1}, remap[0])
	assert.Equal(t, []uint32{0, 1, 2}, remap[1])
}

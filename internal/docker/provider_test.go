package docker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/exact-lab/dockerhood/internal/docker"
)

func TestProviderCollect(t *testing.T) {
	t.Parallel()

	tf := newTestFleet(t)
	provider := docker.NewProvider(tf.fleet)

	// Collect lists each host several times (linker, master, workers); the
	// mock serves the same inventory throughout
	tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
		Return(summaries(map[string]bool{
			"demo_linker":         true,
			"demo_master":         true,
			"demo_fast_worker001": true,
		}), nil).AnyTimes()
	tf.beta.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
		Return(summaries(map[string]bool{
			"demo_slow_worker001": false,
		}), nil).AnyTimes()
	tf.alpha.EXPECT().ContainerInspect(gomock.Any(), "demo_fast_worker001").
		Return(container.InspectResponse{Config: &container.Config{Hostname: "worker001"}}, nil)
	tf.alpha.EXPECT().ImageList(gomock.Any(), gomock.Any()).
		Return(imageSummaries("demo_master:latest", "demo_linker:latest"), nil)
	tf.beta.EXPECT().ImageList(gomock.Any(), gomock.Any()).
		Return(imageSummaries("demo_slow_worker:latest"), nil)

	snap, err := provider.Collect(context.Background())
	require.NoError(t, err)

	assert.False(t, snap.CollectedAt.IsZero())
	assert.True(t, snap.LinkerExists)
	assert.True(t, snap.LinkerRunning)
	assert.Equal(t, "alpha", snap.MasterHost)
	assert.True(t, snap.MasterRunning)
	assert.Len(t, snap.Workers, 2)
	assert.ElementsMatch(t, []string{"demo_master:latest", "demo_linker:latest"}, snap.Images["alpha"])
	assert.Equal(t, []string{"demo_slow_worker:latest"}, snap.Images["beta"])
}

func TestProviderCollectPropagatesErrors(t *testing.T) {
	t.Parallel()

	tf := newTestFleet(t)
	provider := docker.NewProvider(tf.fleet)

	tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("engine down"))

	_, err := provider.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine down")
}

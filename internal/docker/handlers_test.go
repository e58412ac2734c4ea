package docker_test

import (
	"context"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/exact-lab/dockerhood/internal/docker"
)

func TestStartLinker(t *testing.T) {
	t.Parallel()

	t.Run("creates and starts when absent", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)
		tf.alpha.EXPECT().ImageList(gomock.Any(), gomock.Any()).
			Return(imageSummaries("demo_linker:latest"), nil)
		tf.alpha.EXPECT().ContainerCreate(gomock.Any(), gomock.Any(), gomock.Any(), nil, nil, "demo_linker").
			DoAndReturn(func(_ context.Context, cfg *container.Config, hostCfg *container.HostConfig,
				_, _ any, name string,
			) (container.CreateResponse, error) {
				assert.Equal(t, "demo_linker", cfg.Image)
				assert.Equal(t, "linker", cfg.Hostname)
				assert.True(t, hostCfg.Privileged)
				// One binding for the static network port plus one per queue
				assert.Len(t, hostCfg.PortBindings, 3)
				return container.CreateResponse{ID: "abc123"}, nil
			})
		tf.alpha.EXPECT().ContainerStart(gomock.Any(), "demo_linker", gomock.Any()).Return(nil)

		require.NoError(t, tf.fleet.StartLinker(context.Background()))
	})

	t.Run("starts existing stopped container without creating", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
			Return(summaries(map[string]bool{"demo_linker": false}), nil)
		tf.alpha.EXPECT().ContainerStart(gomock.Any(), "demo_linker", gomock.Any()).Return(nil)

		require.NoError(t, tf.fleet.StartLinker(context.Background()))
	})

	t.Run("already running", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
			Return(summaries(map[string]bool{"demo_linker": true}), nil)

		err := tf.fleet.StartLinker(context.Background())
		assert.ErrorIs(t, err, docker.ErrAlreadyRunning)
	})

	t.Run("image missing", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)
		tf.alpha.EXPECT().ImageList(gomock.Any(), gomock.Any()).Return(nil, nil)

		err := tf.fleet.StartLinker(context.Background())
		assert.ErrorIs(t, err, docker.ErrImageMissing)
	})
}

func TestStopLinker(t *testing.T) {
	t.Parallel()

	t.Run("stops running linker", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
			Return(summaries(map[string]bool{"demo_linker": true}), nil)
		tf.alpha.EXPECT().ContainerStop(gomock.Any(), "demo_linker", gomock.Any()).Return(nil)

		require.NoError(t, tf.fleet.StopLinker(context.Background()))
	})

	t.Run("not created", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)

		err := tf.fleet.StopLinker(context.Background())
		assert.ErrorIs(t, err, docker.ErrContainerNotFound)
	})

	t.Run("not running", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
			Return(summaries(map[string]bool{"demo_linker": false}), nil)

		err := tf.fleet.StopLinker(context.Background())
		assert.ErrorIs(t, err, docker.ErrNotRunning)
	})
}

func TestRemoveLinker(t *testing.T) {
	t.Parallel()

	t.Run("stops then removes when running", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
			Return(summaries(map[string]bool{"demo_linker": true}), nil)
		gomock.InOrder(
			tf.alpha.EXPECT().ContainerStop(gomock.Any(), "demo_linker", gomock.Any()).Return(nil),
			tf.alpha.EXPECT().ContainerRemove(gomock.Any(), "demo_linker", gomock.Any()).Return(nil),
		)

		require.NoError(t, tf.fleet.RemoveLinker(context.Background()))
	})

	t.Run("removes stopped container directly", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
			Return(summaries(map[string]bool{"demo_linker": false}), nil)
		tf.alpha.EXPECT().ContainerRemove(gomock.Any(), "demo_linker", gomock.Any()).Return(nil)

		require.NoError(t, tf.fleet.RemoveLinker(context.Background()))
	})
}

func TestStartMaster(t *testing.T) {
	t.Parallel()

	t.Run("creates on a fresh fleet", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)
		tf.beta.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)
		tf.beta.EXPECT().ImageList(gomock.Any(), gomock.Any()).
			Return(imageSummaries("demo_master:latest"), nil)
		tf.beta.EXPECT().ContainerCreate(gomock.Any(), gomock.Any(), gomock.Any(), nil, nil, "demo_master").
			Return(container.CreateResponse{ID: "m1"}, nil)
		tf.beta.EXPECT().ContainerStart(gomock.Any(), "demo_master", gomock.Any()).Return(nil)

		require.NoError(t, tf.fleet.StartMaster(context.Background(), "beta"))
	})

	t.Run("restarts a stopped master on the same host", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
			Return(summaries(map[string]bool{"demo_master": false}), nil).Times(2)
		tf.alpha.EXPECT().ContainerStart(gomock.Any(), "demo_master", gomock.Any()).Return(nil)

		require.NoError(t, tf.fleet.StartMaster(context.Background(), "alpha"))
	})

	t.Run("master already running on the same host", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
			Return(summaries(map[string]bool{"demo_master": true}), nil).Times(2)

		err := tf.fleet.StartMaster(context.Background(), "alpha")
		assert.ErrorIs(t, err, docker.ErrAlreadyRunning)
	})

	t.Run("master exists on another host", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
			Return(summaries(map[string]bool{"demo_master": false}), nil)

		err := tf.fleet.StartMaster(context.Background(), "beta")
		assert.ErrorIs(t, err, docker.ErrSingletonExists)
	})

	t.Run("unknown host", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		err := tf.fleet.StartMaster(context.Background(), "gamma")
		assert.ErrorIs(t, err, docker.ErrUnknownHost)
	})
}

func TestStopMaster(t *testing.T) {
	t.Parallel()

	t.Run("stops wherever it lives", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)
		tf.beta.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
			Return(summaries(map[string]bool{"demo_master": true}), nil).Times(2)
		tf.beta.EXPECT().ContainerStop(gomock.Any(), "demo_master", gomock.Any()).Return(nil)

		require.NoError(t, tf.fleet.StopMaster(context.Background()))
	})

	t.Run("no master anywhere", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)
		tf.beta.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)

		err := tf.fleet.StopMaster(context.Background())
		assert.ErrorIs(t, err, docker.ErrContainerNotFound)
	})
}

func TestRemoveMaster(t *testing.T) {
	t.Parallel()

	tf := newTestFleet(t)
	tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
		Return(summaries(map[string]bool{"demo_master": true}), nil).Times(2)
	gomock.InOrder(
		tf.alpha.EXPECT().ContainerStop(gomock.Any(), "demo_master", gomock.Any()).Return(nil),
		tf.alpha.EXPECT().ContainerRemove(gomock.Any(), "demo_master", gomock.Any()).Return(nil),
	)

	require.NoError(t, tf.fleet.RemoveMaster(context.Background()))
}

func TestCreateWorker(t *testing.T) {
	t.Parallel()

	t.Run("picks the lowest free suffix", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		// worker001 and worker003 taken: the new worker fills the gap
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
			Return(summaries(map[string]bool{
				"demo_fast_worker001": false,
				"demo_fast_worker003": false,
			}), nil)
		tf.beta.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)
		tf.beta.EXPECT().ImageList(gomock.Any(), gomock.Any()).
			Return(imageSummaries("demo_fast_worker:latest"), nil)
		tf.beta.EXPECT().ContainerCreate(gomock.Any(), gomock.Any(), gomock.Any(), nil, nil, "demo_fast_worker002").
			Return(container.CreateResponse{ID: "w2"}, nil)
		tf.beta.EXPECT().ContainerStart(gomock.Any(), "demo_fast_worker002", gomock.Any()).Return(nil)

		name, err := tf.fleet.CreateWorker(context.Background(), "fast", "beta")
		require.NoError(t, err)
		assert.Equal(t, "demo_fast_worker002", name)
	})

	t.Run("suffixes are independent per queue", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
			Return(summaries(map[string]bool{"demo_fast_worker001": false}), nil)
		tf.beta.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)
		tf.alpha.EXPECT().ImageList(gomock.Any(), gomock.Any()).
			Return(imageSummaries("demo_slow_worker:latest"), nil)
		tf.alpha.EXPECT().ContainerCreate(gomock.Any(), gomock.Any(), gomock.Any(), nil, nil, "demo_slow_worker001").
			Return(container.CreateResponse{ID: "w1"}, nil)
		tf.alpha.EXPECT().ContainerStart(gomock.Any(), "demo_slow_worker001", gomock.Any()).Return(nil)

		name, err := tf.fleet.CreateWorker(context.Background(), "slow", "alpha")
		require.NoError(t, err)
		assert.Equal(t, "demo_slow_worker001", name)
	})

	t.Run("queue name is normalized", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)
		tf.beta.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)
		tf.alpha.EXPECT().ImageList(gomock.Any(), gomock.Any()).
			Return(imageSummaries("demo_fast_worker:latest"), nil)
		tf.alpha.EXPECT().ContainerCreate(gomock.Any(), gomock.Any(), gomock.Any(), nil, nil, "demo_fast_worker001").
			Return(container.CreateResponse{ID: "w1"}, nil)
		tf.alpha.EXPECT().ContainerStart(gomock.Any(), "demo_fast_worker001", gomock.Any()).Return(nil)

		name, err := tf.fleet.CreateWorker(context.Background(), "Fast", "alpha")
		require.NoError(t, err)
		assert.Equal(t, "demo_fast_worker001", name)
	})

	t.Run("unknown queue", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		_, err := tf.fleet.CreateWorker(context.Background(), "bulk", "alpha")
		assert.ErrorIs(t, err, docker.ErrUnknownQueue)
	})

	t.Run("worker image missing on host", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)
		tf.beta.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)
		tf.beta.EXPECT().ImageList(gomock.Any(), gomock.Any()).Return(nil, nil)

		_, err := tf.fleet.CreateWorker(context.Background(), "fast", "beta")
		assert.ErrorIs(t, err, docker.ErrImageMissing)
	})
}

func TestStartWorker(t *testing.T) {
	t.Parallel()

	t.Run("starts a stopped worker", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)
		tf.beta.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
			Return(summaries(map[string]bool{"demo_fast_worker001": false}), nil)
		tf.beta.EXPECT().ContainerStart(gomock.Any(), "demo_fast_worker001", gomock.Any()).Return(nil)

		require.NoError(t, tf.fleet.StartWorker(context.Background(), "demo_fast_worker001"))
	})

	t.Run("already running", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
			Return(summaries(map[string]bool{"demo_fast_worker001": true}), nil)
		tf.alpha.EXPECT().ContainerInspect(gomock.Any(), "demo_fast_worker001").
			Return(container.InspectResponse{Config: &container.Config{Hostname: "worker001"}}, nil)
		tf.beta.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)

		err := tf.fleet.StartWorker(context.Background(), "demo_fast_worker001")
		assert.ErrorIs(t, err, docker.ErrAlreadyRunning)
	})

	t.Run("unknown worker", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)
		tf.beta.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)

		err := tf.fleet.StartWorker(context.Background(), "demo_fast_worker042")
		assert.ErrorIs(t, err, docker.ErrContainerNotFound)
	})
}

func TestStopWorker(t *testing.T) {
	t.Parallel()

	t.Run("stops a running worker", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
			Return(summaries(map[string]bool{"demo_fast_worker001": true}), nil)
		tf.alpha.EXPECT().ContainerInspect(gomock.Any(), "demo_fast_worker001").
			Return(container.InspectResponse{Config: &container.Config{Hostname: "worker001"}}, nil)
		tf.beta.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)
		tf.alpha.EXPECT().ContainerStop(gomock.Any(), "demo_fast_worker001", gomock.Any()).Return(nil)

		require.NoError(t, tf.fleet.StopWorker(context.Background(), "demo_fast_worker001"))
	})

	t.Run("not running", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
			Return(summaries(map[string]bool{"demo_fast_worker001": false}), nil)
		tf.beta.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)

		err := tf.fleet.StopWorker(context.Background(), "demo_fast_worker001")
		assert.ErrorIs(t, err, docker.ErrNotRunning)
	})
}

func TestRemoveWorker(t *testing.T) {
	t.Parallel()

	tf := newTestFleet(t)
	tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
		Return(summaries(map[string]bool{"demo_fast_worker001": true}), nil)
	tf.alpha.EXPECT().ContainerInspect(gomock.Any(), "demo_fast_worker001").
		Return(container.InspectResponse{Config: &container.Config{Hostname: "worker001"}}, nil)
	tf.beta.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)
	gomock.InOrder(
		tf.alpha.EXPECT().ContainerStop(gomock.Any(), "demo_fast_worker001", gomock.Any()).Return(nil),
		tf.alpha.EXPECT().ContainerRemove(gomock.Any(), "demo_fast_worker001", gomock.Any()).Return(nil),
	)

	require.NoError(t, tf.fleet.RemoveWorker(context.Background(), "demo_fast_worker001"))
}

func TestStopAllWorkers(t *testing.T) {
	t.Parallel()

	tf := newTestFleet(t)
	tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
		Return(summaries(map[string]bool{
			"demo_fast_worker001": true,
			"demo_fast_worker002": false,
		}), nil)
	tf.alpha.EXPECT().ContainerInspect(gomock.Any(), "demo_fast_worker001").
		Return(container.InspectResponse{Config: &container.Config{Hostname: "worker001"}}, nil)
	tf.beta.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
		Return(summaries(map[string]bool{"demo_slow_worker001": true}), nil)
	tf.beta.EXPECT().ContainerInspect(gomock.Any(), "demo_slow_worker001").
		Return(container.InspectResponse{Config: &container.Config{Hostname: "worker001"}}, nil)

	// Only the two running workers are stopped
	tf.alpha.EXPECT().ContainerStop(gomock.Any(), "demo_fast_worker001", gomock.Any()).Return(nil)
	tf.beta.EXPECT().ContainerStop(gomock.Any(), "demo_slow_worker001", gomock.Any()).Return(nil)

	count, err := tf.fleet.StopAllWorkers(context.Background(), docker.WorkerFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRemoveAllWorkers(t *testing.T) {
	t.Parallel()

	tf := newTestFleet(t)
	tf.alpha.EXPECT().ContainerList(gomock.Any(), gomock.Any()).
		Return(summaries(map[string]bool{
			"demo_fast_worker001": true,
			"demo_fast_worker002": false,
		}), nil)
	tf.alpha.EXPECT().ContainerInspect(gomock.Any(), "demo_fast_worker001").
		Return(container.InspectResponse{Config: &container.Config{Hostname: "worker001"}}, nil)
	tf.beta.EXPECT().ContainerList(gomock.Any(), gomock.Any()).Return(summaries(nil), nil)

	// The running worker is stopped first; both are removed
	tf.alpha.EXPECT().ContainerStop(gomock.Any(), "demo_fast_worker001", gomock.Any()).Return(nil)
	tf.alpha.EXPECT().ContainerRemove(gomock.Any(), "demo_fast_worker001", gomock.Any()).Return(nil)
	tf.alpha.EXPECT().ContainerRemove(gomock.Any(), "demo_fast_worker002", gomock.Any()).Return(nil)

	count, err := tf.fleet.RemoveAllWorkers(context.Background(), docker.WorkerFilter{Queue: "fast"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRemoveImage(t *testing.T) {
	t.Parallel()

	t.Run("removes a deployment image", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ImageList(gomock.Any(), gomock.Any()).
			Return(imageSummaries("demo_fast_worker:latest", "demo_master:latest"), nil)
		tf.alpha.EXPECT().ImageRemove(gomock.Any(), "demo_fast_worker:latest", gomock.Any()).
			Return([]image.DeleteResponse{}, nil)

		require.NoError(t, tf.fleet.RemoveImage(context.Background(), "alpha", "demo_fast_worker:latest"))
	})

	t.Run("untagged reference resolves to latest", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ImageList(gomock.Any(), gomock.Any()).
			Return(imageSummaries("demo_master:latest"), nil)
		tf.alpha.EXPECT().ImageRemove(gomock.Any(), "demo_master", gomock.Any()).
			Return([]image.DeleteResponse{}, nil)

		require.NoError(t, tf.fleet.RemoveImage(context.Background(), "alpha", "demo_master"))
	})

	t.Run("refuses foreign images", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		tf.alpha.EXPECT().ImageList(gomock.Any(), gomock.Any()).
			Return(imageSummaries("demo_master:latest", "nginx:latest"), nil)

		err := tf.fleet.RemoveImage(context.Background(), "alpha", "nginx:latest")
		assert.ErrorIs(t, err, docker.ErrImageNotFound)
	})

	t.Run("unknown host", func(t *testing.T) {
		t.Parallel()

		tf := newTestFleet(t)
		err := tf.fleet.RemoveImage(context.Background(), "gamma", "demo_master:latest")
		assert.ErrorIs(t, err, docker.ErrUnknownHost)
	})
}

package printer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereceipt/thermal-bridge/internal/device"
)

// gatedDriver holds every Open until release is closed, like a driver
// waiting for a USB permission grant.
type gatedDriver struct {
	*fakeDriver
	opened  chan struct{}
	release chan struct{}
}

func (d *gatedDriver) Open(ctx context.Context, desc Descriptor, prev device.Port) (device.Port, error) {
	select {
	case d.opened <- struct{}{}:
	default:
	}
	select {
	case <-d.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return d.fakeDriver.Open(ctx, desc, prev)
}

func TestPoolKeepsSessionWhileOpening(t *testing.T) {
	port := &fakePort{complete: completeWith(device.EventWriteComplete, device.Status{})}
	driver := &gatedDriver{
		fakeDriver: newFakeDriver(CompleteOnWrite, port),
		opened:     make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
	pool := NewSessionPool(map[Manufacturer]Driver{Epson: driver}, fastOptions())
	d := testDevice()
	img := pngBase64(t, 16, 16)

	results := make(chan Result, 2)
	go func() {
		res, _ := pool.PrintImage(context.Background(), img, d)
		results <- res
	}()

	select {
	case <-driver.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("first job never reached Open")
	}

	s, err := pool.Session(d)
	require.NoError(t, err)
	assert.Equal(t, StateConnecting, s.State())
	assert.True(t, pool.Busy(d.ID()))
	assert.False(t, pool.Remove(d.ID()), "session in use must stay")

	go func() {
		res, _ := pool.PrintImage(context.Background(), img, d)
		results <- res
	}()
	close(driver.release)

	for i := 0; i < 2; i++ {
		select {
		case res := <-results:
			assert.Equal(t, Success, res)
		case <-time.After(2 * time.Second):
			t.Fatal("job did not finish")
		}
	}

	_, writes, _, maxActive := port.stats()
	assert.Equal(t, 2, writes)
	assert.Equal(t, 1, maxActive)
	assert.Equal(t, 1, pool.Len())

	assert.False(t, pool.Busy(d.ID()))
	assert.True(t, pool.Remove(d.ID()))
	assert.Zero(t, pool.Len())
}

func TestPoolBusyWhileQueued(t *testing.T) {
	port := &fakePort{complete: completeWith(device.EventWriteComplete, device.Status{})}
	pool := NewSessionPool(map[Manufacturer]Driver{Epson: newFakeDriver(CompleteOnWrite, port)}, fastOptions())
	d := testDevice()
	img := pngBase64(t, 16, 16)

	s, err := pool.Session(d)
	require.NoError(t, err)
	s.sem <- struct{}{}

	done := make(chan Result, 1)
	go func() {
		res, _ := pool.PrintImage(context.Background(), img, d)
		done <- res
	}()

	require.Eventually(t, func() bool { return s.Active() }, time.Second, time.Millisecond)
	assert.Equal(t, StateIdle, s.State())
	assert.True(t, pool.Busy(d.ID()))
	assert.False(t, pool.Remove(d.ID()))

	<-s.sem
	assert.Equal(t, Success, <-done)
	assert.True(t, pool.Remove(d.ID()))
}

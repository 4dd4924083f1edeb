package device

import (
	"context"
	"sync"
)

// PermissionBroker grants access to USB devices. Register installs a
// receiver for grant results and returns the function removing it.
type PermissionBroker interface {
	HasPermission(device string) bool
	Register(receiver func(device string, granted bool)) (unregister func())
	RequestPermission(device string) error
}

// AwaitPermission requests access to device through b and waits for the
// answer. The receiver is unregistered exactly once on every path.
func AwaitPermission(ctx context.Context, b PermissionBroker, device string) (bool, error) {
	if b == nil || b.HasPermission(device) {
		return true, nil
	}

	result := make(chan bool, 1)
	unregister := b.Register(func(d string, granted bool) {
		if d != device {
			return
		}
		select {
		case result <- granted:
		default:
		}
	})
	var once sync.Once
	release := func() { once.Do(unregister) }
	defer release()

	if err := b.RequestPermission(device); err != nil {
		return false, err
	}

	select {
	case granted := <-result:
		return granted, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// OpenAccess is the desktop broker: the operating system decides at open
// time, so every request is granted.
type OpenAccess struct{}

func (OpenAccess) HasPermission(string) bool { return true }

func (OpenAccess) Register(func(string, bool)) func() { return func() {} }

func (OpenAccess) RequestPermission(string) error { return nil }

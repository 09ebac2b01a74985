package supervisor

import (
	"context"
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/tools/cache"

	"github.com/giantswarm/kubedeck/internal/events"
	"github.com/giantswarm/kubedeck/internal/k8s"
	"github.com/giantswarm/kubedeck/internal/logging"
)

// Pod change types carried in the Type field of "pod_event" events.
const (
	PodAdded    = "Added"
	PodModified = "Modified"
	PodDeleted  = "Deleted"
)

const podNotificationBuffer = 64

type podNotification struct {
	changeType string
	pod        *corev1.Pod
}

// watchPods runs a pod informer for namespace and forwards its
// notifications until ctx is cancelled or the watch fails for good. Relists
// and reconnects are left to the informer; only errors that a relist cannot
// fix end the session.
func (s *Supervisor) watchPods(ctx context.Context, clients *k8s.Clients, namespace string, out *emitter) error {
	watchCtx, cancel := context.WithCancel(ctx)

	factory := informers.NewSharedInformerFactoryWithOptions(
		clients.Kube,
		s.resyncPeriod,
		informers.WithNamespace(k8s.NamespaceScope(namespace)),
	)
	informer := factory.Core().V1().Pods().Informer()

	// Shutdown waits for the informer goroutines, which only exit once the
	// stop channel is closed.
	defer func() {
		cancel()
		factory.Shutdown()
	}()

	fatal := make(chan error, 1)
	if err := informer.SetWatchErrorHandler(func(_ *cache.Reflector, err error) {
		if isFatalWatchError(err) {
			select {
			case fatal <- err:
			default:
			}
			return
		}
		out.logger.Debug("Pod watch interrupted, relisting", logging.SanitizedErr(err))
	}); err != nil {
		return fmt.Errorf("failed to set watch error handler: %w", err)
	}

	notifications := make(chan podNotification, podNotificationBuffer)
	deliver := func(changeType string, obj any) {
		pod := podFromObject(obj)
		if pod == nil {
			return
		}
		select {
		case notifications <- podNotification{changeType: changeType, pod: pod}:
		case <-watchCtx.Done():
		}
	}

	if _, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj any) {
			deliver(PodAdded, obj)
		},
		UpdateFunc: func(oldObj, newObj any) {
			// Periodic resyncs redeliver unchanged objects.
			if isResync(oldObj, newObj) {
				return
			}
			deliver(PodModified, newObj)
		},
		DeleteFunc: func(obj any) {
			deliver(PodDeleted, obj)
		},
	}); err != nil {
		return fmt.Errorf("failed to register pod handler: %w", err)
	}

	factory.Start(watchCtx.Done())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-fatal:
			return &StreamError{
				Session: out.info.Key,
				Kind:    out.info.Kind,
				Reason:  "pod watch failed",
				Err:     err,
			}

		case n := <-notifications:
			summary := k8s.SummarizePod(n.pod, s.now())
			if err := out.emit(ctx, events.NamePodEvent, n.changeType, summary); err != nil {
				if errors.Is(err, events.ErrClosed) {
					return nil
				}
				return err
			}
		}
	}
}

// podFromObject unwraps informer tombstones. Anything that is not a pod is
// dropped.
func podFromObject(obj any) *corev1.Pod {
	if tombstone, ok := obj.(cache.DeletedFinalStateUnknown); ok {
		obj = tombstone.Obj
	}
	pod, ok := obj.(*corev1.Pod)
	if !ok {
		return nil
	}
	return pod
}

func isResync(oldObj, newObj any) bool {
	oldPod, ok := oldObj.(*corev1.Pod)
	if !ok {
		return false
	}
	newPod, ok := newObj.(*corev1.Pod)
	if !ok {
		return false
	}
	return oldPod.ResourceVersion != "" && oldPod.ResourceVersion == newPod.ResourceVersion
}

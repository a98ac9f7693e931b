// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package k8s is the controller's view of the cluster: bot Pods and Services
// in a single namespace. Every operation retries transient API errors before
// surfacing them as temporary errors the supervisor knows how to handle.
package k8s

import (
	"context"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	crclient "sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/coingro/coingro-controller/pkg/botspec"
	"github.com/coingro/coingro-controller/pkg/cgerr"
	"github.com/coingro/coingro-controller/pkg/config"
	k8sutils "github.com/coingro/coingro-controller/pkg/utils/k8s"
	ulog "github.com/coingro/coingro-controller/pkg/utils/log"
)

var log = ulog.Log.WithName("k8s")

const (
	retryAttempts = 3
	retryDelay    = time.Second
)

// Client manages the cluster resources backing coingro bots.
type Client struct {
	c         k8sutils.Client
	settings  config.Settings
	namespace string
}

// NewClient connects with in-cluster credentials and makes sure the managed
// namespace exists.
func NewClient(ctx context.Context, settings config.Settings) (*Client, error) {
	cfg, err := ctrlconfig.GetConfig()
	if err != nil {
		return nil, errors.Wrap(err, "could not load kubernetes client configuration")
	}
	c, err := crclient.New(cfg, crclient.Options{Scheme: k8sutils.Scheme()})
	if err != nil {
		return nil, errors.Wrap(err, "could not create kubernetes client")
	}

	client := NewWith(c, settings)
	if err := client.EnsureNamespace(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// NewWith wraps an existing client, namespace creation is left to the caller.
func NewWith(c k8sutils.Client, settings config.Settings) *Client {
	return &Client{
		c:         c,
		settings:  settings,
		namespace: settings.Namespace,
	}
}

// Namespace returns the namespace all bot resources live in.
func (c *Client) Namespace() string {
	return c.namespace
}

// EnsureNamespace creates the managed namespace if it does not exist yet.
func (c *Client) EnsureNamespace(ctx context.Context) error {
	err := c.retry(ctx, func() error {
		var ns corev1.Namespace
		err := c.c.Get(ctx, types.NamespacedName{Name: c.namespace}, &ns)
		if err == nil {
			return nil
		}
		if !apierrors.IsNotFound(err) {
			return err
		}
		if err := c.c.Create(ctx, botspec.BuildNamespace(c.namespace)); err != nil && !apierrors.IsAlreadyExists(err) {
			return err
		}
		return nil
	})
	if err != nil {
		return cgerr.NewTemporary(err, "could not ensure namespace "+c.namespace)
	}
	return nil
}

// GetPod returns the named bot Pod, or nil if it does not exist. Lookup
// errors are logged and reported as absence so a flaky API server does not
// abort a whole reconcile pass.
func (c *Client) GetPod(ctx context.Context, name string) *corev1.Pod {
	var pod corev1.Pod
	err := c.retry(ctx, func() error {
		err := c.c.Get(ctx, types.NamespacedName{Namespace: c.namespace, Name: name}, &pod)
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	})
	if err != nil {
		log.Error(err, "Could not retrieve pod", "namespace", c.namespace, "pod_name", name)
		return nil
	}
	if pod.Name == "" {
		return nil
	}
	return &pod
}

// ListPods returns the bot pods in the managed namespace, selected by the
// controller's creator label.
func (c *Client) ListPods(ctx context.Context) ([]corev1.Pod, error) {
	var pods []corev1.Pod
	err := c.retry(ctx, func() error {
		var err error
		pods, err = k8sutils.PodsMatchingLabels(ctx, c.c, c.namespace,
			map[string]string{"creator": botspec.CreatorLabelValue})
		return err
	})
	if err != nil {
		return nil, cgerr.NewTemporary(err, "could not list pods in namespace "+c.namespace)
	}
	return pods, nil
}

// GetService returns the named bot Service, or nil if it does not exist.
func (c *Client) GetService(ctx context.Context, name string) *corev1.Service {
	var svc corev1.Service
	err := c.retry(ctx, func() error {
		err := c.c.Get(ctx, types.NamespacedName{Namespace: c.namespace, Name: name}, &svc)
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	})
	if err != nil {
		log.Error(err, "Could not retrieve service", "namespace", c.namespace, "service_name", name)
		return nil
	}
	if svc.Name == "" {
		return nil
	}
	return &svc
}

// CreateService creates the given Service. An existing Service by the same
// name is reused as is.
func (c *Client) CreateService(ctx context.Context, svc *corev1.Service) error {
	err := c.retry(ctx, func() error {
		if err := c.c.Create(ctx, svc); err != nil && !apierrors.IsAlreadyExists(err) {
			return err
		}
		return nil
	})
	if err != nil {
		return cgerr.NewTemporary(err, "could not create service "+svc.Name)
	}
	return nil
}

// CreatePod creates the given Pod. A leftover Pod by the same name is deleted
// first, pod specs are immutable for everything the controller cares about.
func (c *Client) CreatePod(ctx context.Context, pod *corev1.Pod) error {
	err := c.retry(ctx, func() error {
		err := c.c.Create(ctx, pod)
		if apierrors.IsAlreadyExists(err) {
			if err := c.deleteObject(ctx, &corev1.Pod{ObjectMeta: pod.ObjectMeta}); err != nil {
				return err
			}
			fresh := pod.DeepCopy()
			fresh.ResourceVersion = ""
			err = c.c.Create(ctx, fresh)
		}
		return err
	})
	if err != nil {
		return cgerr.NewTemporary(err, "could not create pod "+pod.Name)
	}
	return nil
}

// ReplacePod swaps the named Pod for the given spec.
func (c *Client) ReplacePod(ctx context.Context, pod *corev1.Pod) error {
	err := c.retry(ctx, func() error {
		if err := c.deleteObject(ctx, &corev1.Pod{ObjectMeta: pod.ObjectMeta}); err != nil {
			return err
		}
		fresh := pod.DeepCopy()
		fresh.ResourceVersion = ""
		return c.c.Create(ctx, fresh)
	})
	if err != nil {
		return cgerr.NewTemporary(err, "could not replace pod "+pod.Name)
	}
	return nil
}

// DeletePod deletes the named Pod, doing nothing if it is already gone.
func (c *Client) DeletePod(ctx context.Context, name string) error {
	return c.deleteByName(ctx, "pod", name, &corev1.Pod{ObjectMeta: c.objectMeta(name)})
}

// DeleteService deletes the named Service, doing nothing if it is already gone.
func (c *Client) DeleteService(ctx context.Context, name string) error {
	return c.deleteByName(ctx, "service", name, &corev1.Service{ObjectMeta: c.objectMeta(name)})
}

// DeletePVC deletes the named PersistentVolumeClaim, doing nothing if it is
// already gone.
func (c *Client) DeletePVC(ctx context.Context, name string) error {
	return c.deleteByName(ctx, "pvc", name, &corev1.PersistentVolumeClaim{ObjectMeta: c.objectMeta(name)})
}

func (c *Client) objectMeta(name string) metav1.ObjectMeta {
	return k8sutils.ToObjectMeta(types.NamespacedName{Namespace: c.namespace, Name: name})
}

func (c *Client) deleteByName(ctx context.Context, kind, name string, obj crclient.Object) error {
	err := c.retry(ctx, func() error {
		return c.deleteObject(ctx, obj)
	})
	if err != nil {
		return cgerr.NewTemporary(err, "could not delete "+kind+" "+name)
	}
	return nil
}

func (c *Client) deleteObject(ctx context.Context, obj crclient.Object) error {
	if err := c.c.Delete(ctx, obj); err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	return nil
}

func (c *Client) retry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}

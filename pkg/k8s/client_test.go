// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package k8s

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/coingro/coingro-controller/pkg/botspec"
	"github.com/coingro/coingro-controller/pkg/cgerr"
	"github.com/coingro/coingro-controller/pkg/config"
	k8sutils "github.com/coingro/coingro-controller/pkg/utils/k8s"
)

func testSettings() config.Settings {
	return config.Settings{
		Namespace:       "coingro",
		CGImage:         "coingro/coingro:1.2.3",
		CGVersion:       "1.2.3",
		CGAPIServerPort: 8080,
	}
}

func podFixture(name string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: "coingro",
			Name:      name,
			Labels:    map[string]string{"creator": "coingro-controller", "generation": "old"},
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{Name: "coingro-container", Image: "coingro/coingro:1.0.0"}},
		},
	}
}

func TestEnsureNamespace(t *testing.T) {
	fake := k8sutils.NewFakeClient()
	client := NewWith(fake, testSettings())

	require.NoError(t, client.EnsureNamespace(context.Background()))

	var ns corev1.Namespace
	require.NoError(t, fake.Get(context.Background(), types.NamespacedName{Name: "coingro"}, &ns))
	assert.Equal(t, "coingro-controller", ns.Labels["creator"])

	// a second call is a no-op
	require.NoError(t, client.EnsureNamespace(context.Background()))
}

func TestGetPod(t *testing.T) {
	fake := k8sutils.NewFakeClient(podFixture("bot-1a2b3c4d"))
	client := NewWith(fake, testSettings())

	pod := client.GetPod(context.Background(), "bot-1a2b3c4d")
	require.NotNil(t, pod)
	assert.Equal(t, "bot-1a2b3c4d", pod.Name)

	assert.Nil(t, client.GetPod(context.Background(), "bot-missing"))
}

func TestGetPodSwallowsErrors(t *testing.T) {
	client := NewWith(k8sutils.NewFailingClient(errors.New("api server down")), testSettings())
	assert.Nil(t, client.GetPod(context.Background(), "bot-1a2b3c4d"))
}

func TestListPods(t *testing.T) {
	other := podFixture("bot-elsewhere")
	other.Namespace = "default"
	foreign := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: "coingro", Name: "not-ours"}}
	fake := k8sutils.NewFakeClient(podFixture("bot-1"), podFixture("bot-2"), other, foreign)
	client := NewWith(fake, testSettings())

	pods, err := client.ListPods(context.Background())
	require.NoError(t, err)
	require.Len(t, pods, 2)

	byName := k8sutils.PodsByName(pods)
	assert.Contains(t, byName, "bot-1")
	assert.Contains(t, byName, "bot-2")
}

func TestListPodsTemporaryError(t *testing.T) {
	client := NewWith(k8sutils.NewFailingClient(errors.New("api server down")), testSettings())
	_, err := client.ListPods(context.Background())
	require.Error(t, err)
	assert.True(t, cgerr.IsTemporary(err))
}

func TestCreateServiceReusesExisting(t *testing.T) {
	existing := botspec.BuildService(testSettings(), "bot-1a2b3c4d")
	fake := k8sutils.NewFakeClient(existing)
	client := NewWith(fake, testSettings())

	require.NoError(t, client.CreateService(context.Background(), botspec.BuildService(testSettings(), "bot-1a2b3c4d")))

	svc := client.GetService(context.Background(), "bot-1a2b3c4d")
	require.NotNil(t, svc)
	assert.Equal(t, int32(80), svc.Spec.Ports[0].Port)
}

func TestCreatePodReplacesLeftover(t *testing.T) {
	fake := k8sutils.NewFakeClient(podFixture("bot-1a2b3c4d"))
	client := NewWith(fake, testSettings())

	pod, err := botspec.BuildPod(testSettings(), "bot-1a2b3c4d", nil, nil)
	require.NoError(t, err)
	require.NoError(t, client.CreatePod(context.Background(), pod))

	got := client.GetPod(context.Background(), "bot-1a2b3c4d")
	require.NotNil(t, got)
	assert.Equal(t, "coingro-bot", got.Labels["app"])
	assert.NotContains(t, got.Labels, "generation")
}

func TestDeletePodAbsent(t *testing.T) {
	client := NewWith(k8sutils.NewFakeClient(), testSettings())
	require.NoError(t, client.DeletePod(context.Background(), "bot-gone"))
	require.NoError(t, client.DeleteService(context.Background(), "bot-gone"))
	require.NoError(t, client.DeletePVC(context.Background(), "coingro-user-data-pvc"))
}
